// Package criptoya reads Argentine peso dollar quotes from the CriptoYa API.
package criptoya

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultURL is the public dollar quotes endpoint.
const DefaultURL = "https://criptoya.com/api/dolar"

// Markets understood by the client.
const (
	MarketCripto = "cripto" // dólar cripto
	MarketBlue   = "blue"   // dólar blue
)

// ErrNoQuote is returned when the response has no usable price for the market.
var ErrNoQuote = errors.New("no quote for market")

// Config holds the CriptoYa client settings.
type Config struct {
	URL    string
	Market string
}

// Client fetches exchange rates.
type Client struct {
	url    string
	market string
	http   *http.Client
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Market == "" {
		cfg.Market = MarketCripto
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		url:    cfg.URL,
		market: strings.ToLower(cfg.Market),
		http:   httpClient,
	}
}

// quote is a bid/ask pair. Some markets (cripto) nest one pair per
// stablecoin instead of exposing a top-level pair.
type quote struct {
	Ask  decimal.Decimal `json:"ask"`
	Bid  decimal.Decimal `json:"bid"`
	USDT *quote          `json:"usdt,omitempty"`
	USDC *quote          `json:"usdc,omitempty"`
}

func (q *quote) price() (decimal.Decimal, bool) {
	if q == nil {
		return decimal.Zero, false
	}
	if q.Ask.IsPositive() {
		return q.Ask, true
	}
	if q.Bid.IsPositive() {
		return q.Bid, true
	}
	if p, ok := q.USDT.price(); ok {
		return p, true
	}
	return q.USDC.price()
}

// FetchRate returns the selling price (ask, or bid when ask is missing) of
// the configured market.
func (c *Client) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch quotes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, fmt.Errorf("quote API responded with status %d", resp.StatusCode)
	}

	var markets map[string]*quote
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode quotes: %w", err)
	}

	rate, ok := markets[c.market].price()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w %q", ErrNoQuote, c.market)
	}
	return rate, nil
}
