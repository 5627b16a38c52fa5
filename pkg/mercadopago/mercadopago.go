// Package mercadopago is a minimal client for the Mercado Pago Checkout Pro
// preferences API.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.mercadopago.com"

// ErrMissingRedirect is returned when a preference comes back without a
// checkout URL.
var ErrMissingRedirect = errors.New("preference has no redirect URL")

// Item is one charged line of a preference.
type Item struct {
	ID         string          `json:"id,omitempty"`
	Title      string          `json:"title"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	CurrencyID string          `json:"currency_id"`
}

// MarshalJSON writes unit_price as a JSON number, as the API requires.
func (i Item) MarshalJSON() ([]byte, error) {
	type plain Item
	return json.Marshal(struct {
		plain
		UnitPrice json.Number `json:"unit_price"`
	}{plain(i), json.Number(i.UnitPrice.String())})
}

// Phone is the payer phone.
type Phone struct {
	Number string `json:"number"`
}

// Identification is the payer national ID.
type Identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// Payer identifies who is paying.
type Payer struct {
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          *Phone          `json:"phone,omitempty"`
	Identification *Identification `json:"identification,omitempty"`
}

// BackURLs are the pages the processor returns the shopper to.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the body of a create-preference call.
type PreferenceRequest struct {
	Items             []Item   `json:"items"`
	Payer             Payer    `json:"payer"`
	BackURLs          BackURLs `json:"back_urls"`
	AutoReturn        string   `json:"auto_return,omitempty"`
	NotificationURL   string   `json:"notification_url,omitempty"`
	ExternalReference string   `json:"external_reference,omitempty"`
}

// Preference is the processor's answer to a create-preference call.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadopago API responded with status %d: %s", e.StatusCode, e.Body)
}

// Config holds the client settings.
type Config struct {
	BaseURL     string
	AccessToken string
	// Sandbox selects the sandbox checkout URL as redirect target.
	Sandbox bool
}

// Client creates payment preferences.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

// CreatePreference registers a preference and returns its ID and redirect URL.
func (c *Client) CreatePreference(ctx context.Context, pref PreferenceRequest) (*Preference, error) {
	body, err := json.Marshal(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preference: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build preference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call mercadopago: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out Preference
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode preference: %w", err)
	}
	if out.ID == "" || out.RedirectURL(c.cfg.Sandbox) == "" {
		return nil, ErrMissingRedirect
	}
	return &out, nil
}

// RedirectURL returns the checkout URL the shopper must be sent to.
func (p *Preference) RedirectURL(sandbox bool) string {
	if sandbox && p.SandboxInitPoint != "" {
		return p.SandboxInitPoint
	}
	return p.InitPoint
}

// Sandbox reports whether the client targets the sandbox checkout.
func (c *Client) Sandbox() bool {
	return c.cfg.Sandbox
}
