package criptoya_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tienda/pkg/criptoya"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchRate_TopLevelPair(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"cripto":{"ask":1512.5,"bid":1490},"blue":{"ask":1430,"bid":1410}}`)

	rate, err := criptoya.NewClient(criptoya.Config{URL: srv.URL}, srv.Client()).FetchRate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("1512.5")), rate.String())

	rate, err = criptoya.NewClient(criptoya.Config{URL: srv.URL, Market: "blue"}, srv.Client()).FetchRate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1430)), rate.String())
}

func TestFetchRate_NestedStablecoins(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"cripto":{"ccb":{"ask":1520},"usdt":{"ask":1507.43,"bid":1480}}}`)

	rate, err := criptoya.NewClient(criptoya.Config{URL: srv.URL}, srv.Client()).FetchRate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("1507.43")), rate.String())
}

func TestFetchRate_BidWhenAskMissing(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"cripto":{"bid":1499}}`)

	rate, err := criptoya.NewClient(criptoya.Config{URL: srv.URL}, srv.Client()).FetchRate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1499)))
}

func TestFetchRate_Errors(t *testing.T) {
	cases := map[string]*httptest.Server{
		"server error":   serve(t, http.StatusBadGateway, `{}`),
		"malformed body": serve(t, http.StatusOK, `<html>`),
		"missing market": serve(t, http.StatusOK, `{"blue":{"ask":1430}}`),
		"zero prices":    serve(t, http.StatusOK, `{"cripto":{"ask":0,"bid":0}}`),
	}
	for name, srv := range cases {
		_, err := criptoya.NewClient(criptoya.Config{URL: srv.URL}, srv.Client()).FetchRate(context.Background())
		assert.Error(t, err, name)
	}
}
