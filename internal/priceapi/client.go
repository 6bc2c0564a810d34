// Package priceapi is the external historical/spot price collaborator. All
// calls pass through the shared rate limiter and a circuit breaker; failures
// surface as errors that resolvers swallow into "unknown".
package priceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/txledger/internal/circuitbreaker"
	"github.com/ledgerkit/txledger/internal/metrics"
	"github.com/ledgerkit/txledger/internal/ratelimit"
)

// ErrNotFound marks a lookup where the API has no price for the coin/date.
// Callers treat it as a cacheable negative result, not a failure.
var ErrNotFound = fmt.Errorf("price not found")

// Client talks to a CoinGecko-style price API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

func NewClient(baseURL string, limiter *ratelimit.Limiter, logger *slog.Logger) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: limiter,
		logger:  logger.With("component", "priceapi"),
	}
	c.breaker = circuitbreaker.New(circuitbreaker.Config{
		OnStateChange: func(from, to circuitbreaker.State) {
			metrics.PriceAPIBreakerState.Set(float64(to))
			c.logger.Warn("price api breaker state change", "from", int(from), "to", int(to))
		},
	})
	return c
}

type historyResponse struct {
	MarketData struct {
		CurrentPrice map[string]json.Number `json:"current_price"`
	} `json:"market_data"`
}

type spotResponse map[string]struct {
	USD json.Number `json:"usd"`
}

// HistoricalPrice returns the USD price of coinID on the given UTC calendar
// date. Returns ErrNotFound when the API has no record.
func (c *Client) HistoricalPrice(ctx context.Context, coinID string, date time.Time) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/coins/%s/history?date=%s",
		c.baseURL, url.PathEscape(coinID), date.UTC().Format("02-01-2006"))

	var resp historyResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return decimal.Zero, err
	}
	raw, ok := resp.MarketData.CurrentPrice["usd"]
	if !ok || raw.String() == "" {
		return decimal.Zero, ErrNotFound
	}
	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse historical price %q: %w", raw.String(), err)
	}
	return price, nil
}

// SpotPrice returns the current USD price of coinID.
func (c *Client) SpotPrice(ctx context.Context, coinID string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		c.baseURL, url.QueryEscape(coinID))

	var resp spotResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return decimal.Zero, err
	}
	entry, ok := resp[coinID]
	if !ok || entry.USD.String() == "" {
		return decimal.Zero, ErrNotFound
	}
	price, err := decimal.NewFromString(entry.USD.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse spot price %q: %w", entry.USD.String(), err)
	}
	return price, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if err := c.breaker.Allow(); err != nil {
		metrics.PriceAPICallsTotal.WithLabelValues("breaker_open").Inc()
		return err
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build price request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		metrics.PriceAPICallsTotal.WithLabelValues("network_error").Inc()
		return fmt.Errorf("price api call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.breaker.RecordSuccess()
		metrics.PriceAPICallsTotal.WithLabelValues("not_found").Inc()
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		c.breaker.RecordFailure()
		metrics.PriceAPICallsTotal.WithLabelValues(fmt.Sprintf("http_%d", resp.StatusCode)).Inc()
		return fmt.Errorf("price api http status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.breaker.RecordFailure()
		metrics.PriceAPICallsTotal.WithLabelValues("decode_error").Inc()
		return fmt.Errorf("decode price response: %w", err)
	}
	c.breaker.RecordSuccess()
	metrics.PriceAPICallsTotal.WithLabelValues("ok").Inc()
	return nil
}
