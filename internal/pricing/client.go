// Package pricing fetches historical oracle prices from the price-history
// HTTP API.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"circuit-vaults-service/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout = 15 * time.Second

	// notFoundShift is added to the requested timestamp on a 404 retry:
	// oracle data may not exist yet at the exact second requested.
	notFoundShift = 30 * time.Second

	// rateLimitPad is added to the server-specified retry-after.
	rateLimitPad = 1 * time.Second
)

// ErrPriceNotFound is returned when the API has no price for the requested
// timestamp, including after the single shifted retry.
type ErrPriceNotFound struct {
	Symbol string
	Ts     int64
}

func (e *ErrPriceNotFound) Error() string {
	return fmt.Sprintf("price not found for %s at %d", e.Symbol, e.Ts)
}

// Client queries the price-history API by (symbol, timestamp).
type Client struct {
	baseURL string
	client  *http.Client
	sleep   func(context.Context, time.Duration) error
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// withSleep replaces the rate-limit sleep, for tests.
func withSleep(fn func(context.Context, time.Duration) error) ClientOption {
	return func(c *Client) {
		c.sleep = fn
	}
}

// NewClient creates a price-history client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// historyResponse is the wire shape of a single price point.
type historyResponse struct {
	Symbol string `json:"symbol"`
	Ts     int64  `json:"ts"`
	Price  string `json:"price"` // price-precision fixed-point decimal text
}

// PriceAt returns the price-precision oracle price for symbol at ts.
//
// Retry policy, exactly two recovery paths and one retry each:
//   - 404: retry once with ts shifted forward 30 seconds;
//   - 429: sleep the server's Retry-After plus one second, retry once.
//
// Any other failure propagates to the caller as fatal for the current
// vault computation.
func (c *Client) PriceAt(ctx context.Context, symbol string, ts int64) (*big.Int, error) {
	started := time.Now()
	price, err := c.priceAt(ctx, symbol, ts)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordPriceFetch(status, time.Since(started).Seconds())
	return price, err
}

func (c *Client) priceAt(ctx context.Context, symbol string, ts int64) (*big.Int, error) {
	price, status, retryAfter, err := c.fetch(ctx, symbol, ts)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		return price, nil

	case http.StatusNotFound:
		shifted := ts + int64(notFoundShift/time.Second)
		price, status, _, err = c.fetch(ctx, symbol, shifted)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			return price, nil
		}
		observability.DefaultMetrics.PriceNotFoundTotal.Inc()
		return nil, &ErrPriceNotFound{Symbol: symbol, Ts: ts}

	case http.StatusTooManyRequests:
		observability.DefaultMetrics.PriceRateLimited.Inc()
		if err := c.sleep(ctx, retryAfter+rateLimitPad); err != nil {
			return nil, err
		}
		price, status, _, err = c.fetch(ctx, symbol, ts)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			return price, nil
		}
		return nil, fmt.Errorf("price history for %s at %d: status %d after rate-limit retry", symbol, ts, status)

	default:
		return nil, fmt.Errorf("price history for %s at %d: unexpected status %d", symbol, ts, status)
	}
}

// fetch performs one request. A non-2xx status is returned to the caller for
// policy handling, not as an error.
func (c *Client) fetch(ctx context.Context, symbol string, ts int64) (*big.Int, int, time.Duration, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("ts", strconv.FormatInt(ts, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/prices/history?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("price history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, retryAfter, nil
	}

	var hr historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, 0, 0, fmt.Errorf("decode price history response: %w", err)
	}

	price, ok := new(big.Int).SetString(hr.Price, 10)
	if !ok {
		return nil, 0, 0, fmt.Errorf("malformed price %q for %s", hr.Price, symbol)
	}

	return price, http.StatusOK, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
