// Package history fetches paginated deposit and depositor event history from
// the history server.
package history

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

	"circuit-vaults-service/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultPageSize   = 100
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Client pages through the history server's deposit and depositor event
// records.
type Client struct {
	baseURL    string
	client     *http.Client
	pageSize   int
	maxRetries int
	retryDelay time.Duration
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithPageSize sets the page size for deposit history requests.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxRetries sets maximum retry attempts per page.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a history-server client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		pageSize:   DefaultPageSize,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// depositRow is the wire shape of one history-server deposit record.
type depositRow struct {
	Ts          int64  `json:"ts"`
	TxSig       string `json:"txSig"`
	TxSigIndex  int    `json:"txSigIndex"`
	Slot        int64  `json:"slot"`
	User        string `json:"user"`
	Direction   string `json:"direction"`
	MarketIndex int    `json:"marketIndex"`
	Amount      string `json:"amount"`
	OraclePrice string `json:"oraclePrice"`
}

type depositPage struct {
	Records []depositRow `json:"records"`
}

// DepositsSince fetches all deposit records for user newer than sinceTs,
// paging until a short page. Rows arrive newest-first from the server and are
// returned in fetch order; callers that need replay order must sort.
func (c *Client) DepositsSince(ctx context.Context, user string, sinceTs int64) ([]*domain.DepositRecord, error) {
	var out []*domain.DepositRecord

	for page := 0; ; page++ {
		rows, err := c.fetchPage(ctx, user, page)
		if err != nil {
			return nil, err
		}

		done := false
		for _, row := range rows {
			if row.Ts <= sinceTs {
				done = true
				break
			}
			rec, err := row.toDomain()
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}

		if done || len(rows) < c.pageSize {
			return out, nil
		}
	}
}

// fetchPage retrieves one deposit history page.
func (c *Client) fetchPage(ctx context.Context, user string, page int) ([]depositRow, error) {
	q := url.Values{}
	q.Set("user", user)
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("page", strconv.Itoa(page))

	var pageResp depositPage
	if err := c.getPage(ctx, c.baseURL+"/deposits?"+q.Encode(), "deposit history", &pageResp); err != nil {
		return nil, err
	}
	return pageResp.Records, nil
}

// depositorEventRow is the wire shape of one history-server depositor event.
type depositorEventRow struct {
	Ts                  int64  `json:"ts"`
	TxSig               string `json:"txSig"`
	Slot                int64  `json:"slot"`
	Vault               string `json:"vault"`
	Depositor           string `json:"depositor"`
	Authority           string `json:"authority"`
	Action              string `json:"action"`
	Amount              string `json:"amount"`
	SharesBefore        string `json:"sharesBefore"`
	SharesAfter         string `json:"sharesAfter"`
	VaultSharesBefore   string `json:"vaultSharesBefore"`
	VaultSharesAfter    string `json:"vaultSharesAfter"`
	VaultEquityBefore   string `json:"vaultEquityBefore"`
	ProfitShareAmount   string `json:"profitShareAmount"`
	ManagementFeeAmount string `json:"managementFeeAmount"`
}

type eventPage struct {
	Records []depositorEventRow `json:"records"`
}

// DepositorEventsSince fetches all depositor events for a vault newer than
// sinceSlot, paging until a short page. Rows arrive newest-first from the
// server and are returned in fetch order; stores re-sort on read.
func (c *Client) DepositorEventsSince(ctx context.Context, vault string, sinceSlot int64) ([]*domain.VaultDepositorEvent, error) {
	var out []*domain.VaultDepositorEvent

	for page := 0; ; page++ {
		rows, err := c.fetchEventsPage(ctx, vault, page)
		if err != nil {
			return nil, err
		}

		done := false
		for _, row := range rows {
			if row.Slot <= sinceSlot {
				done = true
				break
			}
			ev, err := row.toDomain()
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}

		if done || len(rows) < c.pageSize {
			return out, nil
		}
	}
}

// fetchEventsPage retrieves one depositor event page.
func (c *Client) fetchEventsPage(ctx context.Context, vault string, page int) ([]depositorEventRow, error) {
	q := url.Values{}
	q.Set("vault", vault)
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("page", strconv.Itoa(page))

	var pageResp eventPage
	if err := c.getPage(ctx, c.baseURL+"/vault-depositor-records?"+q.Encode(), "depositor event history", &pageResp); err != nil {
		return nil, err
	}
	return pageResp.Records, nil
}

// getPage retrieves one JSON page with bounded fixed-backoff retries on 5xx
// and transport errors. Other non-200 statuses fail immediately.
func (c *Client) getPage(ctx context.Context, endpoint, kind string, dest interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s request: %w", kind, err)
			continue
		}

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("%s: server status %d", kind, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("%s: unexpected status %d", kind, resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(dest)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode %s page: %w", kind, err)
		}

		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", kind, lastErr)
}

func (r depositRow) toDomain() (*domain.DepositRecord, error) {
	amount, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("deposit %s: malformed amount %q", r.TxSig, r.Amount)
	}
	price, ok := new(big.Int).SetString(r.OraclePrice, 10)
	if !ok {
		return nil, fmt.Errorf("deposit %s: malformed oracle price %q", r.TxSig, r.OraclePrice)
	}

	return &domain.DepositRecord{
		Ts:          r.Ts,
		TxSignature: r.TxSig,
		TxIndex:     r.TxSigIndex,
		Slot:        r.Slot,
		User:        r.User,
		Direction:   r.Direction,
		MarketIndex: r.MarketIndex,
		Amount:      amount,
		OraclePrice: price,
	}, nil
}

func (r depositorEventRow) toDomain() (*domain.VaultDepositorEvent, error) {
	e := &domain.VaultDepositorEvent{
		Ts:          r.Ts,
		TxSignature: r.TxSig,
		Slot:        r.Slot,
		Vault:       r.Vault,
		Depositor:   r.Depositor,
		Authority:   r.Authority,
		Action:      r.Action,
	}

	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"amount", r.Amount, &e.Amount},
		{"sharesBefore", r.SharesBefore, &e.SharesBefore},
		{"sharesAfter", r.SharesAfter, &e.SharesAfter},
		{"vaultSharesBefore", r.VaultSharesBefore, &e.VaultSharesBefore},
		{"vaultSharesAfter", r.VaultSharesAfter, &e.VaultSharesAfter},
		{"vaultEquityBefore", r.VaultEquityBefore, &e.VaultEquityBefore},
		{"profitShareAmount", r.ProfitShareAmount, &e.ProfitShareAmount},
		{"managementFeeAmount", r.ManagementFeeAmount, &e.ManagementFeeAmount},
	}
	for _, f := range fields {
		v, err := parseDecimal(r.TxSig, f.name, f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	return e, nil
}

// parseDecimal parses a decimal-string field; the server omits fields that do
// not apply to an action, which read as zero.
func parseDecimal(txSig, field, raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("event %s: malformed %s %q", txSig, field, raw)
	}
	return v, nil
}
