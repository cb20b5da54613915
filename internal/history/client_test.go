package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(ts int64, sig string) map[string]any {
	return map[string]any{
		"ts":          ts,
		"txSig":       sig,
		"txSigIndex":  0,
		"slot":        ts * 10,
		"user":        "UserA",
		"direction":   "deposit",
		"marketIndex": 0,
		"amount":      "1000000",
		"oraclePrice": "150000000",
	}
}

// pagedServer serves rows newest-first in pages of the requested limit.
func pagedServer(t *testing.T, rows []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		require.NoError(t, err)
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)

		start := page * limit
		if start > len(rows) {
			start = len(rows)
		}
		end := start + limit
		if end > len(rows) {
			end = len(rows)
		}
		json.NewEncoder(w).Encode(map[string]any{"records": rows[start:end]})
	}))
}

func TestDepositsSince_SinglePage(t *testing.T) {
	srv := pagedServer(t, []map[string]any{row(300, "Sig3"), row(200, "Sig2"), row(100, "Sig1")})
	defer srv.Close()

	c := NewClient(srv.URL, WithPageSize(10))
	recs, err := c.DepositsSince(context.Background(), "UserA", 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Sig3", recs[0].TxSignature)
	assert.Equal(t, int64(1000000), recs[0].Amount.Int64())
}

func TestDepositsSince_StopsAtSinceTs(t *testing.T) {
	srv := pagedServer(t, []map[string]any{row(300, "Sig3"), row(200, "Sig2"), row(100, "Sig1")})
	defer srv.Close()

	c := NewClient(srv.URL, WithPageSize(10))
	recs, err := c.DepositsSince(context.Background(), "UserA", 200)
	require.NoError(t, err)
	// Rows at or before sinceTs are excluded, and paging stops there.
	require.Len(t, recs, 1)
	assert.Equal(t, "Sig3", recs[0].TxSignature)
}

func TestDepositsSince_PagesUntilShortPage(t *testing.T) {
	var rows []map[string]any
	for ts := int64(50); ts >= 1; ts-- {
		rows = append(rows, row(ts, fmt.Sprintf("Sig%d", ts)))
	}
	srv := pagedServer(t, rows)
	defer srv.Close()

	c := NewClient(srv.URL, WithPageSize(20))
	recs, err := c.DepositsSince(context.Background(), "UserA", 0)
	require.NoError(t, err)
	// 50 rows over pages of 20: 20 + 20 + 10.
	assert.Len(t, recs, 50)
}

func TestFetchPage_RetriesServerErrors(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"records": []map[string]any{row(100, "Sig1")}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithPageSize(10))
	c.retryDelay = time.Millisecond

	recs, err := c.DepositsSince(context.Background(), "UserA", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 3, requests)
}

func TestFetchPage_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithMaxRetries(1))
	c.retryDelay = time.Millisecond

	_, err := c.DepositsSince(context.Background(), "UserA", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestFetchPage_ClientErrorIsImmediate(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.DepositsSince(context.Background(), "UserA", 0)
	require.Error(t, err)
	assert.Equal(t, 1, requests)
}

func eventRow(slot int64, sig string) map[string]any {
	return map[string]any{
		"ts":                slot,
		"txSig":             sig,
		"slot":              slot,
		"vault":             "Vault1",
		"depositor":         "DepA",
		"authority":         "DepA",
		"action":            "deposit",
		"amount":            "1000000",
		"sharesBefore":      "0",
		"sharesAfter":       "1000",
		"vaultSharesBefore": "0",
		"vaultSharesAfter":  "1000",
		"vaultEquityBefore": "5000000",
	}
}

func TestDepositorEventsSince_SinglePage(t *testing.T) {
	srv := pagedServer(t, []map[string]any{eventRow(300, "Sig3"), eventRow(200, "Sig2"), eventRow(100, "Sig1")})
	defer srv.Close()

	c := NewClient(srv.URL, WithPageSize(10))
	events, err := c.DepositorEventsSince(context.Background(), "Vault1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Sig3", events[0].TxSignature)
	assert.Equal(t, "Vault1", events[0].Vault)
	assert.Equal(t, int64(1_000_000), events[0].Amount.Int64())
	assert.Equal(t, int64(5_000_000), events[0].VaultEquityBefore.Int64())
	// Fields the server omits for an action read as zero, not nil.
	require.NotNil(t, events[0].ProfitShareAmount)
	assert.Zero(t, events[0].ProfitShareAmount.Sign())
}

func TestDepositorEventsSince_StopsAtSinceSlot(t *testing.T) {
	srv := pagedServer(t, []map[string]any{eventRow(300, "Sig3"), eventRow(200, "Sig2"), eventRow(100, "Sig1")})
	defer srv.Close()

	c := NewClient(srv.URL, WithPageSize(10))
	events, err := c.DepositorEventsSince(context.Background(), "Vault1", 200)
	require.NoError(t, err)
	// Rows at or before sinceSlot are excluded, and paging stops there.
	require.Len(t, events, 1)
	assert.Equal(t, "Sig3", events[0].TxSignature)
}

func TestDepositorEventsSince_PagesUntilShortPage(t *testing.T) {
	var rows []map[string]any
	for slot := int64(50); slot >= 1; slot-- {
		rows = append(rows, eventRow(slot, fmt.Sprintf("Sig%d", slot)))
	}
	srv := pagedServer(t, rows)
	defer srv.Close()

	c := NewClient(srv.URL, WithPageSize(20))
	events, err := c.DepositorEventsSince(context.Background(), "Vault1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 50)
}

func TestDepositorEventsSince_MalformedField(t *testing.T) {
	bad := eventRow(100, "Sig1")
	bad["vaultEquityBefore"] = "not-a-number"
	srv := pagedServer(t, []map[string]any{bad})
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.DepositorEventsSince(context.Background(), "Vault1", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed vaultEquityBefore")
}

func TestDepositsSince_MalformedAmount(t *testing.T) {
	bad := row(100, "Sig1")
	bad["amount"] = "not-a-number"
	srv := pagedServer(t, []map[string]any{bad})
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.DepositsSince(context.Background(), "UserA", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed amount")
}
