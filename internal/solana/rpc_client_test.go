package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handle func(method string, params []json.RawMessage) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handle(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = map[string]any{"code": rpcErr.Code, "message": rpcErr.Message}
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func accountResult(slot int64, data []byte) map[string]any {
	return map[string]any{
		"context": map[string]any{"slot": slot},
		"value": map[string]any{
			"owner":    "VauLtProgram11111111111111111111111111111111",
			"lamports": 1_000_000,
			"data":     []any{base64.StdEncoding.EncodeToString(data), "base64"},
		},
	}
}

func TestGetAccountInfo(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	srv := rpcServer(t, func(method string, _ []json.RawMessage) (any, *rpcError) {
		require.Equal(t, "getAccountInfo", method)
		return accountResult(12345, payload), nil
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	acc, err := c.GetAccountInfo(context.Background(), "SomeAddress")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, payload, acc.Data)
	assert.Equal(t, int64(12345), acc.Slot)
	assert.Equal(t, uint64(1_000_000), acc.Lamports)
}

func TestGetAccountInfo_MissingAccount(t *testing.T) {
	srv := rpcServer(t, func(string, []json.RawMessage) (any, *rpcError) {
		return map[string]any{
			"context": map[string]any{"slot": 12345},
			"value":   nil,
		}, nil
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	acc, err := c.GetAccountInfo(context.Background(), "Missing")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestGetMultipleAccounts_NilSlots(t *testing.T) {
	srv := rpcServer(t, func(string, []json.RawMessage) (any, *rpcError) {
		return map[string]any{
			"context": map[string]any{"slot": 99},
			"value": []any{
				accountResult(99, []byte{7})["value"],
				nil,
			},
		}, nil
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	accs, err := c.GetMultipleAccounts(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	require.Len(t, accs, 2)
	require.NotNil(t, accs[0])
	assert.Equal(t, []byte{7}, accs[0].Data)
	assert.Nil(t, accs[1])
}

func TestGetSlot(t *testing.T) {
	srv := rpcServer(t, func(method string, _ []json.RawMessage) (any, *rpcError) {
		require.Equal(t, "getSlot", method)
		return 271_828_182, nil
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	slot, err := c.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(271_828_182), slot)
}

func TestCall_RPCErrorNotRetried(t *testing.T) {
	var requests int
	srv := rpcServer(t, func(string, []json.RawMessage) (any, *rpcError) {
		requests++
		return nil, &rpcError{Code: -32602, Message: "invalid params"}
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.GetSlot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
	assert.Equal(t, 1, requests)
}

func TestCall_RetriesTransportErrors(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req struct {
			ID uint64 `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":42}`, req.ID)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	c.retryDelay = 0

	slot, err := c.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), slot)
	assert.Equal(t, 3, requests)
}

func TestCall_MaxRetriesExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithMaxRetries(1))
	c.retryDelay = 0

	_, err := c.GetSlot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Contains(t, err.Error(), "429")
}
