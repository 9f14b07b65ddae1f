package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"solana-autolink/internal/retry"
)

// fastPolicy keeps retry tests quick.
func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  1.0,
		MaxDelay:    time.Millisecond,
	}
}

func rpcServer(t *testing.T, handler func(method string, params []any) (any, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = map[string]any{"code": rpcErr.Code, "message": rpcErr.Message}
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetTransaction_ParsesBalanceMetadata(t *testing.T) {
	srv := rpcServer(t, func(method string, params []any) (any, *rpcError) {
		if method != "getTransaction" {
			t.Errorf("method = %s, want getTransaction", method)
		}
		return map[string]any{
			"slot":      250000000,
			"blockTime": 1700000000,
			"meta": map[string]any{
				"err":          nil,
				"fee":          5000,
				"preBalances":  []uint64{2000000000, 500000000},
				"postBalances": []uint64{1494995000, 1005000000},
			},
			"transaction": map[string]any{
				"message": map[string]any{
					"accountKeys": []string{"Sender111", "Receiver222"},
				},
			},
		}, nil
	})

	client := NewHTTPClient(srv.URL)
	tx, err := client.GetTransaction(context.Background(), "Sig1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}

	if tx.Slot != 250000000 || tx.BlockTime != 1700000000 {
		t.Errorf("slot/blockTime = %d/%d", tx.Slot, tx.BlockTime)
	}
	if tx.Fee != 5000 {
		t.Errorf("fee = %d, want 5000", tx.Fee)
	}
	if tx.Failed() {
		t.Error("Failed() = true for successful transaction")
	}
	if got := tx.BalanceDelta(1); got != 505000000 {
		t.Errorf("BalanceDelta(1) = %d, want 505000000", got)
	}
	if got := tx.BalanceDelta(0); got != -505005000 {
		t.Errorf("BalanceDelta(0) = %d, want -505005000", got)
	}
	if len(tx.RawJSON) == 0 {
		t.Error("RawJSON not captured")
	}
}

func TestGetTransaction_NullResult(t *testing.T) {
	srv := rpcServer(t, func(_ string, _ []any) (any, *rpcError) {
		return nil, nil
	})

	client := NewHTTPClient(srv.URL)
	tx, err := client.GetTransaction(context.Background(), "Unknown")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("tx = %+v, want nil for unknown signature", tx)
	}
}

func TestGetTransaction_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := rpcServer(t, func(_ string, _ []any) (any, *rpcError) {
		calls.Add(1)
		return nil, &rpcError{Code: -32602, Message: "invalid params"}
	})

	client := NewHTTPClient(srv.URL, WithRetryPolicy(fastPolicy(3)))
	_, err := client.GetTransaction(context.Background(), "Sig1")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (RPC errors are terminal)", got)
	}
}

func TestCall_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": []any{}})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithRetryPolicy(fastPolicy(5)))
	_, err := client.GetSignaturesForAddress(context.Background(), "Addr1", 5)
	if err != nil {
		t.Fatalf("GetSignaturesForAddress: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3 (two 429s then success)", got)
	}
}

func TestCall_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, WithRetryPolicy(fastPolicy(2)))
	_, err := client.GetTransaction(context.Background(), "Sig1")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestGetSignaturesForAddress(t *testing.T) {
	srv := rpcServer(t, func(method string, params []any) (any, *rpcError) {
		if method != "getSignaturesForAddress" {
			t.Errorf("method = %s", method)
		}
		if len(params) != 2 || params[0] != "Addr1" {
			t.Errorf("params = %+v", params)
		}
		return []map[string]any{
			{"signature": "SigNew", "slot": 101, "blockTime": 1700000100, "err": nil},
			{"signature": "SigOld", "slot": 100, "blockTime": 1700000000, "err": map[string]any{"InstructionError": []any{}}},
		}, nil
	})

	client := NewHTTPClient(srv.URL)
	infos, err := client.GetSignaturesForAddress(context.Background(), "Addr1", 5)
	if err != nil {
		t.Fatalf("GetSignaturesForAddress: %v", err)
	}

	if len(infos) != 2 {
		t.Fatalf("len = %d, want 2", len(infos))
	}
	if infos[0].Signature != "SigNew" || infos[0].Failed() {
		t.Errorf("first = %+v, want successful SigNew", infos[0])
	}
	if !infos[1].Failed() {
		t.Error("second entry should report failure")
	}
}

func TestToSOL(t *testing.T) {
	if got := ToSOL(1_500_000_000); got != 1.5 {
		t.Errorf("ToSOL = %v, want 1.5", got)
	}
	if got := ToSOL(-5000); got != -0.000005 {
		t.Errorf("ToSOL = %v, want -0.000005", got)
	}
}
