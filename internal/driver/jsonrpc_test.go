package driver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRPCClientCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string        `json:"jsonrpc"`
			ID      uint64        `json:"id"`
			Method  string        `json:"method"`
			Params  []interface{} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.JSONRPC != "2.0" || req.Method != "getBalance" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID,
			"result": map[string]uint64{"value": 42},
		})
	}))
	defer srv.Close()

	client := newRPCClient(5 * time.Second)
	result, err := client.Call(context.Background(), srv.URL, "getBalance", []interface{}{"addr"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	var parsed struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if parsed.Value != 42 {
		t.Errorf("value = %d, want 42", parsed.Value)
	}
}

func TestRPCClientHTTP429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newRPCClient(5 * time.Second)
	_, err := client.Call(context.Background(), srv.URL, "anything", nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Call() error = %v, want ErrRateLimited", err)
	}
}

func TestRPCClientErrorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]interface{}{"code": -32601, "message": "method not found"},
		})
	}))
	defer srv.Close()

	client := newRPCClient(5 * time.Second)
	_, err := client.Call(context.Background(), srv.URL, "nope", nil)
	if err == nil {
		t.Fatal("Call() should surface the RPC error object")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("plain RPC error misclassified as rate limit")
	}
}

func TestRPCClientRateLimitErrorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]interface{}{"code": 429, "message": "Too many requests"},
		})
	}))
	defer srv.Close()

	client := newRPCClient(5 * time.Second)
	_, err := client.Call(context.Background(), srv.URL, "getBalance", nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Call() error = %v, want ErrRateLimited", err)
	}
}
