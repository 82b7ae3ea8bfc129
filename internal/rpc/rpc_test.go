package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/foliolabs/folio/internal/aggregator"
	"github.com/foliolabs/folio/internal/asset"
	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/discovery"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/history"
	"github.com/foliolabs/folio/internal/library"
	"github.com/foliolabs/folio/internal/price"
	"github.com/foliolabs/folio/internal/provider"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/pkg/helpers"
	"github.com/foliolabs/folio/pkg/logging"
)

const testEthAddr = "0x1111111111111111111111111111111111111111"

// newTestServer wires a server over a temp-dir store with the
// aggregator disabled, so no handler under test leaves the process.
func newTestServer(t *testing.T) (*Server, *storage.Storage) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "folio-rpc-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = tmpDir
	cfg.Aggregator.Enabled = false
	// One back-fill batch covers the whole window, so scheduler passes
	// kicked by handlers finish without inter-batch sleeps.
	cfg.History.BackfillDays = 1
	cfg.History.BatchSize = 1000

	store, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := logging.Default()
	lib := library.New(store, log)
	if err := lib.Seed(); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	registry := provider.NewRegistry(&cfg.Aggregator, log)
	agg := aggregator.New(registry, &cfg.Aggregator, log)
	prices := price.New(&cfg.Price, log)
	drivers := driver.NewManager(cfg, log)
	disc := discovery.New(cfg, agg, drivers, log)
	assets := asset.New(store, lib, agg, drivers, prices, log)
	scheduler := history.New(&cfg.History, store, assets, drivers, log)

	return NewServer(cfg, &Services{
		Store:      store,
		Drivers:    drivers,
		Aggregator: agg,
		Prices:     prices,
		Library:    lib,
		Discovery:  disc,
		Assets:     assets,
		Scheduler:  scheduler,
	}), store
}

// call posts one JSON-RPC request through handleRPC and decodes the
// response envelope.
func call(t *testing.T, s *Server, method string, params interface{}) *Response {
	t.Helper()

	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	rec := httptest.NewRecorder()
	s.handleRPC(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &resp
}

// result re-decodes a response's result into out.
func result(t *testing.T, resp *Response, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("rpc error = %d %s", resp.Error.Code, resp.Error.Message)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestHandleRPCErrorCodes(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleRPC(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json"))))
	var resp Response
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error == nil || resp.Error.Code != ParseError {
		t.Errorf("malformed body error = %+v, want code %d", resp.Error, ParseError)
	}

	rec = httptest.NewRecorder()
	s.handleRPC(rec, httptest.NewRequest(http.MethodPost, "/",
		bytes.NewReader([]byte(`{"jsonrpc":"1.0","method":"node_info","id":1}`))))
	resp = Response{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error == nil || resp.Error.Code != InvalidRequest {
		t.Errorf("bad version error = %+v, want code %d", resp.Error, InvalidRequest)
	}

	if resp := call(t, s, "no_such_method", nil); resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Errorf("unknown method error = %+v, want code %d", resp.Error, MethodNotFound)
	}

	if resp := call(t, s, "assets_add", map[string]string{}); resp.Error == nil || resp.Error.Code != InternalError {
		t.Errorf("handler failure error = %+v, want code %d", resp.Error, InternalError)
	}
}

func TestNodeInfo(t *testing.T) {
	s, _ := newTestServer(t)

	var info NodeInfoResult
	result(t, call(t, s, "node_info", nil), &info)
	if info.Version != Version {
		t.Errorf("version = %s, want %s", info.Version, Version)
	}
	if len(info.Chains) == 0 {
		t.Error("chains list is empty")
	}
}

func TestChainsList(t *testing.T) {
	s, _ := newTestServer(t)

	var list ChainsListResult
	result(t, call(t, s, "chains_list", nil), &list)
	if list.Count == 0 {
		t.Fatal("no chains listed")
	}

	found := false
	for _, c := range list.Chains {
		if c.Name == "ethereum" {
			found = true
			if c.Family != "evm" || c.NativeToken != "ETH" {
				t.Errorf("ethereum entry = %+v", c)
			}
		}
	}
	if !found {
		t.Error("ethereum missing from chains_list")
	}
}

func TestAssetsLifecycle(t *testing.T) {
	s, store := newTestServer(t)

	var added asset.AddResult
	result(t, call(t, s, "assets_add", map[string]interface{}{
		"address": testEthAddr,
		"chain":   "ethereum",
		"symbol":  "ETH",
		"tag":     "main",
	}), &added)
	if added.Status != storage.AssetCreated {
		t.Errorf("status = %s, want created", added.Status)
	}

	// Seed this hour's balance and price so listing never goes live.
	now := helpers.AlignHour(time.Now().Unix())
	if err := store.UpsertBalancePoint(added.Asset.ID, now, 2.0); err != nil {
		t.Fatalf("UpsertBalancePoint() error = %v", err)
	}
	if err := store.UpsertPricePoint(added.Asset.TokenID, now, 2000, "test"); err != nil {
		t.Fatalf("UpsertPricePoint() error = %v", err)
	}

	var list AssetListResult
	result(t, call(t, s, "assets_list", nil), &list)
	if list.Count != 1 {
		t.Fatalf("count = %d, want 1", list.Count)
	}
	if v := list.Assets[0]; v.ValueUSD != 4000 {
		t.Errorf("value = %v, want 4000", v.ValueUSD)
	}

	var summary asset.Summary
	result(t, call(t, s, "assets_summary", nil), &summary)
	if summary.TotalValueUSD != 4000 || summary.Assets != 1 {
		t.Errorf("summary = %v/%d, want 4000/1", summary.TotalValueUSD, summary.Assets)
	}

	var updated storage.AssetRow
	result(t, call(t, s, "assets_update", map[string]interface{}{
		"id":  added.Asset.ID,
		"tag": "cold",
	}), &updated)
	if updated.Tag != "cold" {
		t.Errorf("tag = %s, want cold", updated.Tag)
	}

	result(t, call(t, s, "assets_delete", map[string]interface{}{"id": added.Asset.ID}), &struct{}{})

	result(t, call(t, s, "assets_list", nil), &list)
	if list.Count != 0 {
		t.Errorf("count after delete = %d, want 0", list.Count)
	}
}

func TestAssetsBatchAdd(t *testing.T) {
	s, _ := newTestServer(t)

	var batch asset.BatchAddResult
	result(t, call(t, s, "assets_batchAdd", map[string]interface{}{
		"assets": []map[string]string{
			{"address": testEthAddr, "chain": "ethereum", "symbol": "ETH"},
			{"address": "bad", "chain": "ethereum", "symbol": "ETH"},
		},
	}), &batch)
	if len(batch.Added) != 1 || len(batch.Failed) != 1 {
		t.Errorf("batch = %d added / %d failed, want 1/1", len(batch.Added), len(batch.Failed))
	}
}

func TestTokensSearchAndStats(t *testing.T) {
	s, _ := newTestServer(t)

	var tokens TokenListResult
	result(t, call(t, s, "tokens_search", map[string]interface{}{"query": "USDC"}), &tokens)
	if tokens.Count == 0 {
		t.Fatal("tokens_search found nothing for USDC")
	}

	var added storage.Token
	result(t, call(t, s, "tokens_add", map[string]interface{}{
		"symbol":   "PEPE",
		"chain":    "ethereum",
		"contract": "0x6982508145454ce325ddbe47a25d4ec3d2311933",
		"decimals": 18,
	}), &added)
	if added.ID == 0 || added.IsPredefined {
		t.Errorf("added token = %+v, want a custom token with an id", added)
	}

	var stats storage.TokenStats
	result(t, call(t, s, "tokens_stats", nil), &stats)
	if stats.Custom != 1 {
		t.Errorf("custom tokens = %d, want 1", stats.Custom)
	}

	result(t, call(t, s, "tokens_delete", map[string]interface{}{"id": added.ID}), &struct{}{})
	result(t, call(t, s, "tokens_stats", nil), &stats)
	if stats.Custom != 0 {
		t.Errorf("custom tokens after delete = %d, want 0", stats.Custom)
	}
}

func TestHistoryStatusAndCleanup(t *testing.T) {
	s, _ := newTestServer(t)

	var stats history.Stats
	result(t, call(t, s, "history_status", nil), &stats)
	if stats.TotalRuns != 0 || stats.IsUpdating {
		t.Errorf("fresh scheduler stats = %+v", stats)
	}

	var cleanup struct {
		Success bool  `json:"success"`
		Deleted int64 `json:"deleted"`
	}
	result(t, call(t, s, "history_cleanup", nil), &cleanup)
	if !cleanup.Success || cleanup.Deleted != 0 {
		t.Errorf("cleanup = %+v, want success with nothing deleted", cleanup)
	}
}

func TestHistoryPricesWindow(t *testing.T) {
	s, store := newTestServer(t)

	var added asset.AddResult
	result(t, call(t, s, "assets_add", map[string]interface{}{
		"address": testEthAddr,
		"chain":   "ethereum",
		"symbol":  "ETH",
	}), &added)

	now := helpers.AlignHour(time.Now().Unix())
	for i := int64(0); i < 3; i++ {
		if err := store.UpsertPricePoint(added.Asset.TokenID, now-i*3600, 2000+float64(i), "test"); err != nil {
			t.Fatalf("UpsertPricePoint() error = %v", err)
		}
	}

	var prices HistoryPricesResult
	result(t, call(t, s, "history_prices", map[string]interface{}{
		"symbol": "ETH",
		"chain":  "ethereum",
		"range":  "24h",
	}), &prices)
	if prices.Count != 3 {
		t.Errorf("points = %d, want 3", prices.Count)
	}
	if prices.End-prices.Start != 24*3600 {
		t.Errorf("window = %d seconds, want 24h", prices.End-prices.Start)
	}
}

func TestPricesRefreshRevalues(t *testing.T) {
	s, store := newTestServer(t)

	var added asset.AddResult
	result(t, call(t, s, "assets_add", map[string]interface{}{
		"address": testEthAddr,
		"chain":   "ethereum",
		"symbol":  "ETH",
	}), &added)

	// Seed this hour's points so the revaluation never goes live.
	now := helpers.AlignHour(time.Now().Unix())
	if err := store.UpsertBalancePoint(added.Asset.ID, now, 2.0); err != nil {
		t.Fatalf("UpsertBalancePoint() error = %v", err)
	}
	if err := store.UpsertPricePoint(added.Asset.TokenID, now, 2000, "test"); err != nil {
		t.Fatalf("UpsertPricePoint() error = %v", err)
	}

	var out struct {
		Success   bool `json:"success"`
		Revaluing bool `json:"revaluing"`
	}
	result(t, call(t, s, "prices_refresh", nil), &out)
	if !out.Success || !out.Revaluing {
		t.Fatalf("prices_refresh = %+v", out)
	}

	// The background pass snapshots the asset at the current hour.
	deadline := time.Now().Add(10 * time.Second)
	for {
		snaps, err := store.QuerySnapshots(added.Asset.ID, now, now, 0)
		if err != nil {
			t.Fatalf("QuerySnapshots() error = %v", err)
		}
		if len(snaps) == 1 && !s.scheduler.Stats().IsUpdating {
			if snaps[0].ValueUSD != 4000 {
				t.Errorf("snapshot value = %v, want 4000", snaps[0].ValueUSD)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no snapshot written after prices_refresh, stats = %+v", s.scheduler.Stats())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAdminHandlers(t *testing.T) {
	s, store := newTestServer(t)

	if resp := call(t, s, "admin_reconnectChain", map[string]string{"chain": ""}); resp.Error == nil {
		t.Error("empty chain should fail")
	}
	if resp := call(t, s, "admin_clearCaches", nil); resp.Error != nil {
		t.Errorf("admin_clearCaches error = %+v", resp.Error)
	}

	var added asset.AddResult
	result(t, call(t, s, "assets_add", map[string]interface{}{
		"address": testEthAddr,
		"chain":   "ethereum",
		"symbol":  "ETH",
	}), &added)

	result(t, call(t, s, "admin_clearDatabase", nil), &struct{}{})

	// User data is gone, predefined catalog is reseeded.
	if _, err := store.GetAssetRow(added.Asset.ID); err == nil {
		t.Error("asset survived admin_clearDatabase")
	}
	var tokens TokenListResult
	result(t, call(t, s, "tokens_list", nil), &tokens)
	if tokens.Count == 0 {
		t.Error("predefined tokens missing after clear + reseed")
	}
}
