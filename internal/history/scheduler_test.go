package history

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/foliolabs/folio/internal/asset"
	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/pkg/logging"
)

const testEthAddr = "0x1111111111111111111111111111111111111111"

type fakePortfolio struct {
	valuations []*asset.Valuation
	err        error
}

func (f *fakePortfolio) Portfolio(ctx context.Context, filter *storage.AssetFilter) ([]*asset.Valuation, error) {
	return f.valuations, f.err
}

type fakeDriver struct {
	mu        sync.Mutex
	firstTx   *driver.FirstTx
	firstErrs int
	calls     int
}

func (d *fakeDriver) Chain() string                     { return "ethereum" }
func (d *fakeDriver) Connect(ctx context.Context) error { return nil }
func (d *fakeDriver) ActiveEndpoint() string            { return "fake://rpc" }

func (d *fakeDriver) NativeBalance(ctx context.Context, addr string) (float64, error) {
	return 0, nil
}

func (d *fakeDriver) TokenBalance(ctx context.Context, addr, contract string) (float64, error) {
	return 0, nil
}

func (d *fakeDriver) EnumerateTokens(ctx context.Context, addr string, includeZero bool) ([]*driver.DiscoveredToken, error) {
	return nil, nil
}

func (d *fakeDriver) FirstTransactionTime(ctx context.Context, addr string) (*driver.FirstTx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.firstErrs > 0 {
		d.firstErrs--
		return nil, errors.New("explorer down")
	}
	return d.firstTx, nil
}

func (d *fakeDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeDrivers struct{ drv driver.Driver }

func (f *fakeDrivers) Driver(ctx context.Context, chainName string) (driver.Driver, error) {
	return f.drv, nil
}

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "folio-history-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// seedAsset creates one tracked ETH asset and returns its joined row.
func seedAsset(t *testing.T, store *storage.Storage) *storage.AssetRow {
	t.Helper()

	err := store.UpsertBlockchain(&storage.Blockchain{
		Name: "ethereum", DisplayName: "Ethereum", ChainType: "evm", IsActive: true,
	})
	if err != nil {
		t.Fatalf("UpsertBlockchain() error = %v", err)
	}
	if err := store.UpsertPredefinedToken(&storage.Token{
		Symbol: "ETH", Name: "Ethereum", Blockchain: "ethereum", Decimals: 18, PriceID: "ethereum",
	}); err != nil {
		t.Fatalf("UpsertPredefinedToken() error = %v", err)
	}
	token, err := store.FindToken("ETH", "ethereum")
	if err != nil {
		t.Fatalf("FindToken() error = %v", err)
	}
	wallet, err := store.GetOrCreateWallet(testEthAddr, "ethereum")
	if err != nil {
		t.Fatalf("GetOrCreateWallet() error = %v", err)
	}
	created, _, err := store.CreateAsset(wallet.ID, token.ID, "")
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	row, err := store.GetAssetRow(created.ID)
	if err != nil {
		t.Fatalf("GetAssetRow() error = %v", err)
	}
	return row
}

func newTestScheduler(t *testing.T, store *storage.Storage, portfolio Portfolio, drv driver.Driver) *Scheduler {
	t.Helper()
	cfg := config.DefaultConfig().History
	cfg.BackfillDays = 1
	cfg.BatchSize = 10
	s := New(&cfg, store, portfolio, &fakeDrivers{drv: drv}, logging.Default())
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s
}

func TestSnapshotWritesAlignedRows(t *testing.T) {
	store := newTestStore(t)
	row := seedAsset(t, store)
	portfolio := &fakePortfolio{valuations: []*asset.Valuation{
		{AssetRow: row, Balance: 2.0, PriceUSD: 100, ValueUSD: 200},
	}}
	s := newTestScheduler(t, store, portfolio, &fakeDriver{})
	now := time.Unix(1700000123, 0) // deliberately not hour-aligned
	s.clock = func() time.Time { return now }

	if err := s.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	snaps, err := store.QuerySnapshots(row.ID, 0, 0, 0)
	if err != nil {
		t.Fatalf("QuerySnapshots() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	snap := snaps[0]
	if snap.Timestamp%3600 != 0 {
		t.Errorf("timestamp %d not divisible by 3600", snap.Timestamp)
	}
	if snap.Quantity != 2.0 || snap.PriceUSD != 100 || snap.ValueUSD != 200 {
		t.Errorf("snapshot = %v/%v/%v, want 2/100/200", snap.Quantity, snap.PriceUSD, snap.ValueUSD)
	}

	// Balance and price history got the same observation.
	point, err := store.LatestBalancePoint(row.ID)
	if err != nil || point.Balance != 2.0 {
		t.Errorf("balance point = %+v, err %v; want balance 2.0", point, err)
	}
	pp, err := store.LatestPricePoint(row.TokenID)
	if err != nil || pp.PriceUSD != 100 || pp.Source != "snapshot" {
		t.Errorf("price point = %+v, err %v; want 100 from snapshot", pp, err)
	}
}

func TestBackfillFillsWithoutDuplicating(t *testing.T) {
	store := newTestStore(t)
	row := seedAsset(t, store)
	portfolio := &fakePortfolio{valuations: []*asset.Valuation{
		{AssetRow: row, Balance: 1.0, PriceUSD: 50, ValueUSD: 50},
	}}
	s := newTestScheduler(t, store, portfolio, &fakeDriver{})
	now := time.Unix(1700002800, 0) // hour-aligned
	s.clock = func() time.Time { return now }

	// Existing rows two hours back must survive untouched.
	existing := now.Unix() - 2*3600
	if err := store.UpsertSnapshot(row.ID, existing, 7.0, 10); err != nil {
		t.Fatalf("UpsertSnapshot() error = %v", err)
	}
	if err := store.UpsertBalancePoint(row.ID, existing, 9.0); err != nil {
		t.Fatalf("UpsertBalancePoint() error = %v", err)
	}
	if err := store.UpsertPricePoint(row.TokenID, existing, 11, "snapshot"); err != nil {
		t.Fatalf("UpsertPricePoint() error = %v", err)
	}

	if err := s.Backfill(context.Background()); err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}

	// One day of hourly points, inclusive of both ends.
	snaps, err := store.QuerySnapshots(row.ID, 0, 0, 0)
	if err != nil {
		t.Fatalf("QuerySnapshots() error = %v", err)
	}
	if len(snaps) != 25 {
		t.Fatalf("got %d snapshots, want 25", len(snaps))
	}
	for _, snap := range snaps {
		if snap.Timestamp%3600 != 0 {
			t.Errorf("timestamp %d not divisible by 3600", snap.Timestamp)
		}
		if snap.Timestamp == existing {
			if snap.Quantity != 7.0 {
				t.Errorf("back-fill overwrote existing snapshot: quantity = %v", snap.Quantity)
			}
		} else if snap.Quantity != 1.0 {
			t.Errorf("back-filled quantity at %d = %v, want current 1.0", snap.Timestamp, snap.Quantity)
		}
	}

	// Balance and price history filled the same window.
	balances, err := store.QueryBalanceHistory(&storage.HistoryFilter{})
	if err != nil {
		t.Fatalf("QueryBalanceHistory() error = %v", err)
	}
	if len(balances) != 25 {
		t.Fatalf("got %d balance points, want 25", len(balances))
	}
	for _, b := range balances {
		if b.Timestamp == existing {
			if b.Balance != 9.0 {
				t.Errorf("back-fill overwrote existing balance point: %v", b.Balance)
			}
		} else if b.Balance != 1.0 {
			t.Errorf("back-filled balance at %d = %v, want current 1.0", b.Timestamp, b.Balance)
		}
	}

	prices, err := store.QueryPriceHistory(&storage.HistoryFilter{})
	if err != nil {
		t.Fatalf("QueryPriceHistory() error = %v", err)
	}
	if len(prices) != 25 {
		t.Fatalf("got %d price points, want 25", len(prices))
	}
	for _, p := range prices {
		if p.Timestamp == existing {
			if p.PriceUSD != 11 || p.Source != "snapshot" {
				t.Errorf("back-fill overwrote existing price point: %v from %s", p.PriceUSD, p.Source)
			}
		} else if p.PriceUSD != 50 || p.Source != "backfill" {
			t.Errorf("back-filled price at %d = %v from %s, want 50 from backfill", p.Timestamp, p.PriceUSD, p.Source)
		}
	}

	// Idempotent: a second pass changes nothing.
	if err := s.Backfill(context.Background()); err != nil {
		t.Fatalf("second Backfill() error = %v", err)
	}
	again, _ := store.QuerySnapshots(row.ID, 0, 0, 0)
	balancesAgain, _ := store.QueryBalanceHistory(&storage.HistoryFilter{})
	if len(again) != len(snaps) || len(balancesAgain) != len(balances) {
		t.Errorf("second back-fill changed row counts: %d/%d -> %d/%d",
			len(snaps), len(balances), len(again), len(balancesAgain))
	}
}

func TestRunOnceTracksStats(t *testing.T) {
	store := newTestStore(t)
	portfolio := &fakePortfolio{}
	s := newTestScheduler(t, store, portfolio, &fakeDriver{})

	if err := s.RunOnce(context.Background(), false); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	stats := s.Stats()
	if stats.TotalRuns != 1 || stats.SuccessfulRuns != 1 || stats.FailedRuns != 0 {
		t.Errorf("stats = %+v, want one successful run", stats)
	}
	if stats.IsUpdating {
		t.Error("IsUpdating still set after RunOnce returned")
	}

	portfolio.err = errors.New("valuation broke")
	if err := s.RunOnce(context.Background(), false); err == nil {
		t.Fatal("RunOnce() should surface the pass failure")
	}
	stats = s.Stats()
	if stats.FailedRuns != 1 || stats.LastError == "" {
		t.Errorf("stats = %+v, want a recorded failure", stats)
	}
}

func TestStartStop(t *testing.T) {
	store := newTestStore(t)
	s := newTestScheduler(t, store, &fakePortfolio{}, &fakeDriver{})

	s.Start(context.Background())
	s.Stop()

	if stats := s.Stats(); stats.TotalRuns == 0 {
		t.Error("scheduler never ran before Stop")
	}
}

func TestCleanupRespectsRetention(t *testing.T) {
	store := newTestStore(t)
	row := seedAsset(t, store)
	s := newTestScheduler(t, store, &fakePortfolio{}, &fakeDriver{})
	now := time.Unix(1700000000, 0)
	s.clock = func() time.Time { return now }

	old := now.Unix() - 4*365*24*3600
	recent := now.Unix() - 3600
	if err := store.UpsertSnapshot(row.ID, old, 1, 1); err != nil {
		t.Fatalf("UpsertSnapshot() error = %v", err)
	}
	if err := store.UpsertSnapshot(row.ID, recent, 1, 1); err != nil {
		t.Fatalf("UpsertSnapshot() error = %v", err)
	}

	deleted, err := s.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted == 0 {
		t.Error("Cleanup() deleted nothing, want the old row gone")
	}
	snaps, _ := store.QuerySnapshots(row.ID, 0, 0, 0)
	if len(snaps) != 1 || snaps[0].Timestamp != storageAlign(recent) {
		t.Errorf("remaining snapshots = %d, want only the recent one", len(snaps))
	}
}

func storageAlign(ts int64) int64 { return ts - ts%3600 }

func TestWalletCreationCaches(t *testing.T) {
	store := newTestStore(t)
	seedAsset(t, store)

	firstSeen := time.Unix(1600000000, 0)
	block := int64(1234)
	drv := &fakeDriver{firstTx: &driver.FirstTx{
		Timestamp:   &firstSeen,
		TxHash:      "0xabc",
		BlockNumber: &block,
	}}
	s := newTestScheduler(t, store, &fakePortfolio{}, drv)

	w, err := s.WalletCreation(context.Background(), testEthAddr, "ethereum")
	if err != nil {
		t.Fatalf("WalletCreation() error = %v", err)
	}
	if w.CreationTimestamp == nil || *w.CreationTimestamp != firstSeen.Unix() {
		t.Fatalf("creation timestamp = %v, want %d", w.CreationTimestamp, firstSeen.Unix())
	}
	if w.IsEstimated {
		t.Error("exact creation marked estimated")
	}

	// Second read answers from the memory cache.
	if _, err := s.WalletCreation(context.Background(), testEthAddr, "ethereum"); err != nil {
		t.Fatalf("WalletCreation() error = %v", err)
	}
	if drv.callCount() != 1 {
		t.Errorf("driver calls = %d, want 1", drv.callCount())
	}

	// The row was persisted too.
	fresh, err := store.GetWallet(testEthAddr, "ethereum")
	if err != nil {
		t.Fatalf("GetWallet() error = %v", err)
	}
	if fresh.CreationTimestamp == nil || *fresh.CreationTimestamp != firstSeen.Unix() {
		t.Errorf("persisted timestamp = %v, want %d", fresh.CreationTimestamp, firstSeen.Unix())
	}
}

func TestTimeRangeSelection(t *testing.T) {
	store := newTestStore(t)
	seedAsset(t, store)
	s := newTestScheduler(t, store, &fakePortfolio{}, &fakeDriver{})
	now := time.Unix(1700000000, 0)
	s.clock = func() time.Time { return now }
	ctx := context.Background()

	// Named range wins over everything.
	start, end := s.TimeRange(ctx, "7d", 1, 2, "", "")
	if end != now.Unix() || start != now.Unix()-7*24*3600 {
		t.Errorf("7d range = [%d, %d]", start, end)
	}

	// "all" means no lower bound.
	if start, _ := s.TimeRange(ctx, "all", 0, 0, "", ""); start != 0 {
		t.Errorf("all range start = %d, want 0", start)
	}

	// Explicit bounds pass through.
	start, end = s.TimeRange(ctx, "", 100, 200, "", "")
	if start != 100 || end != 200 {
		t.Errorf("explicit range = [%d, %d], want [100, 200]", start, end)
	}

	// Inverted bounds clamp start to one day before end.
	start, end = s.TimeRange(ctx, "", 500000, 400000, "", "")
	if start != 400000-24*3600 || end != 400000 {
		t.Errorf("clamped range = [%d, %d]", start, end)
	}

	// No hints: a young wallet anchors at its creation time.
	wallet, _ := store.GetWallet(testEthAddr, "ethereum")
	created := now.Unix() - 90*24*3600
	if err := store.SetWalletCreation(wallet.ID, &created, "0xabc", nil, false); err != nil {
		t.Fatalf("SetWalletCreation() error = %v", err)
	}
	start, end = s.TimeRange(ctx, "", 0, 0, testEthAddr, "ethereum")
	if start != created || end != now.Unix() {
		t.Errorf("wallet-anchored range = [%d, %d], want [%d, %d]", start, end, created, now.Unix())
	}
}

func TestTimeRangeOldWalletDefaultsTo30Days(t *testing.T) {
	store := newTestStore(t)
	seedAsset(t, store)
	s := newTestScheduler(t, store, &fakePortfolio{}, &fakeDriver{})
	now := time.Unix(1700000000, 0)
	s.clock = func() time.Time { return now }

	wallet, _ := store.GetWallet(testEthAddr, "ethereum")
	created := now.Unix() - 3*365*24*3600
	if err := store.SetWalletCreation(wallet.ID, &created, "0xabc", nil, false); err != nil {
		t.Fatalf("SetWalletCreation() error = %v", err)
	}

	start, end := s.TimeRange(context.Background(), "", 0, 0, testEthAddr, "ethereum")
	if start != now.Unix()-30*24*3600 || end != now.Unix() {
		t.Errorf("old-wallet range = [%d, %d], want 30d window", start, end)
	}
}

func TestAssetTrend(t *testing.T) {
	store := newTestStore(t)
	row := seedAsset(t, store)
	s := newTestScheduler(t, store, &fakePortfolio{}, &fakeDriver{})

	t0 := int64(1700000000 - 1700000000%3600)
	if err := store.UpsertSnapshot(row.ID, t0, 1, 100); err != nil {
		t.Fatalf("UpsertSnapshot() error = %v", err)
	}
	if err := store.UpsertSnapshot(row.ID, t0+3600, 1, 150); err != nil {
		t.Fatalf("UpsertSnapshot() error = %v", err)
	}

	trend, err := s.AssetTrend(row.ID, 0, 0, 0)
	if err != nil {
		t.Fatalf("AssetTrend() error = %v", err)
	}
	if len(trend.Points) != 2 {
		t.Fatalf("got %d points, want 2", len(trend.Points))
	}
	if trend.First.ValueUSD != 100 || trend.Last.ValueUSD != 150 {
		t.Errorf("first/last = %v/%v, want 100/150", trend.First.ValueUSD, trend.Last.ValueUSD)
	}
	if trend.ChangeUSD != 50 || trend.ChangePercent != 50 {
		t.Errorf("change = %v (%v%%), want 50 (50%%)", trend.ChangeUSD, trend.ChangePercent)
	}

	empty, err := s.AssetTrend("no-such-asset", 0, 0, 0)
	if err != nil {
		t.Fatalf("AssetTrend() empty error = %v", err)
	}
	if len(empty.Points) != 0 || empty.First != nil {
		t.Errorf("empty trend = %+v, want no points", empty)
	}
}
