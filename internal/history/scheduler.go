// Package history runs the snapshot and back-fill jobs: hourly
// portfolio snapshots, approximate back-fill of missing hours, and
// retention cleanup, all cancellable within one iteration.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foliolabs/folio/internal/asset"
	"github.com/foliolabs/folio/internal/config"
	"github.com/foliolabs/folio/internal/driver"
	"github.com/foliolabs/folio/internal/storage"
	"github.com/foliolabs/folio/pkg/helpers"
	"github.com/foliolabs/folio/pkg/logging"
)

// errorSleep spaces retries after a failed scheduler pass.
const errorSleep = 5 * time.Minute

// interBatchSleep spaces back-fill batches to respect external rate
// limits.
const interBatchSleep = time.Second

// Portfolio values the tracked assets. *asset.Service satisfies it.
type Portfolio interface {
	Portfolio(ctx context.Context, filter *storage.AssetFilter) ([]*asset.Valuation, error)
}

// Drivers hands out connected chain drivers.
type Drivers interface {
	Driver(ctx context.Context, chainName string) (driver.Driver, error)
}

// Stats describes the scheduler's run history.
type Stats struct {
	IsUpdating     bool   `json:"is_updating"`
	TotalRuns      int64  `json:"total_runs"`
	SuccessfulRuns int64  `json:"successful_runs"`
	FailedRuns     int64  `json:"failed_runs"`
	LastError      string `json:"last_error,omitempty"`
	LastRunAt      int64  `json:"last_run_at,omitempty"`
}

// Scheduler owns the snapshot and back-fill jobs.
type Scheduler struct {
	cfg    *config.HistoryConfig
	store  *storage.Storage
	assets Portfolio
	driver Drivers
	log    *logging.Logger

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	stats Stats

	walletMu sync.Mutex
	wallets  map[string]*storage.Wallet // keyed addr_chain

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler.
func New(cfg *config.HistoryConfig, store *storage.Storage, assets Portfolio, drivers Drivers, log *logging.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		store:   store,
		assets:  assets,
		driver:  drivers,
		log:     log.Component("history"),
		clock:   time.Now,
		sleep:   sleepCtx,
		wallets: make(map[string]*storage.Wallet),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start launches the snapshot and back-fill loops. Stop cancels them
// and waits for the current iteration to finish.
func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	interval := time.Duration(s.cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = time.Hour
	}

	s.wg.Add(1)
	go s.loop(ctx, interval)
	s.log.Info("scheduler started", "interval", interval)
}

// Stop shuts the scheduler down and joins its goroutine.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx, false); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("scheduler pass failed", "error", err)
			if s.sleep(ctx, errorSleep) != nil {
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one snapshot + back-fill pass. Unless forced, a
// pass already in flight makes this a no-op.
func (s *Scheduler) RunOnce(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.stats.IsUpdating && !force {
		s.mu.Unlock()
		s.log.Debug("update already in progress, skipping")
		return nil
	}
	s.stats.IsUpdating = true
	s.stats.TotalRuns++
	s.mu.Unlock()

	err := s.runPass(ctx)

	s.mu.Lock()
	s.stats.IsUpdating = false
	s.stats.LastRunAt = s.clock().Unix()
	if err != nil {
		s.stats.FailedRuns++
		s.stats.LastError = err.Error()
	} else {
		s.stats.SuccessfulRuns++
		s.stats.LastError = ""
	}
	s.mu.Unlock()
	return err
}

func (s *Scheduler) runPass(ctx context.Context) error {
	if err := s.Snapshot(ctx); err != nil {
		return err
	}
	return s.Backfill(ctx)
}

// Snapshot values every active asset and upserts rows at the current
// aligned hour: a snapshot, a balance point, and a price point.
func (s *Scheduler) Snapshot(ctx context.Context) error {
	valuations, err := s.assets.Portfolio(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot valuation failed: %w", err)
	}

	now := helpers.AlignHour(s.clock().Unix())
	for _, v := range valuations {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.store.UpsertSnapshot(v.ID, now, v.Balance, v.PriceUSD); err != nil {
			return err
		}
		if err := s.store.UpsertBalancePoint(v.ID, now, v.Balance); err != nil {
			return err
		}
		if v.PriceUSD > 0 {
			if err := s.store.UpsertPricePoint(v.TokenID, now, v.PriceUSD, "snapshot"); err != nil {
				return err
			}
		}
	}
	s.log.Debug("snapshot complete", "assets", len(valuations), "timestamp", now)
	return nil
}

// Backfill writes approximate rows, using current values, at every
// aligned hour of the look-back window that is missing them: the
// snapshot, the balance point, and the price point each fill
// independently. Timestamps are processed in batches with a short
// sleep between batches.
func (s *Scheduler) Backfill(ctx context.Context) error {
	valuations, err := s.assets.Portfolio(ctx, nil)
	if err != nil {
		return fmt.Errorf("back-fill valuation failed: %w", err)
	}
	if len(valuations) == 0 {
		return nil
	}

	days := s.cfg.BackfillDays
	if days <= 0 {
		days = 7
	}
	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	end := helpers.AlignHour(s.clock().Unix())
	start := end - int64(days)*24*3600
	var hours []int64
	for ts := start; ts <= end; ts += 3600 {
		hours = append(hours, ts)
	}

	written := 0
	for i := 0; i < len(hours); i += batchSize {
		if i > 0 {
			if err := s.sleep(ctx, interBatchSleep); err != nil {
				return err
			}
		}
		batchEnd := i + batchSize
		if batchEnd > len(hours) {
			batchEnd = len(hours)
		}

		for _, ts := range hours[i:batchEnd] {
			for _, v := range valuations {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Approximation: current values stand in for the
				// missed observations. Hours that already have a row
				// keep it.
				n, err := s.backfillHour(v, ts)
				if err != nil {
					return err
				}
				written += n
			}
		}
	}
	if written > 0 {
		s.log.Info("back-fill complete", "rows", written, "hours", len(hours))
	}
	return nil
}

// backfillHour fills one asset's missing rows at one aligned hour:
// the snapshot, the balance point, and (for priced tokens) the price
// point. Returns how many rows it wrote.
func (s *Scheduler) backfillHour(v *asset.Valuation, ts int64) (int, error) {
	written := 0

	hasSnap, err := s.store.HasSnapshot(v.ID, ts)
	if err != nil {
		return written, err
	}
	if !hasSnap {
		if err := s.store.UpsertSnapshot(v.ID, ts, v.Balance, v.PriceUSD); err != nil {
			return written, err
		}
		written++
	}

	hasBalance, err := s.store.HasBalancePoint(v.ID, ts)
	if err != nil {
		return written, err
	}
	if !hasBalance {
		if err := s.store.UpsertBalancePoint(v.ID, ts, v.Balance); err != nil {
			return written, err
		}
		written++
	}

	if v.PriceUSD > 0 {
		hasPrice, err := s.store.HasPricePoint(v.TokenID, ts)
		if err != nil {
			return written, err
		}
		if !hasPrice {
			if err := s.store.UpsertPricePoint(v.TokenID, ts, v.PriceUSD, "backfill"); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// Cleanup deletes history rows older than the retention window and
// returns how many went.
func (s *Scheduler) Cleanup() (int64, error) {
	years := s.cfg.RetentionYears
	if years <= 0 {
		years = 3
	}
	cutoff := s.clock().Unix() - int64(years)*365*24*3600
	deleted, err := s.store.DeleteHistoryBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("history cleanup", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Stats returns a copy of the run counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// WalletCreation returns a wallet's creation metadata, resolving it
// through the chain driver on first request and caching it in memory
// and in the wallet row.
func (s *Scheduler) WalletCreation(ctx context.Context, address, chainName string) (*storage.Wallet, error) {
	key := address + "_" + chainName

	s.walletMu.Lock()
	if w, ok := s.wallets[key]; ok {
		s.walletMu.Unlock()
		return w, nil
	}
	s.walletMu.Unlock()

	wallet, err := s.store.GetWallet(address, chainName)
	if err != nil {
		return nil, err
	}
	if wallet.CreationTimestamp == nil && !wallet.IsEstimated {
		wallet = s.resolveCreation(ctx, wallet)
	}

	s.walletMu.Lock()
	s.wallets[key] = wallet
	s.walletMu.Unlock()
	return wallet, nil
}

func (s *Scheduler) resolveCreation(ctx context.Context, wallet *storage.Wallet) *storage.Wallet {
	drv, err := s.driver.Driver(ctx, wallet.Blockchain)
	if err != nil {
		s.log.Debug("wallet creation lookup skipped", "chain", wallet.Blockchain, "error", err)
		return wallet
	}
	first, err := drv.FirstTransactionTime(ctx, wallet.Address)
	if err != nil {
		s.log.Debug("first transaction lookup failed", "address", wallet.Address, "error", err)
		return wallet
	}

	var ts *int64
	if first.Timestamp != nil {
		unix := first.Timestamp.Unix()
		ts = &unix
	}
	if err := s.store.SetWalletCreation(wallet.ID, ts, first.TxHash, first.BlockNumber, first.Estimated); err != nil {
		s.log.Warn("failed to persist wallet creation", "wallet", wallet.ID, "error", err)
		return wallet
	}
	fresh, err := s.store.GetWalletByID(wallet.ID)
	if err != nil {
		return wallet
	}
	return fresh
}
