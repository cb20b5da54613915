// Package snapshotter computes and persists point-in-time vault snapshots:
// it replays depositor events into reconstructed state, values the vault at
// the current oracle price, and writes the result in bounded chunks.
package snapshotter

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/observability"
	"circuit-vaults-service/internal/vaults"
)

// Orchestration defaults.
const (
	DefaultWorkers      = 4
	DefaultMaxAttempts  = 3 // initial try plus two retries
	DefaultRetryBackoff = 1 * time.Second
	MaxRetryBackoff     = 5 * time.Second
)

// ChainReader reads live vault valuation from the chain.
type ChainReader interface {
	CurrentEquity(ctx context.Context, v *domain.Vault) (*vaults.Equity, error)
}

// Result summarizes one snapshot run.
type Result struct {
	VaultsProcessed    int
	VaultsFailed       int
	SnapshotsInserted  int
	DepositorsInserted int
	FailedChunks       int
}

// Snapshotter runs the snapshot pipeline over the configured vault set. Each
// vault's fetch-and-compute phase is retried on failure; a vault that still
// fails after all attempts aborts only itself.
type Snapshotter struct {
	registry *vaults.Registry
	reader   *Reader
	writer   *Writer
	chain    ChainReader
	logger   *log.Logger

	workers      int
	maxAttempts  int
	retryBackoff time.Duration
}

// NewSnapshotter creates a snapshot orchestrator.
func NewSnapshotter(
	registry *vaults.Registry,
	reader *Reader,
	writer *Writer,
	chain ChainReader,
	logger *log.Logger,
) *Snapshotter {
	return &Snapshotter{
		registry:     registry,
		reader:       reader,
		writer:       writer,
		chain:        chain,
		logger:       logger,
		workers:      DefaultWorkers,
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
	}
}

// WithWorkers overrides the fan-out width.
func (s *Snapshotter) WithWorkers(n int) *Snapshotter {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithRetry overrides the per-vault retry policy, mainly for tests.
func (s *Snapshotter) WithRetry(maxAttempts int, backoff time.Duration) *Snapshotter {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if backoff > 0 {
		s.retryBackoff = backoff
	}
	return s
}

// vaultOutput is the computed state for one vault before persistence.
type vaultOutput struct {
	snapshot   *domain.VaultSnapshot
	depositors []*domain.VaultDepositorSnapshot
}

// Run computes and persists a snapshot for every configured vault. Vaults are
// processed concurrently on a bounded pool; all successful outputs are then
// written in chunks regardless of how many vaults failed.
func (s *Snapshotter) Run(ctx context.Context) (*Result, error) {
	all := s.registry.All()
	if len(all) == 0 {
		return &Result{}, nil
	}

	var (
		mu      sync.Mutex
		outputs []*vaultOutput
		failed  int
	)

	pool := pond.NewPool(s.workers)
	for _, v := range all {
		vault := v
		pool.Submit(func() {
			started := time.Now()
			out, err := s.computeWithRetry(ctx, vault)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				observability.RecordSnapshotRun(vault.Address, "error", time.Since(started).Seconds())
				s.logger.Printf("vault %s: snapshot failed after %d attempts: %v", vault.Address, s.maxAttempts, err)
				return
			}
			if out != nil {
				outputs = append(outputs, out)
				observability.DefaultMetrics.SnapshotsComputed.Inc()
			}
			observability.RecordSnapshotRun(vault.Address, "ok", time.Since(started).Seconds())
		})
	}
	pool.StopAndWait()

	res := &Result{
		VaultsProcessed: len(all),
		VaultsFailed:    failed,
	}

	var snaps []*domain.VaultSnapshot
	var depSnaps []*domain.VaultDepositorSnapshot
	for _, out := range outputs {
		snaps = append(snaps, out.snapshot)
		depSnaps = append(depSnaps, out.depositors...)
	}

	inserted, failedChunks := s.writer.WriteVaultSnapshots(ctx, snaps)
	res.SnapshotsInserted = inserted
	res.FailedChunks += failedChunks
	observability.RecordSnapshotInserts("vault_snapshots", inserted, failedChunks)

	inserted, failedChunks = s.writer.WriteDepositorSnapshots(ctx, depSnaps)
	res.DepositorsInserted = inserted
	res.FailedChunks += failedChunks
	observability.RecordSnapshotInserts("vault_depositor_snapshots", inserted, failedChunks)

	if failed == len(all) {
		return res, fmt.Errorf("all %d vaults failed", failed)
	}
	observability.DefaultMetrics.LastSuccessfulSnapshot.SetToCurrentTime()
	return res, nil
}

// computeWithRetry wraps the fetch-and-compute phase in a bounded retry loop
// with backoff. Writes are not retried here; the writer has its own
// skip-on-failure semantics.
func (s *Snapshotter) computeWithRetry(ctx context.Context, v *domain.Vault) (*vaultOutput, error) {
	backoff := s.retryBackoff
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			observability.DefaultMetrics.VaultComputeRetries.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > MaxRetryBackoff {
				backoff = MaxRetryBackoff
			}
		}

		out, err := s.compute(ctx, v)
		if err == nil {
			return out, nil
		}
		lastErr = err
		s.logger.Printf("vault %s: attempt %d/%d failed: %v", v.Address, attempt, s.maxAttempts, err)
	}

	return nil, lastErr
}

// compute builds one vault's snapshot output. Returns (nil, nil) when the
// chain has not advanced past the latest persisted snapshot.
func (s *Snapshotter) compute(ctx context.Context, v *domain.Vault) (*vaultOutput, error) {
	events, latest, err := s.reader.Read(ctx, v.Address)
	if err != nil {
		return nil, err
	}

	equity, err := s.chain.CurrentEquity(ctx, v)
	if err != nil {
		return nil, err
	}
	observability.UpdateHighestSlot(equity.Slot)

	if latest != nil && latest.Slot >= equity.Slot {
		return nil, nil
	}

	state, err := ReplayEvents(events, equity.Ts, v.Manager)
	if err != nil {
		return nil, err
	}

	profitShare, mgmtFee := sumFees(events, equity.Ts)

	snap := &domain.VaultSnapshot{
		Vault:                   v.Address,
		Ts:                      equity.Ts,
		Slot:                    equity.Slot,
		OraclePrice:             equity.OraclePrice,
		TotalAccountQuoteValue:  equity.QuoteValue,
		TotalAccountBaseValue:   equity.BaseValue,
		NetDeposits:             state.NetDeposits,
		TotalDeposits:           state.TotalDeposits,
		TotalWithdraws:          state.TotalWithdraws,
		ManagerNetDeposits:      state.ManagerNetDeposits,
		ManagerTotalDeposits:    state.ManagerTotalDeposits,
		ManagerTotalWithdraws:   state.ManagerTotalWithdraws,
		ManagerTotalProfitShare: profitShare,
		ManagerTotalFee:         mgmtFee,
		UserShares:              state.UserShares,
		TotalShares:             state.TotalShares,
	}

	return &vaultOutput{
		snapshot:   snap,
		depositors: buildDepositorSnapshots(events, equity),
	}, nil
}

// sumFees accumulates profit share and management fee charged by events up to
// the cutoff.
func sumFees(events []*domain.VaultDepositorEvent, cutoffTs int64) (*big.Int, *big.Int) {
	profitShare := new(big.Int)
	mgmtFee := new(big.Int)
	for _, e := range events {
		if e.Ts > cutoffTs {
			continue
		}
		if e.ProfitShareAmount != nil {
			profitShare.Add(profitShare, e.ProfitShareAmount)
		}
		if e.ManagementFeeAmount != nil {
			mgmtFee.Add(mgmtFee, e.ManagementFeeAmount)
		}
	}
	return profitShare, mgmtFee
}
