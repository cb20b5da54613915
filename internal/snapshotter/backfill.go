package snapshotter

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"circuit-vaults-service/internal/domain"
	"circuit-vaults-service/internal/observability"
	"circuit-vaults-service/internal/storage"
	"circuit-vaults-service/internal/valuation"
	"circuit-vaults-service/internal/vaults"
)

// DepositSource fetches deposit history newer than a timestamp.
type DepositSource interface {
	DepositsSince(ctx context.Context, user string, sinceTs int64) ([]*domain.DepositRecord, error)
}

// EventSource fetches depositor event history newer than a slot.
type EventSource interface {
	DepositorEventsSince(ctx context.Context, vault string, sinceSlot int64) ([]*domain.VaultDepositorEvent, error)
}

// PriceSource resolves a historical oracle price.
type PriceSource interface {
	PriceAt(ctx context.Context, symbol string, ts int64) (*big.Int, error)
}

// Backfiller fills historical gaps: depositor events and deposit records from
// the history server, and daily vault snapshots reconstructed from the event
// log.
type Backfiller struct {
	registry *vaults.Registry
	records  storage.VaultDepositorRecordStore
	deposits storage.DepositRecordStore
	history  DepositSource
	events   EventSource
	prices   PriceSource
	writer   *Writer
	logger   *log.Logger
}

// NewBackfiller creates a backfiller.
func NewBackfiller(
	registry *vaults.Registry,
	records storage.VaultDepositorRecordStore,
	deposits storage.DepositRecordStore,
	history DepositSource,
	events EventSource,
	prices PriceSource,
	writer *Writer,
	logger *log.Logger,
) *Backfiller {
	return &Backfiller{
		registry: registry,
		records:  records,
		deposits: deposits,
		history:  history,
		events:   events,
		prices:   prices,
		writer:   writer,
		logger:   logger,
	}
}

// BackfillDepositorEvents pulls each vault's depositor events newer than its
// latest stored slot and inserts them, skipping duplicates. This feeds the
// event log that replay, APY refreshes, and daily snapshots read.
func (b *Backfiller) BackfillDepositorEvents(ctx context.Context) (int, error) {
	total := 0

	for _, v := range b.registry.All() {
		since, err := b.records.LatestSlot(ctx, v.Address)
		if err != nil {
			observability.DefaultMetrics.BackfillRunsTotal.WithLabelValues("error").Inc()
			return total, fmt.Errorf("latest event slot for %s: %w", v.Address, err)
		}

		events, err := b.events.DepositorEventsSince(ctx, v.Address, since)
		if err != nil {
			observability.DefaultMetrics.BackfillRunsTotal.WithLabelValues("error").Inc()
			return total, fmt.Errorf("fetch events for %s: %w", v.Address, err)
		}
		observability.DefaultMetrics.DepositorEventsFetched.Add(float64(len(events)))
		if len(events) == 0 {
			continue
		}

		n, err := b.records.InsertBulk(ctx, events)
		if err != nil {
			observability.DefaultMetrics.BackfillRunsTotal.WithLabelValues("error").Inc()
			return total, fmt.Errorf("insert events for %s: %w", v.Address, err)
		}
		observability.DefaultMetrics.DepositorEventsStored.Add(float64(n))
		total += n
		b.logger.Printf("vault %s: %d depositor events inserted (%d fetched)", v.Address, n, len(events))
	}

	observability.DefaultMetrics.BackfillRunsTotal.WithLabelValues("ok").Inc()
	observability.DefaultMetrics.LastSuccessfulBackfill.SetToCurrentTime()
	return total, nil
}

// BackfillDeposits pulls each user's deposit history newer than their latest
// stored record and inserts it, skipping duplicates.
func (b *Backfiller) BackfillDeposits(ctx context.Context, users []string) (int, error) {
	total := 0

	for _, user := range users {
		since, err := b.deposits.LatestTs(ctx, user)
		if err != nil {
			observability.DefaultMetrics.BackfillRunsTotal.WithLabelValues("error").Inc()
			return total, fmt.Errorf("latest deposit ts for %s: %w", user, err)
		}

		recs, err := b.history.DepositsSince(ctx, user, since)
		if err != nil {
			observability.DefaultMetrics.BackfillRunsTotal.WithLabelValues("error").Inc()
			return total, fmt.Errorf("fetch deposits for %s: %w", user, err)
		}
		observability.DefaultMetrics.DepositRecordsFetched.Add(float64(len(recs)))
		if len(recs) == 0 {
			continue
		}

		n, err := b.deposits.InsertBulk(ctx, recs)
		if err != nil {
			observability.DefaultMetrics.BackfillRunsTotal.WithLabelValues("error").Inc()
			return total, fmt.Errorf("insert deposits for %s: %w", user, err)
		}
		observability.DefaultMetrics.DepositRecordsStored.Add(float64(n))
		total += n
		b.logger.Printf("user %s: %d deposit records inserted (%d fetched)", user, n, len(recs))
	}

	observability.DefaultMetrics.BackfillRunsTotal.WithLabelValues("ok").Inc()
	observability.DefaultMetrics.LastSuccessfulBackfill.SetToCurrentTime()
	return total, nil
}

// BackfillDailySnapshots reconstructs one snapshot per day per vault from the
// earliest event up to untilTs. Historical equity is not directly observable;
// each day is valued at the equity-before figure of the last event at or
// before the day boundary, which is exact whenever an event landed that day.
func (b *Backfiller) BackfillDailySnapshots(ctx context.Context, untilTs int64) (int, error) {
	var all []*domain.VaultSnapshot

	for _, v := range b.registry.All() {
		events, err := b.records.GetByVault(ctx, v.Address)
		if err != nil {
			return 0, fmt.Errorf("read events for %s: %w", v.Address, err)
		}
		if len(events) == 0 {
			continue
		}

		snaps, err := b.dailySnapshots(ctx, v, events, untilTs)
		if err != nil {
			return 0, fmt.Errorf("daily snapshots for %s: %w", v.Address, err)
		}
		all = append(all, snaps...)
	}

	inserted, failedChunks := b.writer.WriteVaultSnapshots(ctx, all)
	observability.RecordSnapshotInserts("vault_snapshots", inserted, failedChunks)
	if failedChunks > 0 {
		b.logger.Printf("daily backfill: %d chunks skipped, re-run to fill gaps", failedChunks)
	}
	return inserted, nil
}

const secondsPerDay = 86400

func (b *Backfiller) dailySnapshots(
	ctx context.Context,
	v *domain.Vault,
	events []*domain.VaultDepositorEvent,
	untilTs int64,
) ([]*domain.VaultSnapshot, error) {
	firstDay := (events[0].Ts / secondsPerDay) * secondsPerDay
	var out []*domain.VaultSnapshot

	for day := firstDay + secondsPerDay; day <= untilTs; day += secondsPerDay {
		state, err := ReplayEvents(events, day, v.Manager)
		if err != nil {
			return nil, err
		}

		quoteValue, slot := equityAt(events, day)
		if quoteValue == nil {
			continue
		}

		price, err := valuation.PriceFor(v, func() (*big.Int, error) {
			return b.prices.PriceAt(ctx, v.MarketSymbol, day)
		})
		if err != nil {
			return nil, err
		}

		baseValue, err := valuation.QuoteToBase(quoteValue, price, v.BasePrecisionExp)
		if err != nil {
			return nil, err
		}

		profitShare, mgmtFee := sumFees(events, day)

		out = append(out, &domain.VaultSnapshot{
			Vault:                   v.Address,
			Ts:                      day,
			Slot:                    slot,
			OraclePrice:             price,
			TotalAccountQuoteValue:  quoteValue,
			TotalAccountBaseValue:   baseValue,
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
		})
	}

	return out, nil
}

// equityAt returns the vault equity observed closest before cutoff and the
// slot it was observed at, nil when no event precedes the cutoff.
func equityAt(events []*domain.VaultDepositorEvent, cutoffTs int64) (*big.Int, int64) {
	var equity *big.Int
	var slot int64
	for _, e := range events {
		if e.Ts > cutoffTs {
			break
		}
		if e.VaultEquityBefore != nil {
			equity = e.VaultEquityBefore
			slot = e.Slot
		}
	}
	return equity, slot
}
