package snapshotter

import (
	"context"
	"fmt"
	"log"
	"time"

	"circuit-vaults-service/internal/solana"
	"circuit-vaults-service/internal/vaults"
)

// DefaultWatchDebounce batches bursts of account notifications into one run.
const DefaultWatchDebounce = 5 * time.Second

// AccountStream subscribes to on-chain account change notifications.
type AccountStream interface {
	SubscribeAccount(ctx context.Context, address string) (<-chan solana.AccountUpdate, error)
}

// SnapshotRunner runs one snapshot tick over all vaults.
type SnapshotRunner interface {
	Run(ctx context.Context) (*Result, error)
}

// Watcher subscribes to every configured vault account and triggers a
// snapshot run when one changes on chain, so snapshots land close to the
// activity instead of waiting for the next scheduled tick. Runs for a slot
// already persisted are skipped by the pipeline, so spurious triggers are
// harmless.
type Watcher struct {
	registry *vaults.Registry
	stream   AccountStream
	runner   SnapshotRunner
	debounce time.Duration
	logger   *log.Logger
}

// NewWatcher creates a vault account watcher.
func NewWatcher(registry *vaults.Registry, stream AccountStream, runner SnapshotRunner, logger *log.Logger) *Watcher {
	return &Watcher{
		registry: registry,
		stream:   stream,
		runner:   runner,
		debounce: DefaultWatchDebounce,
		logger:   logger,
	}
}

// WithDebounce overrides the notification debounce window, mainly for tests.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Watch subscribes to all vault accounts and blocks, triggering a snapshot
// run once the stream has been quiet for the debounce window. Returns when
// ctx is cancelled or a subscription cannot be established.
func (w *Watcher) Watch(ctx context.Context) error {
	updates := make(chan solana.AccountUpdate)

	for _, v := range w.registry.All() {
		ch, err := w.stream.SubscribeAccount(ctx, v.Address)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", v.Address, err)
		}
		go func() {
			for u := range ch {
				select {
				case updates <- u:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-updates:
			w.logger.Printf("vault %s changed at slot %d", u.Address, u.Slot)
			timer.Reset(w.debounce)
		case <-timer.C:
			if _, err := w.runner.Run(ctx); err != nil {
				w.logger.Printf("triggered snapshot run: %v", err)
			}
		}
	}
}
