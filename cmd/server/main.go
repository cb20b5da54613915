// Package main runs the unified vaults service:
// - HTTP API (snapshots, depositor records, cached APY, cron triggers)
// - scheduled snapshot ticks and APY refreshes
// - scheduled deposit backfills from the history server
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"circuit-vaults-service/internal/api"
	"circuit-vaults-service/internal/history"
	"circuit-vaults-service/internal/pricing"
	"circuit-vaults-service/internal/snapshotter"
	"circuit-vaults-service/internal/solana"
	"circuit-vaults-service/internal/storage"
	chstore "circuit-vaults-service/internal/storage/clickhouse"
	"circuit-vaults-service/internal/storage/memory"
	"circuit-vaults-service/internal/storage/migrations"
	pgstore "circuit-vaults-service/internal/storage/postgres"
	"circuit-vaults-service/internal/vaults"
)

// appStores holds all storage implementations.
type appStores struct {
	records            storage.VaultDepositorRecordStore
	snapshots          storage.VaultSnapshotStore
	depositorSnapshots storage.VaultDepositorSnapshotStore
	deposits           storage.DepositRecordStore
	mirror             *chstore.SnapshotTimeseriesStore // nil unless ClickHouse is configured
}

func main() {
	// Load .env file if exists; system env vars win.
	godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana RPC WebSocket endpoint (optional, enables change-triggered snapshots)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional mirror)")
	priceAPIURL := flag.String("price-api-url", os.Getenv("PRICE_API_URL"), "Price history API base URL")
	historyAPIURL := flag.String("history-api-url", os.Getenv("HISTORY_API_URL"), "Deposit history server base URL")
	vaultsConfig := flag.String("vaults-config", envOr("VAULTS_CONFIG", "vaults.json"), "Path to vault registry JSON")
	cronSecret := flag.String("cron-secret", os.Getenv("CRON_SECRET"), "Bearer secret for cron trigger endpoints")
	backfillUsers := flag.String("backfill-users", os.Getenv("BACKFILL_USERS"), "Comma-separated users for deposit backfill")
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	snapshotSchedule := flag.String("snapshot-schedule", envOr("SNAPSHOT_SCHEDULE", "@hourly"), "Cron schedule for snapshot ticks")
	backfillSchedule := flag.String("backfill-schedule", envOr("BACKFILL_SCHEDULE", "@every 6h"), "Cron schedule for deposit backfills")
	workers := flag.Int("workers", snapshotter.DefaultWorkers, "Snapshot fan-out width")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *priceAPIURL == "" {
		logger.Fatal("--price-api-url is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if *cronSecret == "" {
		logger.Fatal("--cron-secret is required")
	}

	registry, err := vaults.LoadRegistry(*vaultsConfig)
	if err != nil {
		logger.Fatalf("Failed to load vault registry: %v", err)
	}
	logger.Printf("Tracking %d vaults", registry.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	prices := pricing.NewClient(*priceAPIURL)
	chain := vaults.NewClient(rpc, prices)

	reader := snapshotter.NewReader(stores.records, stores.snapshots)
	writer := snapshotter.NewWriter(stores.snapshots, stores.depositorSnapshots,
		log.New(os.Stdout, "[writer] ", log.LstdFlags))
	if stores.mirror != nil {
		writer.WithMirror(stores.mirror)
	}

	snap := snapshotter.NewSnapshotter(registry, reader, writer, chain,
		log.New(os.Stdout, "[snapshot] ", log.LstdFlags)).WithWorkers(*workers)

	appState := snapshotter.NewAppState()
	apy := snapshotter.NewAPYCalculator(registry, stores.records, chain, appState,
		log.New(os.Stdout, "[apy] ", log.LstdFlags))

	var backfill *snapshotter.Backfiller
	if *historyAPIURL != "" {
		historyClient := history.NewClient(*historyAPIURL)
		backfill = snapshotter.NewBackfiller(registry, stores.records, stores.deposits,
			historyClient, historyClient, prices, writer,
			log.New(os.Stdout, "[backfill] ", log.LstdFlags))
	}

	users := splitList(*backfillUsers)

	// Scheduled loops. The HTTP cron endpoints trigger the same work on demand.
	scheduler := cron.New()
	scheduler.AddFunc(*snapshotSchedule, func() {
		if _, err := snap.Run(ctx); err != nil {
			logger.Printf("Scheduled snapshot run: %v", err)
		}
		if err := apy.Refresh(ctx); err != nil {
			logger.Printf("Scheduled APY refresh: %v", err)
		}
	})
	if backfill != nil {
		scheduler.AddFunc(*backfillSchedule, func() {
			if _, err := backfill.BackfillDepositorEvents(ctx); err != nil {
				logger.Printf("Scheduled event backfill: %v", err)
			}
			if len(users) == 0 {
				return
			}
			if _, err := backfill.BackfillDeposits(ctx, users); err != nil {
				logger.Printf("Scheduled deposit backfill: %v", err)
			}
		})
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Change-triggered snapshots: subscribe to every vault account and run a
	// tick shortly after on-chain activity instead of waiting for the schedule.
	if *wsEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Fatalf("Failed to connect websocket: %v", err)
		}
		defer ws.Close()

		watcher := snapshotter.NewWatcher(registry, ws, snap,
			log.New(os.Stdout, "[watch] ", log.LstdFlags))
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("Vault account watcher stopped: %v", err)
			}
		}()
	}

	var chartSource api.ChartSource = stores.snapshots
	if stores.mirror != nil {
		chartSource = stores.mirror
	}

	server := api.NewServer(api.Config{
		Charts:        chartSource,
		Records:       stores.records,
		Deposits:      stores.deposits,
		AppState:      appState,
		Snapshots:     snap,
		Backfill:      backfillOrNoop(backfill),
		BackfillUsers: users,
		CronSecret:    *cronSecret,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:         *listenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server listening on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, shutting down...", sig)
	case err := <-errCh:
		logger.Printf("HTTP server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Shutdown error: %v", err)
	}
	cancel()

	logger.Println("Shutdown complete")
}

// createStores creates all required stores and runs migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*appStores, func(), error) {
	if useMemory {
		stores := &appStores{
			records:            memory.NewVaultDepositorRecordStore(),
			snapshots:          memory.NewVaultSnapshotStore(),
			depositorSnapshots: memory.NewVaultDepositorSnapshotStore(),
			deposits:           memory.NewDepositRecordStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	stores := &appStores{
		records:            pgstore.NewVaultDepositorRecordStore(pool),
		snapshots:          pgstore.NewVaultSnapshotStore(pool),
		depositorSnapshots: pgstore.NewVaultDepositorSnapshotStore(pool),
		deposits:           pgstore.NewDepositRecordStore(pool),
	}

	cleanup := func() { pool.Close() }

	if clickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		stores.mirror = chstore.NewSnapshotTimeseriesStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}

// noopBackfill serves the cron endpoint when no history server is configured.
type noopBackfill struct{}

func (noopBackfill) BackfillDepositorEvents(context.Context) (int, error) {
	return 0, nil
}

func (noopBackfill) BackfillDeposits(context.Context, []string) (int, error) {
	return 0, nil
}

func backfillOrNoop(b *snapshotter.Backfiller) api.BackfillTrigger {
	if b == nil {
		return noopBackfill{}
	}
	return b
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
