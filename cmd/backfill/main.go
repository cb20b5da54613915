// Package main runs a one-shot historical backfill: depositor events and
// deposit records from the history server, then daily vault snapshots
// reconstructed from the event log.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"circuit-vaults-service/internal/history"
	"circuit-vaults-service/internal/pricing"
	"circuit-vaults-service/internal/snapshotter"
	"circuit-vaults-service/internal/storage/migrations"
	pgstore "circuit-vaults-service/internal/storage/postgres"
	"circuit-vaults-service/internal/vaults"
)

func main() {
	godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	priceAPIURL := flag.String("price-api-url", os.Getenv("PRICE_API_URL"), "Price history API base URL")
	historyAPIURL := flag.String("history-api-url", os.Getenv("HISTORY_API_URL"), "Deposit history server base URL")
	vaultsConfig := flag.String("vaults-config", envOr("VAULTS_CONFIG", "vaults.json"), "Path to vault registry JSON")
	users := flag.String("users", os.Getenv("BACKFILL_USERS"), "Comma-separated users for deposit backfill")
	skipDeposits := flag.Bool("skip-deposits", false, "Skip the deposit fetch, only rebuild daily snapshots")
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall run timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[backfill] ", log.LstdFlags|log.Lshortfile)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if *priceAPIURL == "" {
		logger.Fatal("--price-api-url is required")
	}
	if !*skipDeposits && *historyAPIURL == "" {
		logger.Fatal("--history-api-url is required unless --skip-deposits is set")
	}

	registry, err := vaults.LoadRegistry(*vaultsConfig)
	if err != nil {
		logger.Fatalf("Failed to load vault registry: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	records := pgstore.NewVaultDepositorRecordStore(pool)
	snapshots := pgstore.NewVaultSnapshotStore(pool)
	depositorSnapshots := pgstore.NewVaultDepositorSnapshotStore(pool)
	deposits := pgstore.NewDepositRecordStore(pool)

	writer := snapshotter.NewWriter(snapshots, depositorSnapshots,
		log.New(os.Stdout, "[writer] ", log.LstdFlags))

	var source *history.Client
	if *historyAPIURL != "" {
		source = history.NewClient(*historyAPIURL)
	}

	backfiller := snapshotter.NewBackfiller(registry, records, deposits,
		source, source, pricing.NewClient(*priceAPIURL), writer, logger)

	if source != nil {
		n, err := backfiller.BackfillDepositorEvents(ctx)
		if err != nil {
			logger.Fatalf("Event backfill failed: %v", err)
		}
		logger.Printf("Event backfill complete: %d depositor events inserted", n)
	}

	if !*skipDeposits {
		userList := splitList(*users)
		if len(userList) == 0 {
			logger.Fatal("--users is required unless --skip-deposits is set")
		}
		n, err := backfiller.BackfillDeposits(ctx, userList)
		if err != nil {
			logger.Fatalf("Deposit backfill failed: %v", err)
		}
		logger.Printf("Deposit backfill complete: %d records inserted", n)
	}

	start := time.Now()
	n, err := backfiller.BackfillDailySnapshots(ctx, time.Now().Unix())
	if err != nil {
		logger.Fatalf("Daily snapshot backfill failed: %v", err)
	}
	logger.Printf("Daily snapshot backfill complete in %v: %d rows inserted", time.Since(start), n)
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
