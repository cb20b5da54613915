// Package main runs one snapshot tick over the configured vault set. Used by
// operators to re-run after a partial failure left gaps.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"circuit-vaults-service/internal/pricing"
	"circuit-vaults-service/internal/snapshotter"
	"circuit-vaults-service/internal/solana"
	"circuit-vaults-service/internal/storage/migrations"
	pgstore "circuit-vaults-service/internal/storage/postgres"
	"circuit-vaults-service/internal/vaults"
)

func main() {
	godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	priceAPIURL := flag.String("price-api-url", os.Getenv("PRICE_API_URL"), "Price history API base URL")
	vaultsConfig := flag.String("vaults-config", envOr("VAULTS_CONFIG", "vaults.json"), "Path to vault registry JSON")
	workers := flag.Int("workers", snapshotter.DefaultWorkers, "Snapshot fan-out width")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall run timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[snapshot] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if *priceAPIURL == "" {
		logger.Fatal("--price-api-url is required")
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

	chain := vaults.NewClient(solana.NewHTTPClient(*rpcEndpoint), pricing.NewClient(*priceAPIURL))
	reader := snapshotter.NewReader(records, snapshots)
	writer := snapshotter.NewWriter(snapshots, depositorSnapshots,
		log.New(os.Stdout, "[writer] ", log.LstdFlags))

	snap := snapshotter.NewSnapshotter(registry, reader, writer, chain, logger).WithWorkers(*workers)

	start := time.Now()
	res, err := snap.Run(ctx)
	if err != nil {
		logger.Fatalf("Snapshot run failed: %v", err)
	}
	logger.Printf("Snapshot run complete in %v: %d vaults (%d failed), %d snapshot rows, %d depositor rows, %d failed chunks",
		time.Since(start), res.VaultsProcessed, res.VaultsFailed,
		res.SnapshotsInserted, res.DepositorsInserted, res.FailedChunks)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
