// Package main runs one scoring pass over pending transfer links and exits.
// Useful for operator-triggered rescoring and cron-style batch runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"solana-autolink/internal/matching"
	chstore "solana-autolink/internal/storage/clickhouse"
	"solana-autolink/internal/storage/migrations"
	pgstore "solana-autolink/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional analytics)")
	signature := flag.String("signature", "", "Restrict the pass to one signature")
	force := flag.Bool("force", false, "Ignore the per-link cooldown")

	flag.Parse()

	logger := log.New(os.Stdout, "[matcher] ", log.LstdFlags|log.Lshortfile)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	opts := matching.Options{
		LinkStore:     pgstore.NewLinkStore(pool),
		WalletStore:   pgstore.NewWalletStore(pool),
		HistoryStore:  pgstore.NewLedgerTransactionStore(pool),
		RawEventStore: pgstore.NewRawEventStore(pool),
		SettingsStore: pgstore.NewSettingsStore(pool),
		Logger:        logger,
	}

	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Failed to run clickhouse migrations: %v", err)
		}
		defer conn.Close()
		opts.OutcomeStore = chstore.NewMatchOutcomeStore(conn)
	}

	engine := matching.NewEngine(opts)

	stats, err := engine.ProcessPending(ctx, matching.ProcessOptions{
		Signature: *signature,
		Force:     *force,
	})
	if err != nil {
		logger.Fatalf("Scoring pass failed: %v", err)
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		logger.Fatalf("Failed to encode stats: %v", err)
	}
	fmt.Println(string(out))
}
