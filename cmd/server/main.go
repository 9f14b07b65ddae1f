// Package main runs the full auto-link service:
// - Ingest (continuous): WebSocket subscriptions feeding the parser
// - Matching (scheduled): scoring passes over pending links
// - Control API: auto-link operations, settings and subscriptions over HTTP
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"solana-autolink/internal/api"
	"solana-autolink/internal/ingest"
	"solana-autolink/internal/matching"
	"solana-autolink/internal/notify"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/parser"
	"solana-autolink/internal/solana"
	"solana-autolink/internal/storage"
	chstore "solana-autolink/internal/storage/clickhouse"
	"solana-autolink/internal/storage/memory"
	"solana-autolink/internal/storage/migrations"
	pgstore "solana-autolink/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	links         storage.LinkStore
	settings      storage.SettingsStore
	subscriptions storage.SubscriptionStore
	rawEvents     storage.RawEventStore
	notifications storage.NotificationStore
	pushEndpoints storage.PushEndpointStore
	preferences   storage.PreferencesStore
	wallets       storage.WalletStore
	ledger        storage.LedgerTransactionStore
	outcomes      storage.MatchOutcomeStore
}

func main() {
	// Load .env if present; system env vars win.
	_ = godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional analytics)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	httpAddr := flag.String("http-addr", ":8080", "Control API HTTP address")
	matchInterval := flag.Duration("match-interval", time.Minute, "Interval between scoring passes")
	workers := flag.Int("workers", ingest.DefaultWorkers, "Stream frame worker count")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(*rpcEndpoint)

	streamParser := parser.New(parser.Options{
		RPC:           rpc,
		RawEventStore: stores.rawEvents,
		LinkStore:     stores.links,
		WalletStore:   stores.wallets,
		SettingsStore: stores.settings,
		Logger:        log.New(os.Stdout, "[parser] ", log.LstdFlags|log.Lshortfile),
	})

	dispatcher := notify.New(notify.Options{
		NotificationStore: stores.notifications,
		PushEndpointStore: stores.pushEndpoints,
		PreferencesStore:  stores.preferences,
		Logger:            log.New(os.Stdout, "[notify] ", log.LstdFlags|log.Lshortfile),
	})

	engine := matching.NewEngine(matching.Options{
		LinkStore:     stores.links,
		WalletStore:   stores.wallets,
		HistoryStore:  stores.ledger,
		RawEventStore: stores.rawEvents,
		SettingsStore: stores.settings,
		OutcomeStore:  stores.outcomes,
		Notifier:      dispatcher,
		Logger:        log.New(os.Stdout, "[matching] ", log.LstdFlags|log.Lshortfile),
	})

	ingestor := ingest.New(ingest.Options{
		Endpoint:          *wsEndpoint,
		RPC:               rpc,
		Parser:            streamParser,
		SubscriptionStore: stores.subscriptions,
		Workers:           *workers,
		Logger:            log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile),
	})
	if err := ingestor.Start(ctx); err != nil {
		logger.Fatalf("Failed to start ingestor: %v", err)
	}
	defer ingestor.Close()

	apiServer := api.NewServer(api.Options{
		Matcher:       engine,
		Subscriber:    ingestor,
		LinkStore:     stores.links,
		SettingsStore: stores.settings,
		WalletStore:   stores.wallets,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: buildRouter(apiServer),
	}
	go func() {
		logger.Printf("Control API listening on %s", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("HTTP server error: %v", err)
		}
	}()

	go runMatchScheduler(ctx, engine, *matchInterval, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, shutting down...", sig)
	case err := <-ingestor.Fatal():
		logger.Printf("Stream failed permanently, shutting down: %v", err)
		exitCode = 1
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown error: %v", err)
	}
	if err := ingestor.Close(); err != nil {
		logger.Printf("Ingestor close error: %v", err)
	}

	logger.Println("Shutdown complete")
	if exitCode != 0 {
		cleanup()
		os.Exit(exitCode)
	}
}

// buildRouter mounts the control API next to health and metrics endpoints.
func buildRouter(apiServer *api.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())
	r.Mount("/", apiServer.Router())

	return r
}

// runMatchScheduler triggers a scoring pass at a fixed interval.
func runMatchScheduler(ctx context.Context, engine *matching.Engine, interval time.Duration, logger *log.Logger) {
	logger.Printf("Starting match scheduler (interval: %v)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := engine.ProcessPending(ctx, matching.ProcessOptions{})
			if err != nil {
				logger.Printf("Scoring pass error: %v", err)
				continue
			}
			if stats.Processed > 0 {
				logger.Printf("Scoring pass: %d processed, %d linked, %d review, %d ignored, %d errors",
					stats.Processed, stats.Linked, stats.ManualReview, stats.Ignored, stats.Errors)
			}
		}
	}
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			links:         memory.NewLinkStore(),
			settings:      memory.NewSettingsStore(),
			subscriptions: memory.NewSubscriptionStore(),
			rawEvents:     memory.NewRawEventStore(),
			notifications: memory.NewNotificationStore(),
			pushEndpoints: memory.NewPushEndpointStore(),
			preferences:   memory.NewPreferencesStore(),
			wallets:       memory.NewWalletStore(),
			ledger:        memory.NewLedgerTransactionStore(),
			outcomes:      memory.NewMatchOutcomeStore(),
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

	stores := &allStores{
		links:         pgstore.NewLinkStore(pool),
		settings:      pgstore.NewSettingsStore(pool),
		subscriptions: pgstore.NewSubscriptionStore(pool),
		rawEvents:     pgstore.NewRawEventStore(pool),
		notifications: pgstore.NewNotificationStore(pool),
		pushEndpoints: pgstore.NewPushEndpointStore(pool),
		preferences:   pgstore.NewPreferencesStore(pool),
		wallets:       pgstore.NewWalletStore(pool),
		ledger:        pgstore.NewLedgerTransactionStore(pool),
	}

	cleanup := func() { pool.Close() }

	// The outcome sink is optional; matching degrades to no analytics
	// when ClickHouse is not configured.
	if clickhouseDSN != "" {
		var chConn *chstore.Conn
		chConn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		stores.outcomes = chstore.NewMatchOutcomeStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}
