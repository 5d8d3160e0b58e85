package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/marketsync/stocksync-go/internal/api"
	"github.com/marketsync/stocksync-go/internal/application"
	"github.com/marketsync/stocksync-go/internal/config"
	"github.com/marketsync/stocksync-go/internal/domain"
	"github.com/marketsync/stocksync-go/internal/infrastructure/db"
	"github.com/marketsync/stocksync-go/internal/infrastructure/marketplace"
	"github.com/marketsync/stocksync-go/internal/infrastructure/messaging"
	outboxinfra "github.com/marketsync/stocksync-go/internal/infrastructure/outbox"
	syncsched "github.com/marketsync/stocksync-go/internal/infrastructure/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, relying on environment")
	}
	cfg := config.Load()
	log.Printf("Starting stocksync service on port %s", cfg.HttpPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConn, err := sql.Open("pgx", cfg.PgDsn)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	defer dbConn.Close()

	if err := dbConn.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}

	// Repos
	productRepo := db.NewPgProductRepository(dbConn)
	cursorRepo := db.NewPgSyncCursorRepository(dbConn)
	runRepo := db.NewPgSyncRunRepository(dbConn)
	webhookRepo := db.NewPgWebhookEventRepository(dbConn)
	outboxRepo := db.NewPgOutboxRepository(dbConn)

	// Event bus + outbox writer + dispatcher + scheduler
	producerBus := messaging.NewProducerBus(cfg.RabbitUri)
	outboxWriter := application.NewOutboxWriter(outboxRepo)
	dispatcher := outboxinfra.NewDispatcher(
		outboxRepo,
		producerBus,
		cfg.OutboxMaxRetry,
		cfg.OutboxBatchSize,
	)
	outboxScheduler := outboxinfra.NewScheduler(dispatcher, cfg.OutboxIntervalSec)
	outboxScheduler.Start(ctx)

	// Application services
	ledger := application.NewStockLedgerService(productRepo)
	cursors := application.NewCursorService(cursorRepo)
	runs := application.NewSyncRunService(runRepo, outboxWriter)

	webhookPlatform, err := domain.ParsePlatform(cfg.WebhookPlatform)
	if err != nil {
		log.Fatalf("invalid WEBHOOK_PLATFORM: %v", err)
	}
	ingest := application.NewWebhookIngestService(
		webhookPlatform,
		webhookRepo,
		ledger,
		cursors,
		runs,
		outboxWriter,
	)
	engine := application.NewReconciliationEngine(
		ledger,
		cursors,
		runs,
		outboxWriter,
		time.Duration(cfg.PageDelayMs)*time.Millisecond,
	)

	// Marketplace clients register here at wiring time; none are bundled
	// with the service itself.
	registry := marketplace.NewRegistry()

	syncScheduler := syncsched.NewSyncScheduler(engine, registry.All(), cfg.SyncIntervalMin)
	syncScheduler.Start(ctx)

	// HTTP API
	router := mux.NewRouter()
	apiServer := api.NewServer(cfg, ingest, runs, engine, registry)
	apiServer.RegisterRoutes(router)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.HttpPort,
		Handler: router,
	}

	go func() {
		log.Printf("HTTP listening on :%s", cfg.HttpPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// Esperar señal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Shutting down stocksync service, signal: %s", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
