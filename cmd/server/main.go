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

	"github.com/harborpay/transaction-service/internal/api"
	"github.com/harborpay/transaction-service/internal/config"
	"github.com/harborpay/transaction-service/internal/handler"
	"github.com/harborpay/transaction-service/internal/infrastructure/kafka"
	"github.com/harborpay/transaction-service/internal/infrastructure/ledger"
	"github.com/harborpay/transaction-service/internal/infrastructure/redis"
	"github.com/harborpay/transaction-service/internal/observability"
	"github.com/harborpay/transaction-service/internal/repository/audit"
	core "github.com/harborpay/transaction-service/internal/repository/postgres"
	service "github.com/harborpay/transaction-service/internal/services"
	"github.com/harborpay/transaction-service/internal/worker"
	_ "github.com/lib/pq"
)

func main() {
	shutdown, _ := observability.Setup("transaction-service")
	defer shutdown(context.Background())

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	txRepo := core.NewPostgresTransactionRepository(db)
	limitRepo := core.NewPostgresLimitRepository(db, cfg.Location)
	auditRepo := audit.NewRepository(db, cfg.AuditLogDir, cfg.Location)

	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	ledgerClient := ledger.NewHTTPClient(cfg.LedgerBaseURL, cfg.LedgerTimeout)

	svc := service.NewTransactionService(ledgerClient, txRepo, limitRepo, auditRepo, redisClient, producer, service.Settings{
		MaxAmount: cfg.MaxAmount,
		PINLength: cfg.PINLength,
		Location:  cfg.Location,
	})

	// The reconciler resolves in-doubt records left behind by crashes and
	// ledger timeouts.
	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	reconciler := worker.NewReconciler(ledgerClient, txRepo, auditRepo, cfg.ReconcileInterval, cfg.ReconcileAfter)
	go reconciler.Run(reconcilerCtx)

	h := handler.NewHandler(svc, cfg.Location)
	router := api.SetupRouter(h, redisClient, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopReconciler()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
