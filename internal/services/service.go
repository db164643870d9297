// Package service orchestrates fund movements across the two independently
// owned resources: the local transaction ledger (Postgres) and the remote
// account ledger (HTTP). There is no shared transaction manager; every
// operation is an explicit sequence of steps with recorded outcomes.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/harborpay/transaction-service/internal/infrastructure/kafka"
	"github.com/harborpay/transaction-service/internal/infrastructure/ledger"
	"github.com/harborpay/transaction-service/internal/infrastructure/observability"
	"github.com/harborpay/transaction-service/internal/infrastructure/redis"
	"github.com/harborpay/transaction-service/internal/models"
	"github.com/harborpay/transaction-service/internal/repository"
	"github.com/shopspring/decimal"
)

type DepositRequest struct {
	AccountNumber  string          `json:"account_number"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type WithdrawRequest struct {
	AccountNumber  string          `json:"account_number"`
	Amount         decimal.Decimal `json:"amount"`
	PIN            string          `json:"pin"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type TransferRequest struct {
	FromAccount    string          `json:"from_account"`
	ToAccount      string          `json:"to_account"`
	Amount         decimal.Decimal `json:"amount"`
	PIN            string          `json:"pin"`
	TransferMode   string          `json:"transfer_mode"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type TransactionService interface {
	Deposit(ctx context.Context, req DepositRequest) (*models.DepositResult, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*models.DepositResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*models.TransferResult, error)

	GetTransferLimits(ctx context.Context, account string) (*models.LimitStatus, error)
	CheckTransferLimit(ctx context.Context, account string, amount decimal.Decimal) (*models.LimitDecision, error)

	GetTransactionLogs(ctx context.Context, filter models.TransactionFilter) ([]models.AuditLogEntry, error)
	GetLogsByTransaction(ctx context.Context, transactionID int64) ([]models.AuditLogEntry, error)
	GetLogSummary(ctx context.Context, account string, from, to time.Time) (*models.AuditSummary, error)
	GetDayFileLines(date time.Time) ([]string, error)
}

// Settings are the operation-level policy knobs, separated from wiring.
type Settings struct {
	MaxAmount decimal.Decimal
	PINLength int
	Location  *time.Location
}

type transactionService struct {
	ledger      ledger.Client
	txRepo      repository.TransactionRepository
	limitRepo   repository.LimitRepository
	auditRepo   repository.AuditLogRepository
	redisClient redis.RedisClient
	producer    kafka.KafkaProducer
	settings    Settings
}

func NewTransactionService(
	ledgerClient ledger.Client,
	txRepo repository.TransactionRepository,
	limitRepo repository.LimitRepository,
	auditRepo repository.AuditLogRepository,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
	settings Settings,
) *transactionService {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &transactionService{
		ledger:      ledgerClient,
		txRepo:      txRepo,
		limitRepo:   limitRepo,
		auditRepo:   auditRepo,
		redisClient: redisClient,
		producer:    producer,
		settings:    settings,
	}
}

func (s *transactionService) now() time.Time {
	return time.Now().In(s.settings.Location)
}

// replayKey namespaces cached responses per operation so a deposit replay can
// never be served a transfer result.
func replayKey(op, idempotencyKey string) string {
	return fmt.Sprintf("idem:%s:%s", op, idempotencyKey)
}

// cachedResult loads a previously returned response for this idempotency key
// from the Redis fast path. A miss or a malformed value falls through to the
// database check.
func cachedResult[T any](ctx context.Context, s *transactionService, op, key string) *T {
	raw, err := s.redisClient.Get(ctx, replayKey(op, key))
	if err != nil {
		return nil
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("malformed cached result, ignoring", "op", op, "idempotency_key", key, "error", err)
		return nil
	}
	slog.Info("idempotent replay served from cache", "op", op, "idempotency_key", key)
	return &out
}

func (s *transactionService) cacheResult(ctx context.Context, op, key string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.redisClient.Set(ctx, replayKey(op, key), string(raw), 24*time.Hour); err != nil {
		slog.Warn("failed to cache operation result", "op", op, "idempotency_key", key, "error", err)
	}
}

// audit writes one best-effort dual-channel audit entry.
func (s *transactionService) audit(ctx context.Context, tx *models.Transaction, account string, status models.TransactionStatus, description string) {
	s.auditRepo.Record(ctx, &models.AuditLogEntry{
		TransactionID: tx.ID,
		AccountNumber: account,
		Amount:        tx.Amount,
		Kind:          tx.Kind,
		Status:        status,
		Description:   description,
		CreatedAt:     s.now(),
	})
}

// publishEvent emits a transaction lifecycle event, retrying in the
// background so a slow broker never blocks the caller.
func (s *transactionService) publishEvent(tx *models.Transaction, status models.TransactionStatus) {
	observability.TransactionsByOutcome.WithLabelValues(string(tx.Kind), string(status)).Inc()

	event := map[string]interface{}{
		"event_id":        uuid.NewString(),
		"transaction_id":  tx.ID,
		"kind":            tx.Kind,
		"status":          status,
		"from_account":    tx.FromAccount,
		"to_account":      tx.ToAccount,
		"amount":          tx.Amount,
		"idempotency_key": tx.IdempotencyKey,
		"created_at":      s.now().UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal transaction event", "transaction_id", tx.ID, "error", err)
		return
	}

	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.producer.Send(context.Background(), "transactions", tx.IdempotencyKey, eventBytes); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to send transaction event after retries", "transaction_id", tx.ID)
	}()
}
