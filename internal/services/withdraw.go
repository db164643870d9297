package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harborpay/transaction-service/internal/models"
	"github.com/harborpay/transaction-service/internal/validation"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// Withdraw is the deposit flow plus the PIN gate and a local balance check.
// The snapshot balance can be stale, so it is only a fast reject; the remote
// ledger re-checks atomically at debit time.
func (s *transactionService) Withdraw(ctx context.Context, req WithdrawRequest) (*models.DepositResult, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "Withdraw")
	defer span.End()

	if req.IdempotencyKey == "" {
		return nil, pkgerrors.ErrIdempotencyKeyRequired
	}
	if cached := cachedResult[models.DepositResult](ctx, s, "withdraw", req.IdempotencyKey); cached != nil {
		return cached, nil
	}

	if err := validation.Amount(req.Amount, s.settings.MaxAmount); err != nil {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, err
	}
	if err := validation.PIN(req.PIN, s.settings.PINLength); err != nil {
		span.SetStatus(codes.Error, "invalid PIN format")
		return nil, err
	}

	snapshot, err := s.ledger.ValidateAccount(ctx, req.AccountNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account validation failed")
		slog.Error("withdrawal account validation failed", "account", req.AccountNumber, "error", err)
		return nil, err
	}

	if err := s.ledger.VerifyPin(ctx, req.AccountNumber, req.PIN); err != nil {
		span.SetStatus(codes.Error, "PIN verification failed")
		slog.Warn("withdrawal PIN verification failed", "account", req.AccountNumber)
		return nil, err
	}

	if snapshot.Balance.LessThan(req.Amount) {
		span.SetStatus(codes.Error, "insufficient funds")
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			pkgerrors.ErrInsufficientFunds, snapshot.Balance, req.Amount)
	}

	record, created, err := s.txRepo.Create(ctx, &models.Transaction{
		FromAccount:    req.AccountNumber,
		Amount:         req.Amount,
		Kind:           models.KindWithdraw,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !created {
		return s.replayWithdraw(record)
	}

	// Once the PENDING record exists the operation no longer belongs to the
	// request: a caller disconnect must not strand the row mid-flight.
	ctx = context.WithoutCancel(ctx)

	mutation, err := s.ledger.Debit(ctx, req.AccountNumber, req.Amount, req.Description, req.IdempotencyKey)
	if err != nil {
		s.failMutation(ctx, record, req.AccountNumber, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "debit failed")
		return nil, err
	}

	if err := s.txRepo.MarkTerminal(ctx, record.ID, models.StatusSuccess, models.TransactionUpdate{
		FromNewBalance: &mutation.NewBalance,
	}); err != nil {
		slog.Error("debit applied but local record could not be marked SUCCESS",
			"transaction_id", record.ID, "account", req.AccountNumber, "error", err)
	}

	s.audit(ctx, record, req.AccountNumber, models.StatusSuccess, req.Description)
	s.publishEvent(record, models.StatusSuccess)

	result := &models.DepositResult{
		Status:          models.StatusSuccess,
		TransactionID:   record.ID,
		AccountNumber:   req.AccountNumber,
		Amount:          req.Amount,
		NewBalance:      mutation.NewBalance,
		TransactionDate: s.now(),
	}
	s.cacheResult(ctx, "withdraw", req.IdempotencyKey, result)

	slog.Info("withdrawal completed", "transaction_id", record.ID, "account", req.AccountNumber, "amount", req.Amount)
	return result, nil
}

func (s *transactionService) replayWithdraw(record *models.Transaction) (*models.DepositResult, error) {
	if record.Status != models.StatusSuccess {
		return nil, replayConflict(record)
	}
	result := &models.DepositResult{
		Status:          models.StatusSuccess,
		TransactionID:   record.ID,
		AccountNumber:   record.FromAccount,
		Amount:          record.Amount,
		TransactionDate: record.UpdatedAt,
	}
	if record.FromNewBalance != nil {
		result.NewBalance = *record.FromNewBalance
	}
	slog.Info("idempotent replay served from record", "transaction_id", record.ID, "kind", record.Kind)
	return result, nil
}
