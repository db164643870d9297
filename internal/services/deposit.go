package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/harborpay/transaction-service/internal/models"
	"github.com/harborpay/transaction-service/internal/validation"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// Deposit credits the remote ledger and records the movement locally:
// validate account, validate amount, create PENDING, remote credit, mark
// terminal, audit. Validation failures happen before anything is written.
func (s *transactionService) Deposit(ctx context.Context, req DepositRequest) (*models.DepositResult, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "Deposit")
	defer span.End()

	if req.IdempotencyKey == "" {
		return nil, pkgerrors.ErrIdempotencyKeyRequired
	}
	if cached := cachedResult[models.DepositResult](ctx, s, "deposit", req.IdempotencyKey); cached != nil {
		return cached, nil
	}

	if err := validation.Amount(req.Amount, s.settings.MaxAmount); err != nil {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, err
	}

	if _, err := s.ledger.ValidateAccount(ctx, req.AccountNumber); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account validation failed")
		slog.Error("deposit account validation failed", "account", req.AccountNumber, "error", err)
		return nil, err
	}

	record, created, err := s.txRepo.Create(ctx, &models.Transaction{
		ToAccount:      req.AccountNumber,
		Amount:         req.Amount,
		Kind:           models.KindDeposit,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !created {
		return s.replayDeposit(record)
	}

	// A PENDING record exists: the operation must run to completion even if
	// the caller disconnects, or the row would be stranded with the mutation
	// outcome unrecorded.
	ctx = context.WithoutCancel(ctx)

	mutation, err := s.ledger.Credit(ctx, req.AccountNumber, req.Amount, req.Description, req.IdempotencyKey)
	if err != nil {
		s.failMutation(ctx, record, req.AccountNumber, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "credit failed")
		return nil, err
	}

	if err := s.txRepo.MarkTerminal(ctx, record.ID, models.StatusSuccess, models.TransactionUpdate{
		ToNewBalance: &mutation.NewBalance,
	}); err != nil {
		// The credit already happened; the local record is what failed.
		// Surface the inconsistency rather than pretending nothing moved.
		slog.Error("credit applied but local record could not be marked SUCCESS",
			"transaction_id", record.ID, "account", req.AccountNumber, "error", err)
		if !stderrors.Is(err, pkgerrors.ErrAlreadyTerminal) {
			return nil, fmt.Errorf("%w: deposit applied remotely but not recorded: %v", pkgerrors.ErrInternal, err)
		}
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
	s.cacheResult(ctx, "deposit", req.IdempotencyKey, result)

	slog.Info("deposit completed", "transaction_id", record.ID, "account", req.AccountNumber, "amount", req.Amount)
	return result, nil
}

// replayDeposit serves a repeated request that hit the idempotency unique
// index: a SUCCESS record returns the original result, anything else is a
// conflict.
func (s *transactionService) replayDeposit(record *models.Transaction) (*models.DepositResult, error) {
	if record.Status != models.StatusSuccess {
		return nil, replayConflict(record)
	}
	result := &models.DepositResult{
		Status:        models.StatusSuccess,
		TransactionID: record.ID,
		AccountNumber: record.ToAccount,
		Amount:        record.Amount,
		TransactionDate: record.UpdatedAt,
	}
	if record.ToNewBalance != nil {
		result.NewBalance = *record.ToNewBalance
	}
	slog.Info("idempotent replay served from record", "transaction_id", record.ID, "kind", record.Kind)
	return result, nil
}

// failMutation resolves a failed single-account ledger mutation: a confirmed
// failure marks the record FAILED, an unknown outcome parks it for the
// reconciler instead of guessing.
func (s *transactionService) failMutation(ctx context.Context, record *models.Transaction, account string, cause error) {
	msg := cause.Error()
	update := models.TransactionUpdate{ErrorMessage: &msg}

	if stderrors.Is(cause, pkgerrors.ErrLedgerOutcomeUnknown) {
		if err := s.txRepo.Transition(ctx, record.ID, models.StatusPending, models.StatusNeedsReconciliation, update); err != nil {
			slog.Error("failed to park transaction for reconciliation", "transaction_id", record.ID, "error", err)
		}
		s.audit(ctx, record, account, models.StatusNeedsReconciliation, msg)
		s.publishEvent(record, models.StatusNeedsReconciliation)
		return
	}

	if err := s.txRepo.MarkTerminal(ctx, record.ID, models.StatusFailed, update); err != nil {
		slog.Error("failed to mark transaction FAILED", "transaction_id", record.ID, "error", err)
	}
	s.audit(ctx, record, account, models.StatusFailed, msg)
	s.publishEvent(record, models.StatusFailed)
}

func replayConflict(record *models.Transaction) error {
	if record.Status.IsTerminal() {
		return fmt.Errorf("%w: previous attempt ended %s: %s",
			pkgerrors.ErrIdempotencyConflict, record.Status, record.ErrorMessage)
	}
	return fmt.Errorf("%w: transaction %d is %s",
		pkgerrors.ErrIdempotencyConflict, record.ID, record.Status)
}
