package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/harborpay/transaction-service/internal/models"
	"github.com/harborpay/transaction-service/internal/validation"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Transfer moves money between two accounts on the remote ledger. The two
// legs cannot be committed atomically, so the record walks an explicit state
// machine: PENDING -> DEBITED -> SUCCESS on the happy path; a confirmed
// credit failure goes DEBITED -> PENDING_COMPENSATION -> COMPENSATED once the
// compensating credit lands; unknown outcomes stay parked for the reconciler.
// The debit always completes (or fails) before the credit begins.
func (s *transactionService) Transfer(ctx context.Context, req TransferRequest) (*models.TransferResult, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "Transfer")
	span.SetAttributes(
		attribute.String("from_account", req.FromAccount),
		attribute.String("to_account", req.ToAccount),
	)
	defer span.End()

	if req.IdempotencyKey == "" {
		return nil, pkgerrors.ErrIdempotencyKeyRequired
	}
	if cached := cachedResult[models.TransferResult](ctx, s, "transfer", req.IdempotencyKey); cached != nil {
		return cached, nil
	}

	// Local checks first: none of these may be preceded by a remote call.
	if err := validation.DistinctAccounts(req.FromAccount, req.ToAccount); err != nil {
		span.SetStatus(codes.Error, "same account")
		return nil, err
	}
	if err := validation.Amount(req.Amount, s.settings.MaxAmount); err != nil {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, err
	}
	if err := validation.PIN(req.PIN, s.settings.PINLength); err != nil {
		span.SetStatus(codes.Error, "invalid PIN format")
		return nil, err
	}

	fromSnapshot, err := s.ledger.ValidateAccount(ctx, req.FromAccount)
	if err != nil {
		span.RecordError(err)
		slog.Error("transfer source validation failed", "account", req.FromAccount, "error", err)
		return nil, err
	}
	if _, err := s.ledger.ValidateAccount(ctx, req.ToAccount); err != nil {
		span.RecordError(err)
		slog.Error("transfer destination validation failed", "account", req.ToAccount, "error", err)
		return nil, err
	}

	if err := s.ledger.VerifyPin(ctx, req.FromAccount, req.PIN); err != nil {
		span.SetStatus(codes.Error, "PIN verification failed")
		slog.Warn("transfer PIN verification failed", "account", req.FromAccount)
		return nil, err
	}

	if fromSnapshot.Balance.LessThan(req.Amount) {
		span.SetStatus(codes.Error, "insufficient funds")
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			pkgerrors.ErrInsufficientFunds, fromSnapshot.Balance, req.Amount)
	}

	// Limits bound exposure, so they gate the operation before any money
	// moves, not after.
	if err := s.enforceLimits(ctx, req.FromAccount, fromSnapshot.Privilege, req.Amount); err != nil {
		span.SetStatus(codes.Error, "limit exceeded")
		return nil, err
	}

	record, created, err := s.txRepo.Create(ctx, &models.Transaction{
		FromAccount:    req.FromAccount,
		ToAccount:      req.ToAccount,
		Amount:         req.Amount,
		Kind:           models.KindTransfer,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !created {
		return s.replayTransfer(record, req.TransferMode)
	}

	// Once the PENDING record exists the saga must run to completion
	// server-side; a caller disconnect between legs would otherwise strand
	// the record with money already moved.
	ctx = context.WithoutCancel(ctx)

	// Leg one: debit the source. Must fully resolve before the credit starts.
	debit, err := s.ledger.Debit(ctx, req.FromAccount, req.Amount, req.Description, req.IdempotencyKey)
	if err != nil {
		s.failMutation(ctx, record, req.FromAccount, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "debit failed")
		return nil, err
	}

	if err := s.txRepo.Transition(ctx, record.ID, models.StatusPending, models.StatusDebited, models.TransactionUpdate{
		FromNewBalance: &debit.NewBalance,
	}); err != nil {
		slog.Error("debit applied but record could not be marked DEBITED", "transaction_id", record.ID, "error", err)
	}

	// Leg two: credit the destination.
	credit, err := s.ledger.Credit(ctx, req.ToAccount, req.Amount, req.Description, req.IdempotencyKey)
	if err != nil {
		return nil, s.resolveCreditFailure(ctx, record, req, err)
	}

	if err := s.txRepo.MarkTerminal(ctx, record.ID, models.StatusSuccess, models.TransactionUpdate{
		ToNewBalance: &credit.NewBalance,
	}); err != nil {
		slog.Error("transfer applied but record could not be marked SUCCESS", "transaction_id", record.ID, "error", err)
	}

	s.audit(ctx, record, req.FromAccount, models.StatusSuccess, req.Description)
	s.audit(ctx, record, req.ToAccount, models.StatusSuccess, req.Description)
	s.publishEvent(record, models.StatusSuccess)

	result := &models.TransferResult{
		Status:          models.StatusSuccess,
		TransactionID:   record.ID,
		FromAccount:     req.FromAccount,
		ToAccount:       req.ToAccount,
		Amount:          req.Amount,
		TransferMode:    req.TransferMode,
		FromNewBalance:  debit.NewBalance,
		ToNewBalance:    credit.NewBalance,
		TransactionDate: s.now(),
	}
	s.cacheResult(ctx, "transfer", req.IdempotencyKey, result)

	slog.Info("transfer completed",
		"transaction_id", record.ID, "from_account", req.FromAccount, "to_account", req.ToAccount, "amount", req.Amount)
	return result, nil
}

// resolveCreditFailure handles the hard case: money has left the source but
// did not reach the destination. An unknown outcome keeps the record DEBITED
// so the reconciler can retry the credit with the same idempotency key. A
// confirmed failure triggers an immediate compensating credit back to the
// source; if that also fails the record stays PENDING_COMPENSATION for the
// reconciler. Callers never see a plain FAILED here.
func (s *transactionService) resolveCreditFailure(ctx context.Context, record *models.Transaction, req TransferRequest, cause error) error {
	msg := cause.Error()

	if stderrors.Is(cause, pkgerrors.ErrLedgerOutcomeUnknown) {
		slog.Error("transfer credit outcome unknown, leaving record DEBITED",
			"transaction_id", record.ID, "to_account", req.ToAccount, "error", cause)
		s.audit(ctx, record, req.ToAccount, models.StatusDebited, msg)
		s.publishEvent(record, models.StatusDebited)
		return fmt.Errorf("%w: credit outcome unknown: %v", pkgerrors.ErrTransferIncomplete, cause)
	}

	slog.Error("transfer credit failed after successful debit, compensating",
		"transaction_id", record.ID, "to_account", req.ToAccount, "error", cause)
	if err := s.txRepo.Transition(ctx, record.ID, models.StatusDebited, models.StatusPendingCompensation, models.TransactionUpdate{
		ErrorMessage: &msg,
	}); err != nil {
		slog.Error("failed to mark record PENDING_COMPENSATION", "transaction_id", record.ID, "error", err)
	}
	s.audit(ctx, record, req.ToAccount, models.StatusPendingCompensation, msg)

	// The compensation key is derived from the original so a crash-and-resume
	// retry can never double-compensate.
	compensation, err := s.ledger.Credit(ctx, req.FromAccount, req.Amount,
		"compensation for failed transfer", compensationKey(req.IdempotencyKey))
	if err != nil {
		slog.Error("compensating credit failed, reconciler will retry",
			"transaction_id", record.ID, "from_account", req.FromAccount, "error", err)
		s.publishEvent(record, models.StatusPendingCompensation)
		return fmt.Errorf("%w: credit failed (%v), compensation pending", pkgerrors.ErrTransferIncomplete, cause)
	}

	if err := s.txRepo.MarkTerminal(ctx, record.ID, models.StatusCompensated, models.TransactionUpdate{
		ErrorMessage:   &msg,
		FromNewBalance: &compensation.NewBalance,
	}); err != nil {
		slog.Error("failed to mark record COMPENSATED", "transaction_id", record.ID, "error", err)
	}
	s.audit(ctx, record, req.FromAccount, models.StatusCompensated, msg)
	s.publishEvent(record, models.StatusCompensated)
	return fmt.Errorf("%w: credit failed (%v), debit compensated", pkgerrors.ErrTransferIncomplete, cause)
}

func (s *transactionService) replayTransfer(record *models.Transaction, mode string) (*models.TransferResult, error) {
	if record.Status != models.StatusSuccess {
		return nil, replayConflict(record)
	}
	result := &models.TransferResult{
		Status:          models.StatusSuccess,
		TransactionID:   record.ID,
		FromAccount:     record.FromAccount,
		ToAccount:       record.ToAccount,
		Amount:          record.Amount,
		TransferMode:    mode,
		TransactionDate: record.UpdatedAt,
	}
	if record.FromNewBalance != nil {
		result.FromNewBalance = *record.FromNewBalance
	}
	if record.ToNewBalance != nil {
		result.ToNewBalance = *record.ToNewBalance
	}
	slog.Info("idempotent replay served from record", "transaction_id", record.ID, "kind", record.Kind)
	return result, nil
}

// enforceLimits rejects a transfer that would push the source account past
// its tier's daily amount or count limit.
func (s *transactionService) enforceLimits(ctx context.Context, account string, tier models.PrivilegeTier, amount decimal.Decimal) error {
	rule, err := s.limitRepo.GetRule(tier)
	if err != nil {
		return err
	}
	usage, err := s.dailyUsage(ctx, account)
	if err != nil {
		return err
	}

	if usage.TransactionCount >= rule.DailyCountLimit {
		return fmt.Errorf("%w: %d transactions today, limit %d",
			pkgerrors.ErrDailyCountExceeded, usage.TransactionCount, rule.DailyCountLimit)
	}
	decision := validation.CheckWithinLimits(usage, amount, rule)
	if !decision.CanTransfer {
		return fmt.Errorf("%w: %s (remaining %s)",
			pkgerrors.ErrTransferLimitExceeded, decision.Reason, decision.DailyRemaining)
	}
	return nil
}

func (s *transactionService) dailyUsage(ctx context.Context, account string) (models.DailyLimitUsage, error) {
	today := s.now()
	used, err := s.limitRepo.GetDailyUsedAmount(ctx, account, today)
	if err != nil {
		return models.DailyLimitUsage{}, err
	}
	count, err := s.limitRepo.GetDailyTransactionCount(ctx, account, today)
	if err != nil {
		return models.DailyLimitUsage{}, err
	}
	return models.DailyLimitUsage{AmountUsed: used, TransactionCount: count}, nil
}

func compensationKey(idempotencyKey string) string {
	return idempotencyKey + ":comp"
}
