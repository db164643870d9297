// Package worker contains the reconciler: the background process that drives
// in-doubt transactions to a terminal state. A record lands here when a
// ledger mutation timed out with an unknown outcome, or when a transfer's
// second leg (or its compensation) is still outstanding after a crash.
package worker

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/harborpay/transaction-service/internal/infrastructure/ledger"
	"github.com/harborpay/transaction-service/internal/models"
	"github.com/harborpay/transaction-service/internal/repository"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
)

type Reconciler struct {
	ledger    ledger.Client
	txRepo    repository.TransactionRepository
	auditRepo repository.AuditLogRepository
	interval  time.Duration
	after     time.Duration
}

func NewReconciler(
	ledgerClient ledger.Client,
	txRepo repository.TransactionRepository,
	auditRepo repository.AuditLogRepository,
	interval, after time.Duration,
) *Reconciler {
	return &Reconciler{
		ledger:    ledgerClient,
		txRepo:    txRepo,
		auditRepo: auditRepo,
		interval:  interval,
		after:     after,
	}
}

// Run loops until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("reconciler started", "interval", r.interval, "stale_after", r.after)
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of stale in-flight records. Every retry reuses
// the record's original idempotency key, so a mutation that actually landed
// the first time is deduplicated by the remote ledger rather than applied
// twice. Stale PENDING rows are records stranded by a crash or caller
// disconnect before any outcome was recorded; they get the same first-leg
// retry as unknown outcomes.
func (r *Reconciler) Sweep(ctx context.Context) {
	stale, err := r.txRepo.ListInFlight(ctx, []models.TransactionStatus{
		models.StatusPending,
		models.StatusDebited,
		models.StatusPendingCompensation,
		models.StatusNeedsReconciliation,
	}, time.Now().Add(-r.after))
	if err != nil {
		slog.Error("reconciler failed to list in-flight transactions", "error", err)
		return
	}

	for i := range stale {
		record := stale[i]
		switch record.Status {
		case models.StatusPending, models.StatusNeedsReconciliation:
			r.resumeFirstLeg(ctx, &record)
		case models.StatusDebited:
			r.resumeCredit(ctx, &record)
		case models.StatusPendingCompensation:
			r.resumeCompensation(ctx, &record)
		}
	}
}

// resumeFirstLeg retries the original mutation whose outcome was never
// recorded.
func (r *Reconciler) resumeFirstLeg(ctx context.Context, record *models.Transaction) {
	var result *models.LedgerMutationResult
	var err error
	switch record.Kind {
	case models.KindDeposit:
		result, err = r.ledger.Credit(ctx, record.ToAccount, record.Amount, record.Description, record.IdempotencyKey)
	case models.KindWithdraw, models.KindTransfer:
		result, err = r.ledger.Debit(ctx, record.FromAccount, record.Amount, record.Description, record.IdempotencyKey)
	default:
		slog.Error("reconciler found record with unknown kind", "transaction_id", record.ID, "kind", record.Kind)
		return
	}

	if stderrors.Is(err, pkgerrors.ErrLedgerOutcomeUnknown) {
		slog.Warn("ledger still unreachable, leaving record for next sweep", "transaction_id", record.ID)
		return
	}
	if err != nil {
		// The ledger answered: the mutation definitively did not apply.
		r.finish(ctx, record, models.StatusFailed, models.TransactionUpdate{ErrorMessage: strPtr(err.Error())})
		return
	}

	switch record.Kind {
	case models.KindDeposit:
		r.finish(ctx, record, models.StatusSuccess, models.TransactionUpdate{ToNewBalance: &result.NewBalance})
	case models.KindWithdraw:
		r.finish(ctx, record, models.StatusSuccess, models.TransactionUpdate{FromNewBalance: &result.NewBalance})
	case models.KindTransfer:
		if err := r.txRepo.Transition(ctx, record.ID, record.Status, models.StatusDebited, models.TransactionUpdate{
			FromNewBalance: &result.NewBalance,
		}); err != nil {
			slog.Error("reconciler failed to mark transfer DEBITED", "transaction_id", record.ID, "error", err)
			return
		}
		record.Status = models.StatusDebited
		r.resumeCredit(ctx, record)
	}
}

// resumeCredit finishes a transfer whose debit landed but whose credit is
// outstanding.
func (r *Reconciler) resumeCredit(ctx context.Context, record *models.Transaction) {
	result, err := r.ledger.Credit(ctx, record.ToAccount, record.Amount, record.Description, record.IdempotencyKey)
	if stderrors.Is(err, pkgerrors.ErrLedgerOutcomeUnknown) {
		slog.Warn("credit outcome still unknown, leaving record for next sweep", "transaction_id", record.ID)
		return
	}
	if err != nil {
		slog.Error("credit definitively failed, switching to compensation", "transaction_id", record.ID, "error", err)
		if terr := r.txRepo.Transition(ctx, record.ID, models.StatusDebited, models.StatusPendingCompensation, models.TransactionUpdate{
			ErrorMessage: strPtr(err.Error()),
		}); terr != nil {
			slog.Error("reconciler failed to mark PENDING_COMPENSATION", "transaction_id", record.ID, "error", terr)
			return
		}
		record.Status = models.StatusPendingCompensation
		r.resumeCompensation(ctx, record)
		return
	}

	r.finish(ctx, record, models.StatusSuccess, models.TransactionUpdate{ToNewBalance: &result.NewBalance})
	slog.Info("reconciler completed transfer", "transaction_id", record.ID)
}

// resumeCompensation retries the credit back to the source account. The
// derived key keeps crash-and-resume from compensating twice.
func (r *Reconciler) resumeCompensation(ctx context.Context, record *models.Transaction) {
	result, err := r.ledger.Credit(ctx, record.FromAccount, record.Amount,
		"compensation for failed transfer", record.IdempotencyKey+":comp")
	if err != nil {
		slog.Warn("compensating credit failed, leaving record for next sweep", "transaction_id", record.ID, "error", err)
		return
	}

	r.finish(ctx, record, models.StatusCompensated, models.TransactionUpdate{FromNewBalance: &result.NewBalance})
	slog.Info("reconciler compensated transfer", "transaction_id", record.ID)
}

func (r *Reconciler) finish(ctx context.Context, record *models.Transaction, status models.TransactionStatus, update models.TransactionUpdate) {
	if err := r.txRepo.MarkTerminal(ctx, record.ID, status, update); err != nil {
		slog.Error("reconciler failed to mark record terminal", "transaction_id", record.ID, "status", status, "error", err)
		return
	}

	account := record.FromAccount
	if account == "" {
		account = record.ToAccount
	}
	r.auditRepo.Record(ctx, &models.AuditLogEntry{
		TransactionID: record.ID,
		AccountNumber: account,
		Amount:        record.Amount,
		Kind:          record.Kind,
		Status:        status,
		Description:   "resolved by reconciler",
		CreatedAt:     time.Now(),
	})
}

func strPtr(s string) *string { return &s }
