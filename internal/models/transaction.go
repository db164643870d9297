package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindDeposit  TransactionKind = "DEPOSIT"
	KindWithdraw TransactionKind = "WITHDRAW"
	KindTransfer TransactionKind = "TRANSFER"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"

	// StatusDebited means the source account has been debited but the credit
	// leg has not been confirmed. Only transfers pass through this state.
	StatusDebited TransactionStatus = "DEBITED"

	// StatusPendingCompensation means the credit leg failed after a successful
	// debit and the compensating credit back to the source has not succeeded
	// yet. The reconciler owns records in this state.
	StatusPendingCompensation TransactionStatus = "PENDING_COMPENSATION"

	// StatusCompensated is terminal: the debit was rolled back by a
	// compensating credit, no money moved overall.
	StatusCompensated TransactionStatus = "COMPENSATED"

	// StatusNeedsReconciliation means a ledger mutation timed out with an
	// unknown outcome. The remote state must be re-checked before the record
	// can be driven to a terminal state.
	StatusNeedsReconciliation TransactionStatus = "NEEDS_RECONCILIATION"
)

// IsTerminal reports whether no further status transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCompensated
}

// Transaction is one row in the local ledger of movement intents and
// outcomes. FromAccount is empty for deposits, ToAccount is empty for
// withdrawals, both are set (and differ) for transfers.
type Transaction struct {
	ID             int64             `json:"id"`
	FromAccount    string            `json:"from_account,omitempty"`
	ToAccount      string            `json:"to_account,omitempty"`
	Amount         decimal.Decimal   `json:"amount"`
	Kind           TransactionKind   `json:"kind"`
	Status         TransactionStatus `json:"status"`
	Description    string            `json:"description,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	// Post-operation balances captured on success so an idempotent replay can
	// return the original result without touching the ledger again.
	FromNewBalance *decimal.Decimal `json:"from_new_balance,omitempty"`
	ToNewBalance   *decimal.Decimal `json:"to_new_balance,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// TransactionUpdate carries the fields of a partial update. Only non-nil
// fields are written, so callers never clobber columns they did not touch.
type TransactionUpdate struct {
	ErrorMessage   *string
	FromNewBalance *decimal.Decimal
	ToNewBalance   *decimal.Decimal
}

// TransactionFilter bounds a listing query.
type TransactionFilter struct {
	Account   string
	StartDate *time.Time
	EndDate   *time.Time
	Skip      int
	Limit     int
}
