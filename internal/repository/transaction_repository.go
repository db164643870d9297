package repository

import (
	"context"
	"time"

	"github.com/harborpay/transaction-service/internal/models"
)

type TransactionRepository interface {
	// Create inserts a PENDING row, or returns the existing row when the
	// idempotency key is already taken. The bool reports whether a new row
	// was inserted.
	Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, bool, error)
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	// Transition moves a record from one in-flight status to another. The
	// move is guarded: it fails if the record is not currently in `from`.
	Transition(ctx context.Context, id int64, from, to models.TransactionStatus, update models.TransactionUpdate) error
	// MarkTerminal is one-way: it refuses to touch a record that already
	// reached SUCCESS, FAILED, or COMPENSATED.
	MarkTerminal(ctx context.Context, id int64, status models.TransactionStatus, update models.TransactionUpdate) error
	List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	// ListInFlight returns non-terminal records untouched since olderThan,
	// for the reconciler.
	ListInFlight(ctx context.Context, statuses []models.TransactionStatus, olderThan time.Time) ([]models.Transaction, error)
}
