package repository

import (
	"context"
	"time"

	"github.com/harborpay/transaction-service/internal/models"
)

type AuditLogRepository interface {
	// Record dual-writes the entry to the database table and the daily flat
	// file. Both legs are best-effort: failures are logged, never returned,
	// because the remote ledger mutation has already happened and must not be
	// reversed by audit plumbing.
	Record(ctx context.Context, entry *models.AuditLogEntry)
	WriteDb(ctx context.Context, entry *models.AuditLogEntry) error
	AppendFile(entry *models.AuditLogEntry) error

	GetByTransactionID(ctx context.Context, transactionID int64) ([]models.AuditLogEntry, error)
	GetByAccount(ctx context.Context, filter models.TransactionFilter) ([]models.AuditLogEntry, error)
	ReadDayFile(date time.Time) ([]string, error)
	Summarize(ctx context.Context, account string, from, to time.Time) (*models.AuditSummary, error)
}
