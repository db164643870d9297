package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditLogEntry is one line of the audit trail, dual-written to the
// transaction_logs table and to the daily flat file. One transaction can
// produce several entries (a transfer logs one per account touched).
type AuditLogEntry struct {
	ID            int64             `json:"id,omitempty"`
	TransactionID int64             `json:"transaction_id"`
	AccountNumber string            `json:"account_number"`
	Amount        decimal.Decimal   `json:"amount"`
	Kind          TransactionKind   `json:"kind"`
	Status        TransactionStatus `json:"status"`
	Description   string            `json:"description,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// AuditSummary aggregates one account's audit trail over a date range.
type AuditSummary struct {
	AccountNumber string                    `json:"account_number"`
	TotalAmount   decimal.Decimal           `json:"total_amount"`
	CountByKind   map[TransactionKind]int   `json:"count_by_kind"`
	CountByStatus map[TransactionStatus]int `json:"count_by_status"`
}
