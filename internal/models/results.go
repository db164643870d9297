package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositResult is returned by both deposits and withdrawals; the two
// operations share a single-account result shape.
type DepositResult struct {
	Status          TransactionStatus `json:"status"`
	TransactionID   int64             `json:"transaction_id"`
	AccountNumber   string            `json:"account_number"`
	Amount          decimal.Decimal   `json:"amount"`
	NewBalance      decimal.Decimal   `json:"new_balance"`
	TransactionDate time.Time         `json:"transaction_date"`
}

type TransferResult struct {
	Status          TransactionStatus `json:"status"`
	TransactionID   int64             `json:"transaction_id"`
	FromAccount     string            `json:"from_account"`
	ToAccount       string            `json:"to_account"`
	Amount          decimal.Decimal   `json:"amount"`
	TransferMode    string            `json:"transfer_mode,omitempty"`
	FromNewBalance  decimal.Decimal   `json:"from_account_new_balance"`
	ToNewBalance    decimal.Decimal   `json:"to_account_new_balance"`
	TransactionDate time.Time         `json:"transaction_date"`
}
