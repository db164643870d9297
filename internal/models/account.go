package models

import "github.com/shopspring/decimal"

type PrivilegeTier string

const (
	PrivilegePremium PrivilegeTier = "PREMIUM"
	PrivilegeGold    PrivilegeTier = "GOLD"
	PrivilegeSilver  PrivilegeTier = "SILVER"
)

// AccountSnapshot is the remote ledger's view of an account at validation
// time. The balance is a point-in-time read and can be stale by the time a
// debit runs; the ledger re-checks atomically on its side.
type AccountSnapshot struct {
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	Privilege     PrivilegeTier   `json:"privilege"`
	Active        bool            `json:"active"`
}

// LedgerMutationResult is the remote ledger's answer to a debit or credit.
type LedgerMutationResult struct {
	AccountNumber string          `json:"account_number"`
	NewBalance    decimal.Decimal `json:"new_balance"`
}
