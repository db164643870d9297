package models

import "github.com/shopspring/decimal"

// PrivilegeRule is the static per-tier policy: how much and how often an
// account may move money per calendar day. Loaded once, never persisted.
type PrivilegeRule struct {
	Tier             PrivilegeTier   `json:"tier"`
	DailyAmountLimit decimal.Decimal `json:"daily_amount_limit"`
	DailyCountLimit  int             `json:"daily_count_limit"`
}

// DailyLimitUsage is derived on demand from successful transactions where
// the account is the source.
type DailyLimitUsage struct {
	AmountUsed       decimal.Decimal `json:"amount_used"`
	TransactionCount int             `json:"transaction_count"`
}

// LimitStatus is the read-side view served by GET /transfer-limits/{account}.
type LimitStatus struct {
	AccountNumber         string          `json:"account_number"`
	Privilege             PrivilegeTier   `json:"privilege"`
	DailyLimit            decimal.Decimal `json:"daily_limit"`
	DailyUsed             decimal.Decimal `json:"daily_used"`
	DailyRemaining        decimal.Decimal `json:"daily_remaining"`
	TransactionLimit      int             `json:"transaction_limit"`
	TransactionsToday     int             `json:"transactions_today"`
	TransactionsRemaining int             `json:"transactions_remaining"`
}

// LimitDecision answers "can this account transfer this amount right now".
type LimitDecision struct {
	CanTransfer    bool            `json:"can_transfer"`
	Reason         string          `json:"reason,omitempty"`
	DailyRemaining decimal.Decimal `json:"daily_remaining"`
}
