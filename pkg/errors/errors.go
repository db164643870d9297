package errors

import (
	"errors"
)

var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountNotActive       = errors.New("account is not active")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidPIN             = errors.New("invalid PIN")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrSameAccountTransfer    = errors.New("cannot transfer to the same account")
	ErrTransferLimitExceeded  = errors.New("daily transfer limit exceeded")
	ErrDailyCountExceeded     = errors.New("daily transaction count exceeded")
	ErrServiceUnavailable     = errors.New("account ledger service unavailable")
	ErrDatabaseError          = errors.New("database error")
	ErrIdempotencyConflict    = errors.New("request with this idempotency key is already in progress")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrAlreadyTerminal        = errors.New("transaction is already in a terminal state")
	ErrUnknownPrivilege       = errors.New("unknown privilege tier")
	ErrInternal               = errors.New("operation failed")

	// ErrLedgerOutcomeUnknown marks a debit or credit whose outcome could not
	// be confirmed (timeout, connection reset after the request went out). The
	// remote ledger may or may not have applied the mutation; the record must
	// stay visible to the reconciler instead of being marked plain FAILED.
	ErrLedgerOutcomeUnknown = errors.New("ledger mutation outcome unknown")

	// ErrTransferIncomplete is returned when the debit leg of a transfer
	// succeeded but the credit leg did not. Money has left the source account;
	// compensation or reconciliation is pending.
	ErrTransferIncomplete = errors.New("transfer partially applied, pending reconciliation")
)

// Code returns the machine-readable code for a domain error, or
// "INTERNAL_ERROR" for anything unclassified.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return "ACCOUNT_NOT_FOUND"
	case errors.Is(err, ErrAccountNotActive):
		return "ACCOUNT_NOT_ACTIVE"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidPIN):
		return "INVALID_PIN"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrSameAccountTransfer):
		return "SAME_ACCOUNT_TRANSFER"
	case errors.Is(err, ErrTransferLimitExceeded):
		return "TRANSFER_LIMIT_EXCEEDED"
	case errors.Is(err, ErrDailyCountExceeded):
		return "DAILY_TRANSACTION_COUNT_EXCEEDED"
	case errors.Is(err, ErrTransferIncomplete):
		return "TRANSFER_INCOMPLETE"
	case errors.Is(err, ErrLedgerOutcomeUnknown):
		return "LEDGER_OUTCOME_UNKNOWN"
	case errors.Is(err, ErrServiceUnavailable):
		return "SERVICE_UNAVAILABLE"
	case errors.Is(err, ErrIdempotencyConflict):
		return "IDEMPOTENCY_CONFLICT"
	case errors.Is(err, ErrIdempotencyKeyRequired):
		return "IDEMPOTENCY_KEY_REQUIRED"
	case errors.Is(err, ErrTransactionNotFound):
		return "TRANSACTION_NOT_FOUND"
	case errors.Is(err, ErrDatabaseError):
		return "DATABASE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
