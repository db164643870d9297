// Package validation holds the pure input checks that run before any remote
// call or database write. Nothing here does I/O.
package validation

import (
	"fmt"

	"github.com/harborpay/transaction-service/internal/models"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
)

// Amount rejects non-positive amounts and amounts above the configured
// ceiling.
func Amount(amount, max decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive, got %s", pkgerrors.ErrInvalidAmount, amount)
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return fmt.Errorf("%w: amount %s exceeds maximum %s", pkgerrors.ErrInvalidAmount, amount, max)
	}
	return nil
}

// PIN rejects anything that is not exactly pinLength digits.
func PIN(pin string, pinLength int) error {
	if len(pin) != pinLength {
		return fmt.Errorf("%w: PIN must be exactly %d digits", pkgerrors.ErrInvalidPIN, pinLength)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: PIN must be numeric", pkgerrors.ErrInvalidPIN)
		}
	}
	return nil
}

// DistinctAccounts rejects a transfer onto itself. This check runs before any
// remote call regardless of amount or PIN.
func DistinctAccounts(from, to string) error {
	if from == to {
		return fmt.Errorf("%w: %s", pkgerrors.ErrSameAccountTransfer, from)
	}
	return nil
}

// CheckWithinLimits is pure arithmetic over usage numbers supplied by the
// limit repository: would the proposed amount push the account past either
// the daily amount limit or the daily transaction count?
func CheckWithinLimits(usage models.DailyLimitUsage, proposed decimal.Decimal, rule models.PrivilegeRule) models.LimitDecision {
	remaining := rule.DailyAmountLimit.Sub(usage.AmountUsed)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	if usage.TransactionCount >= rule.DailyCountLimit {
		return models.LimitDecision{
			CanTransfer:    false,
			Reason:         fmt.Sprintf("daily transaction count limit of %d reached", rule.DailyCountLimit),
			DailyRemaining: remaining,
		}
	}

	if usage.AmountUsed.Add(proposed).GreaterThan(rule.DailyAmountLimit) {
		return models.LimitDecision{
			CanTransfer:    false,
			Reason:         fmt.Sprintf("amount %s exceeds remaining daily limit %s", proposed, remaining),
			DailyRemaining: remaining,
		}
	}

	return models.LimitDecision{
		CanTransfer:    true,
		DailyRemaining: remaining.Sub(proposed),
	}
}
