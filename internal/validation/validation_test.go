package validation

import (
	"testing"

	"github.com/harborpay/transaction-service/internal/models"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAmount(t *testing.T) {
	max := decimal.NewFromInt(100000)

	t.Run("positive amount within ceiling", func(t *testing.T) {
		assert.NoError(t, Amount(decimal.NewFromInt(500), max))
	})

	t.Run("zero amount", func(t *testing.T) {
		err := Amount(decimal.Zero, max)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
	})

	t.Run("negative amount", func(t *testing.T) {
		err := Amount(decimal.NewFromInt(-10), max)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
	})

	t.Run("amount above ceiling", func(t *testing.T) {
		err := Amount(decimal.NewFromInt(100001), max)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
	})

	t.Run("no ceiling configured", func(t *testing.T) {
		assert.NoError(t, Amount(decimal.NewFromInt(999999999), decimal.Zero))
	})
}

func TestPIN(t *testing.T) {
	t.Run("valid four digit pin", func(t *testing.T) {
		assert.NoError(t, PIN("1234", 4))
	})

	t.Run("too short", func(t *testing.T) {
		assert.ErrorIs(t, PIN("123", 4), pkgerrors.ErrInvalidPIN)
	})

	t.Run("too long", func(t *testing.T) {
		assert.ErrorIs(t, PIN("12345", 4), pkgerrors.ErrInvalidPIN)
	})

	t.Run("non numeric", func(t *testing.T) {
		assert.ErrorIs(t, PIN("12a4", 4), pkgerrors.ErrInvalidPIN)
	})
}

func TestDistinctAccounts(t *testing.T) {
	assert.NoError(t, DistinctAccounts("ACC001", "ACC002"))
	assert.ErrorIs(t, DistinctAccounts("ACC001", "ACC001"), pkgerrors.ErrSameAccountTransfer)
}

func TestCheckWithinLimits(t *testing.T) {
	rule := models.PrivilegeRule{
		Tier:             models.PrivilegeSilver,
		DailyAmountLimit: decimal.NewFromInt(25000),
		DailyCountLimit:  10,
	}

	t.Run("within both limits", func(t *testing.T) {
		usage := models.DailyLimitUsage{AmountUsed: decimal.NewFromInt(1000), TransactionCount: 2}
		d := CheckWithinLimits(usage, decimal.NewFromInt(500), rule)
		assert.True(t, d.CanTransfer)
		assert.True(t, d.DailyRemaining.Equal(decimal.NewFromInt(23500)))
	})

	t.Run("amount limit exceeded with 300 remaining", func(t *testing.T) {
		usage := models.DailyLimitUsage{AmountUsed: decimal.NewFromInt(24700), TransactionCount: 3}
		d := CheckWithinLimits(usage, decimal.NewFromInt(500), rule)
		assert.False(t, d.CanTransfer)
		assert.True(t, d.DailyRemaining.Equal(decimal.NewFromInt(300)))
		assert.Contains(t, d.Reason, "exceeds remaining daily limit")
	})

	t.Run("exactly at the limit is allowed", func(t *testing.T) {
		usage := models.DailyLimitUsage{AmountUsed: decimal.NewFromInt(24500), TransactionCount: 3}
		d := CheckWithinLimits(usage, decimal.NewFromInt(500), rule)
		assert.True(t, d.CanTransfer)
		assert.True(t, d.DailyRemaining.Equal(decimal.Zero))
	})

	t.Run("count limit exhausted", func(t *testing.T) {
		usage := models.DailyLimitUsage{AmountUsed: decimal.NewFromInt(100), TransactionCount: 10}
		d := CheckWithinLimits(usage, decimal.NewFromInt(1), rule)
		assert.False(t, d.CanTransfer)
		assert.Contains(t, d.Reason, "transaction count limit")
	})

	t.Run("overdrawn usage clamps remaining to zero", func(t *testing.T) {
		usage := models.DailyLimitUsage{AmountUsed: decimal.NewFromInt(26000), TransactionCount: 4}
		d := CheckWithinLimits(usage, decimal.NewFromInt(1), rule)
		assert.False(t, d.CanTransfer)
		assert.True(t, d.DailyRemaining.Equal(decimal.Zero))
	})
}
