package service

import (
	"context"
	"testing"

	"github.com/harborpay/transaction-service/internal/models"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTransferLimits(t *testing.T) {
	f := newFixture()
	f.ledger.addAccount("ACC-1", 1000, models.PrivilegeSilver, "1234")
	f.limits.used = decimal.NewFromInt(24700)
	f.limits.count = 3

	status, err := f.svc.GetTransferLimits(context.Background(), "ACC-1")

	require.NoError(t, err)
	assert.Equal(t, models.PrivilegeSilver, status.Privilege)
	assert.True(t, status.DailyLimit.Equal(decimal.NewFromInt(25000)))
	assert.True(t, status.DailyUsed.Equal(decimal.NewFromInt(24700)))
	assert.True(t, status.DailyRemaining.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 25, status.TransactionLimit)
	assert.Equal(t, 3, status.TransactionsToday)
	assert.Equal(t, 22, status.TransactionsRemaining)
}

func TestGetTransferLimits_RemainingClampedToZero(t *testing.T) {
	f := newFixture()
	f.ledger.addAccount("ACC-1", 1000, models.PrivilegeSilver, "1234")
	f.limits.used = decimal.NewFromInt(26000)
	f.limits.count = 30

	status, err := f.svc.GetTransferLimits(context.Background(), "ACC-1")

	require.NoError(t, err)
	assert.True(t, status.DailyRemaining.IsZero())
	assert.Equal(t, 0, status.TransactionsRemaining)
}

func TestCheckTransferLimit(t *testing.T) {
	f := newFixture()
	f.ledger.addAccount("ACC-1", 1000, models.PrivilegeSilver, "1234")
	f.limits.used = decimal.NewFromInt(24700)

	allowed, err := f.svc.CheckTransferLimit(context.Background(), "ACC-1", decimal.NewFromInt(300))
	require.NoError(t, err)
	assert.True(t, allowed.CanTransfer)

	denied, err := f.svc.CheckTransferLimit(context.Background(), "ACC-1", decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.False(t, denied.CanTransfer)
	assert.True(t, denied.DailyRemaining.Equal(decimal.NewFromInt(300)))
	assert.NotEmpty(t, denied.Reason)
}

func TestCheckTransferLimit_UnknownAccount(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CheckTransferLimit(context.Background(), "NOPE", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, pkgerrors.ErrAccountNotFound)
}

func TestPrivilegeTierIsCached(t *testing.T) {
	f := newFixture()
	f.ledger.addAccount("ACC-1", 1000, models.PrivilegeGold, "1234")

	_, err := f.svc.GetTransferLimits(context.Background(), "ACC-1")
	require.NoError(t, err)
	first := f.ledger.callCount()

	_, err = f.svc.GetTransferLimits(context.Background(), "ACC-1")
	require.NoError(t, err)

	assert.Equal(t, first, f.ledger.callCount(), "second lookup served from cache")
}
