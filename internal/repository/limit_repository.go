package repository

import (
	"context"
	"time"

	"github.com/harborpay/transaction-service/internal/models"
	"github.com/shopspring/decimal"
)

type LimitRepository interface {
	// GetRule is a static in-memory lookup; limits are policy constants, not
	// persisted entities.
	GetRule(tier models.PrivilegeTier) (models.PrivilegeRule, error)
	// Daily usage is derived from SUCCESS rows where the account is the
	// source, within the calendar day containing `day` in the reference
	// time zone.
	GetDailyUsedAmount(ctx context.Context, account string, day time.Time) (decimal.Decimal, error)
	GetDailyTransactionCount(ctx context.Context, account string, day time.Time) (int, error)
}
