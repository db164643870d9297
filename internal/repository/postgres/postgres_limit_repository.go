package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/harborpay/transaction-service/internal/models"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
)

// defaultRules is the static privilege policy table. These are process-wide
// constants, not persisted entities.
var defaultRules = map[models.PrivilegeTier]models.PrivilegeRule{
	models.PrivilegePremium: {Tier: models.PrivilegePremium, DailyAmountLimit: decimal.NewFromInt(100000), DailyCountLimit: 100},
	models.PrivilegeGold:    {Tier: models.PrivilegeGold, DailyAmountLimit: decimal.NewFromInt(50000), DailyCountLimit: 50},
	models.PrivilegeSilver:  {Tier: models.PrivilegeSilver, DailyAmountLimit: decimal.NewFromInt(25000), DailyCountLimit: 25},
}

// PostgresLimitRepository derives daily usage from the transactions table.
// Only rows that reached SUCCESS count toward usage: a failed attempt must
// not consume limit headroom.
type PostgresLimitRepository struct {
	db    *sql.DB
	rules map[models.PrivilegeTier]models.PrivilegeRule
	loc   *time.Location
}

func NewPostgresLimitRepository(db *sql.DB, loc *time.Location) *PostgresLimitRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresLimitRepository{db: db, rules: defaultRules, loc: loc}
}

func (r *PostgresLimitRepository) GetRule(tier models.PrivilegeTier) (models.PrivilegeRule, error) {
	rule, ok := r.rules[tier]
	if !ok {
		return models.PrivilegeRule{}, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownPrivilege, tier)
	}
	return rule, nil
}

func (r *PostgresLimitRepository) GetDailyUsedAmount(ctx context.Context, account string, day time.Time) (decimal.Decimal, error) {
	start, end := r.dayBounds(day)
	var used decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE from_account = $1 AND status = 'SUCCESS' AND created_at >= $2 AND created_at < $3`
	err := r.db.QueryRowContext(ctx, query, account, start, end).Scan(&used)
	if err != nil {
		slog.Error("failed to get daily used amount", "account", account, "error", err)
		return decimal.Zero, fmt.Errorf("%w: failed to get daily used amount: %v", pkgerrors.ErrDatabaseError, err)
	}
	return used, nil
}

func (r *PostgresLimitRepository) GetDailyTransactionCount(ctx context.Context, account string, day time.Time) (int, error) {
	start, end := r.dayBounds(day)
	var count int
	query := `SELECT COUNT(*) FROM transactions
		WHERE from_account = $1 AND status = 'SUCCESS' AND created_at >= $2 AND created_at < $3`
	err := r.db.QueryRowContext(ctx, query, account, start, end).Scan(&count)
	if err != nil {
		slog.Error("failed to get daily transaction count", "account", account, "error", err)
		return 0, fmt.Errorf("%w: failed to get daily transaction count: %v", pkgerrors.ErrDatabaseError, err)
	}
	return count, nil
}

// dayBounds returns [start, end) of the calendar day containing t in the
// reference time zone.
func (r *PostgresLimitRepository) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(r.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
	return start, start.AddDate(0, 0, 1)
}
