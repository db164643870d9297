package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harborpay/transaction-service/internal/models"
	"github.com/harborpay/transaction-service/internal/validation"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

// GetTransferLimits is the read side of the daily-limit machinery: tier,
// policy limits, today's usage, and what is left. No write side effects.
func (s *transactionService) GetTransferLimits(ctx context.Context, account string) (*models.LimitStatus, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "GetTransferLimits")
	defer span.End()

	tier, err := s.privilegeFor(ctx, account)
	if err != nil {
		return nil, err
	}
	rule, err := s.limitRepo.GetRule(tier)
	if err != nil {
		return nil, err
	}
	usage, err := s.dailyUsage(ctx, account)
	if err != nil {
		return nil, err
	}

	remaining := rule.DailyAmountLimit.Sub(usage.AmountUsed)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	countRemaining := rule.DailyCountLimit - usage.TransactionCount
	if countRemaining < 0 {
		countRemaining = 0
	}

	return &models.LimitStatus{
		AccountNumber:         account,
		Privilege:             tier,
		DailyLimit:            rule.DailyAmountLimit,
		DailyUsed:             usage.AmountUsed,
		DailyRemaining:        remaining,
		TransactionLimit:      rule.DailyCountLimit,
		TransactionsToday:     usage.TransactionCount,
		TransactionsRemaining: countRemaining,
	}, nil
}

// CheckTransferLimit answers the standalone "can I transfer" query. The
// transfer path runs the same arithmetic through enforceLimits.
func (s *transactionService) CheckTransferLimit(ctx context.Context, account string, amount decimal.Decimal) (*models.LimitDecision, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "CheckTransferLimit")
	defer span.End()

	tier, err := s.privilegeFor(ctx, account)
	if err != nil {
		return nil, err
	}
	rule, err := s.limitRepo.GetRule(tier)
	if err != nil {
		return nil, err
	}
	usage, err := s.dailyUsage(ctx, account)
	if err != nil {
		return nil, err
	}

	decision := validation.CheckWithinLimits(usage, amount, rule)
	return &decision, nil
}

// privilegeFor reads the account's tier, caching it briefly: tiers change
// rarely and every limit query would otherwise cost a remote round trip.
func (s *transactionService) privilegeFor(ctx context.Context, account string) (models.PrivilegeTier, error) {
	cacheKey := fmt.Sprintf("account:%s:privilege", account)
	if cached, err := s.redisClient.Get(ctx, cacheKey); err == nil && cached != "" {
		return models.PrivilegeTier(cached), nil
	}

	tier, err := s.ledger.GetPrivilege(ctx, account)
	if err != nil {
		return "", err
	}
	if err := s.redisClient.Set(ctx, cacheKey, string(tier), 5*time.Minute); err != nil {
		slog.Warn("failed to cache privilege tier", "account", account, "error", err)
	}
	return tier, nil
}
