package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/harborpay/transaction-service/internal/models"
)

func (s *transactionService) GetTransactionLogs(ctx context.Context, filter models.TransactionFilter) ([]models.AuditLogEntry, error) {
	entries, err := s.auditRepo.GetByAccount(ctx, filter)
	if err != nil {
		slog.Error("failed to get transaction logs", "account", filter.Account, "error", err)
		return nil, err
	}
	return entries, nil
}

func (s *transactionService) GetLogsByTransaction(ctx context.Context, transactionID int64) ([]models.AuditLogEntry, error) {
	entries, err := s.auditRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		slog.Error("failed to get logs by transaction", "transaction_id", transactionID, "error", err)
		return nil, err
	}
	return entries, nil
}

func (s *transactionService) GetLogSummary(ctx context.Context, account string, from, to time.Time) (*models.AuditSummary, error) {
	summary, err := s.auditRepo.Summarize(ctx, account, from, to)
	if err != nil {
		slog.Error("failed to summarize logs", "account", account, "error", err)
		return nil, err
	}
	return summary, nil
}

func (s *transactionService) GetDayFileLines(date time.Time) ([]string, error) {
	return s.auditRepo.ReadDayFile(date)
}
