// Package audit dual-writes the audit trail: one queryable copy in the
// transaction_logs table and one append-only copy in a per-day flat file.
// The ledger mutation is the source of truth; neither audit leg may fail an
// operation that already moved money.
package audit

import (
	"bufio"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harborpay/transaction-service/internal/infrastructure/observability"
	"github.com/harborpay/transaction-service/internal/models"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
)

type Repository struct {
	db  *sql.DB
	dir string
	loc *time.Location
}

func NewRepository(db *sql.DB, dir string, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{db: db, dir: dir, loc: loc}
}

// Record dual-writes the entry. Failures on either leg are logged and
// swallowed.
func (r *Repository) Record(ctx context.Context, entry *models.AuditLogEntry) {
	if err := r.WriteDb(ctx, entry); err != nil {
		slog.Error("audit db write failed", "transaction_id", entry.TransactionID, "error", err)
	}
	if err := r.AppendFile(entry); err != nil {
		slog.Error("audit file append failed", "transaction_id", entry.TransactionID, "error", err)
	}
}

func (r *Repository) WriteDb(ctx context.Context, entry *models.AuditLogEntry) error {
	var err error
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.RepositoryCalls.WithLabelValues("WriteAuditLog", status).Inc()
		observability.RepositoryDuration.WithLabelValues("WriteAuditLog").Observe(time.Since(start).Seconds())
	}()

	if entry == nil {
		err = fmt.Errorf("%w: audit entry is nil", pkgerrors.ErrDatabaseError)
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().In(r.loc)
	}

	query := `INSERT INTO transaction_logs (transaction_id, account_number, amount, kind, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err = r.db.QueryRowContext(ctx, query,
		entry.TransactionID, entry.AccountNumber, entry.Amount, entry.Kind, entry.Status, entry.Description, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("%w: failed to insert audit log: %v", pkgerrors.ErrDatabaseError, err)
	}
	return nil
}

// AppendFile writes one pipe-separated line to the file named for the entry's
// calendar date, creating the directory on demand.
// Format: timestamp|account|kind|amount|status|transaction_id|description
func (r *Repository) AppendFile(entry *models.AuditLogEntry) error {
	if entry == nil {
		return fmt.Errorf("audit entry is nil")
	}
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now().In(r.loc)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(r.fileForDate(ts), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s\n",
		ts.Format(time.RFC3339),
		entry.AccountNumber,
		entry.Kind,
		entry.Amount,
		entry.Status,
		entry.TransactionID,
		sanitize(entry.Description),
	)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append audit log line: %w", err)
	}
	return nil
}

func (r *Repository) GetByTransactionID(ctx context.Context, transactionID int64) ([]models.AuditLogEntry, error) {
	query := `SELECT id, transaction_id, account_number, amount, kind, status, description, created_at
		FROM transaction_logs WHERE transaction_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query audit logs: %v", pkgerrors.ErrDatabaseError, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *Repository) GetByAccount(ctx context.Context, filter models.TransactionFilter) ([]models.AuditLogEntry, error) {
	where := []string{"account_number = $1"}
	args := []interface{}{filter.Account}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, filter.Skip)
	query := fmt.Sprintf(`SELECT id, transaction_id, account_number, amount, kind, status, description, created_at
		FROM transaction_logs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query audit logs: %v", pkgerrors.ErrDatabaseError, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ReadDayFile returns the raw lines of the flat file for one calendar date.
// A missing file means no activity that day, not an error.
func (r *Repository) ReadDayFile(date time.Time) ([]string, error) {
	f, err := os.Open(r.fileForDate(date))
	if stderrors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func (r *Repository) Summarize(ctx context.Context, account string, from, to time.Time) (*models.AuditSummary, error) {
	query := `SELECT kind, status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM transaction_logs
		WHERE account_number = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY kind, status`
	rows, err := r.db.QueryContext(ctx, query, account, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to summarize audit logs: %v", pkgerrors.ErrDatabaseError, err)
	}
	defer rows.Close()

	summary := &models.AuditSummary{
		AccountNumber: account,
		CountByKind:   map[models.TransactionKind]int{},
		CountByStatus: map[models.TransactionStatus]int{},
	}
	for rows.Next() {
		var kind models.TransactionKind
		var status models.TransactionStatus
		var count int
		var total decimal.Decimal
		if err := rows.Scan(&kind, &status, &count, &total); err != nil {
			return nil, fmt.Errorf("%w: failed to scan audit summary row: %v", pkgerrors.ErrDatabaseError, err)
		}
		summary.CountByKind[kind] += count
		summary.CountByStatus[status] += count
		summary.TotalAmount = summary.TotalAmount.Add(total)
	}
	return summary, rows.Err()
}

func (r *Repository) fileForDate(t time.Time) string {
	return filepath.Join(r.dir, fmt.Sprintf("audit-%s.log", t.In(r.loc).Format("2006-01-02")))
}

// sanitize keeps the line format parseable: the description is the last field
// but embedded pipes and newlines would still corrupt grep-ability.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func scanEntries(rows *sql.Rows) ([]models.AuditLogEntry, error) {
	var out []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountNumber, &e.Amount, &e.Kind, &e.Status, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan audit log row: %v", pkgerrors.ErrDatabaseError, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
