package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harborpay/transaction-service/internal/infrastructure/observability"
	"github.com/harborpay/transaction-service/internal/models"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

const transactionColumns = `id, from_account, to_account, amount, kind, status, description, idempotency_key, from_new_balance, to_new_balance, error_message, created_at, updated_at`

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, bool, error) {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateTransaction").Observe(time.Since(start).Seconds())
	}()

	if tx == nil {
		err = fmt.Errorf("%w: transaction is nil", pkgerrors.ErrDatabaseError)
		return nil, false, err
	}
	if tx.IdempotencyKey == "" {
		err = pkgerrors.ErrIdempotencyKeyRequired
		slog.Error("refusing to create transaction without idempotency key", "kind", tx.Kind)
		return nil, false, err
	}
	if tx.Kind != models.KindDeposit && tx.Kind != models.KindWithdraw && tx.Kind != models.KindTransfer {
		err = fmt.Errorf("%w: invalid transaction kind %q", pkgerrors.ErrDatabaseError, tx.Kind)
		return nil, false, err
	}
	if tx.Amount.LessThanOrEqual(decimal.Zero) {
		err = fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidAmount)
		return nil, false, err
	}

	span.SetAttributes(
		attribute.String("kind", string(tx.Kind)),
		attribute.String("idempotency_key", tx.IdempotencyKey),
	)

	query := `INSERT INTO transactions (from_account, to_account, amount, kind, status, description, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		nullString(tx.FromAccount),
		nullString(tx.ToAccount),
		tx.Amount,
		tx.Kind,
		models.StatusPending,
		tx.Description,
		tx.IdempotencyKey,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		// Key already taken: hand back the existing record so a retried
		// request observes the same transaction identity.
		existing, getErr := r.getByIdempotencyKey(ctx, tx.IdempotencyKey)
		if getErr != nil {
			err = getErr
			return nil, false, err
		}
		err = nil
		slog.Info("idempotency key already present, returning existing transaction",
			"idempotency_key", tx.IdempotencyKey, "transaction_id", existing.ID, "status", existing.Status)
		return existing, false, nil
	}
	if err != nil {
		slog.Error("failed to create transaction", "kind", tx.Kind, "idempotency_key", tx.IdempotencyKey, "error", err)
		return nil, false, fmt.Errorf("%w: failed to create transaction: %v", pkgerrors.ErrDatabaseError, err)
	}

	tx.Status = models.StatusPending
	slog.Info("transaction created", "transaction_id", tx.ID, "kind", tx.Kind, "idempotency_key", tx.IdempotencyKey)
	return tx, true, nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get transaction %d: %v", pkgerrors.ErrDatabaseError, id, err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) getByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, key))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get transaction by idempotency key: %v", pkgerrors.ErrDatabaseError, err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) Transition(ctx context.Context, id int64, from, to models.TransactionStatus, update models.TransactionUpdate) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "TransitionTransaction")
	span.SetAttributes(
		attribute.Int64("transaction_id", id),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("TransitionTransaction", status).Inc()
		observability.RepositoryDuration.WithLabelValues("TransitionTransaction").Observe(time.Since(start).Seconds())
	}()

	sets, args := buildUpdate(update)
	sets = append([]string{fmt.Sprintf("status = $%d", len(args)+1)}, sets...)
	args = append([]interface{}{to}, args...)
	// Re-number the placeholders after prepending status.
	sets, args = renumber(sets, args)

	args = append(args, id, from)
	query := fmt.Sprintf(`UPDATE transactions SET %s, updated_at = NOW() WHERE id = $%d AND status = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	res, execErr := r.db.ExecContext(ctx, query, args...)
	if execErr != nil {
		err = fmt.Errorf("%w: failed to transition transaction %d: %v", pkgerrors.ErrDatabaseError, id, execErr)
		slog.Error("failed to transition transaction", "transaction_id", id, "from", from, "to", to, "error", execErr)
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		err = r.transitionConflict(ctx, id, from, to)
		return err
	}

	slog.Info("transaction transitioned", "transaction_id", id, "from", from, "to", to)
	return nil
}

func (r *PostgresTransactionRepository) MarkTerminal(ctx context.Context, id int64, status models.TransactionStatus, update models.TransactionUpdate) error {
	var err error
	tracer := otel.Tracer("transaction-repository")
	ctx, span := tracer.Start(ctx, "MarkTransactionTerminal")
	span.SetAttributes(attribute.Int64("transaction_id", id), attribute.String("status", string(status)))
	defer span.End()

	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("MarkTransactionTerminal", outcome).Inc()
		observability.RepositoryDuration.WithLabelValues("MarkTransactionTerminal").Observe(time.Since(start).Seconds())
	}()

	if !status.IsTerminal() {
		err = fmt.Errorf("%w: %q is not a terminal status", pkgerrors.ErrDatabaseError, status)
		return err
	}

	sets, args := buildUpdate(update)
	sets = append([]string{fmt.Sprintf("status = $%d", len(args)+1)}, sets...)
	args = append([]interface{}{status}, args...)
	sets, args = renumber(sets, args)

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE transactions SET %s, updated_at = NOW()
		WHERE id = $%d AND status NOT IN ('SUCCESS', 'FAILED', 'COMPENSATED')`,
		strings.Join(sets, ", "), len(args))

	res, execErr := r.db.ExecContext(ctx, query, args...)
	if execErr != nil {
		err = fmt.Errorf("%w: failed to mark transaction %d terminal: %v", pkgerrors.ErrDatabaseError, id, execErr)
		slog.Error("failed to mark transaction terminal", "transaction_id", id, "status", status, "error", execErr)
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		err = pkgerrors.ErrAlreadyTerminal
		slog.Warn("refused terminal transition on already-terminal transaction", "transaction_id", id, "status", status)
		return err
	}

	slog.Info("transaction marked terminal", "transaction_id", id, "status", status)
	return nil
}

func (r *PostgresTransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	where := []string{"(from_account = $1 OR to_account = $1)"}
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
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list transactions: %v", pkgerrors.ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: failed to scan transaction: %v", pkgerrors.ErrDatabaseError, scanErr)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func (r *PostgresTransactionRepository) ListInFlight(ctx context.Context, statuses []models.TransactionStatus, olderThan time.Time) ([]models.Transaction, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at ASC LIMIT 100`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(strs), olderThan)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list in-flight transactions: %v", pkgerrors.ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: failed to scan transaction: %v", pkgerrors.ErrDatabaseError, scanErr)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// transitionConflict decides which error a zero-row guarded update maps to.
func (r *PostgresTransactionRepository) transitionConflict(ctx context.Context, id int64, from, to models.TransactionStatus) error {
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	if current.Status.IsTerminal() {
		return pkgerrors.ErrAlreadyTerminal
	}
	return fmt.Errorf("%w: transaction %d is %s, expected %s", pkgerrors.ErrDatabaseError, id, current.Status, from)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var from, to, errMsg sql.NullString
	var fromBal, toBal decimal.NullDecimal
	err := row.Scan(&tx.ID, &from, &to, &tx.Amount, &tx.Kind, &tx.Status, &tx.Description,
		&tx.IdempotencyKey, &fromBal, &toBal, &errMsg, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	tx.FromAccount = from.String
	tx.ToAccount = to.String
	tx.ErrorMessage = errMsg.String
	if fromBal.Valid {
		tx.FromNewBalance = &fromBal.Decimal
	}
	if toBal.Valid {
		tx.ToNewBalance = &toBal.Decimal
	}
	return &tx, nil
}

// buildUpdate turns a typed partial update into SET clauses. Only fields the
// caller actually supplied are touched.
func buildUpdate(update models.TransactionUpdate) ([]string, []interface{}) {
	var sets []string
	var args []interface{}
	if update.ErrorMessage != nil {
		args = append(args, *update.ErrorMessage)
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if update.FromNewBalance != nil {
		args = append(args, *update.FromNewBalance)
		sets = append(sets, fmt.Sprintf("from_new_balance = $%d", len(args)))
	}
	if update.ToNewBalance != nil {
		args = append(args, *update.ToNewBalance)
		sets = append(sets, fmt.Sprintf("to_new_balance = $%d", len(args)))
	}
	return sets, args
}

// renumber rewrites $N placeholders to match positional args after clauses
// have been prepended.
func renumber(sets []string, args []interface{}) ([]string, []interface{}) {
	out := make([]string, len(sets))
	for i, s := range sets {
		idx := strings.LastIndex(s, "$")
		out[i] = fmt.Sprintf("%s$%d", s[:idx], i+1)
	}
	return out, args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
