package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harborpay/transaction-service/internal/infrastructure/redis"
	"github.com/harborpay/transaction-service/internal/models"
	pkgerrors "github.com/harborpay/transaction-service/pkg/errors"
	"github.com/shopspring/decimal"
)

// fakeLedger is an in-memory stand-in for the remote account ledger. It
// records every call so tests can assert which remote operations ran.
type fakeLedger struct {
	mu       sync.Mutex
	accounts map[string]*models.AccountSnapshot
	pins     map[string]string
	// per-account forced failures
	debitErr  map[string]error
	creditErr map[string]error
	calls     []string
	seenKeys  map[string]bool
	// hooks fired as a mutation starts, e.g. to cancel the caller's context
	// mid-operation
	onDebit  func()
	onCredit func()
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts:  map[string]*models.AccountSnapshot{},
		pins:      map[string]string{},
		debitErr:  map[string]error{},
		creditErr: map[string]error{},
		seenKeys:  map[string]bool{},
	}
}

func (f *fakeLedger) addAccount(number string, balance int64, tier models.PrivilegeTier, pin string) {
	f.accounts[number] = &models.AccountSnapshot{
		AccountNumber: number,
		Balance:       decimal.NewFromInt(balance),
		Privilege:     tier,
		Active:        true,
	}
	f.pins[number] = pin
}

func (f *fakeLedger) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLedger) mutationCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "debit:") || strings.HasPrefix(c, "credit:") {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeLedger) ValidateAccount(_ context.Context, number string) (*models.AccountSnapshot, error) {
	f.record("validate:" + number)
	acc, ok := f.accounts[number]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	if !acc.Active {
		return nil, pkgerrors.ErrAccountNotActive
	}
	snapshot := *acc
	return &snapshot, nil
}

func (f *fakeLedger) VerifyPin(_ context.Context, number, pin string) error {
	f.record("verify-pin:" + number)
	stored, ok := f.pins[number]
	if !ok {
		return pkgerrors.ErrAccountNotFound
	}
	if stored != pin {
		return pkgerrors.ErrInvalidPIN
	}
	return nil
}

func (f *fakeLedger) Debit(_ context.Context, number string, amount decimal.Decimal, _, key string) (*models.LedgerMutationResult, error) {
	f.record("debit:" + number)
	if f.onDebit != nil {
		f.onDebit()
	}
	if err := f.debitErr[number]; err != nil {
		return nil, err
	}
	acc, ok := f.accounts[number]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	f.mu.Lock()
	dup := f.seenKeys["debit:"+key]
	f.seenKeys["debit:"+key] = true
	f.mu.Unlock()
	if !dup {
		if acc.Balance.LessThan(amount) {
			return nil, pkgerrors.ErrInsufficientFunds
		}
		acc.Balance = acc.Balance.Sub(amount)
	}
	return &models.LedgerMutationResult{AccountNumber: number, NewBalance: acc.Balance}, nil
}

func (f *fakeLedger) Credit(_ context.Context, number string, amount decimal.Decimal, _, key string) (*models.LedgerMutationResult, error) {
	f.record("credit:" + number)
	if f.onCredit != nil {
		f.onCredit()
	}
	if err := f.creditErr[number]; err != nil {
		return nil, err
	}
	acc, ok := f.accounts[number]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	f.mu.Lock()
	dup := f.seenKeys["credit:"+key]
	f.seenKeys["credit:"+key] = true
	f.mu.Unlock()
	if !dup {
		acc.Balance = acc.Balance.Add(amount)
	}
	return &models.LedgerMutationResult{AccountNumber: number, NewBalance: acc.Balance}, nil
}

func (f *fakeLedger) GetPrivilege(_ context.Context, number string) (models.PrivilegeTier, error) {
	f.record("privilege:" + number)
	acc, ok := f.accounts[number]
	if !ok {
		return "", pkgerrors.ErrAccountNotFound
	}
	return acc.Privilege, nil
}

// fakeTxRepo is an in-memory transaction repository with the same
// insert-or-fetch and guarded-transition semantics as the Postgres one.
type fakeTxRepo struct {
	mu    sync.Mutex
	seq   int64
	byID  map[int64]*models.Transaction
	byKey map[string]int64
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{byID: map[int64]*models.Transaction{}, byKey: map[string]int64{}}
}

func (f *fakeTxRepo) Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx.IdempotencyKey == "" {
		return nil, false, pkgerrors.ErrIdempotencyKeyRequired
	}
	if id, ok := f.byKey[tx.IdempotencyKey]; ok {
		return f.byID[id], false, nil
	}
	f.seq++
	tx.ID = f.seq
	tx.Status = models.StatusPending
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt
	f.byID[tx.ID] = tx
	f.byKey[tx.IdempotencyKey] = tx.ID
	return tx, true, nil
}

func (f *fakeTxRepo) GetByID(_ context.Context, id int64) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeTxRepo) Transition(ctx context.Context, id int64, from, to models.TransactionStatus, update models.TransactionUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}
	if tx.Status != from {
		if tx.Status.IsTerminal() {
			return pkgerrors.ErrAlreadyTerminal
		}
		return fmt.Errorf("%w: transaction %d is %s, expected %s", pkgerrors.ErrDatabaseError, id, tx.Status, from)
	}
	tx.Status = to
	applyUpdate(tx, update)
	tx.UpdatedAt = time.Now()
	return nil
}

func (f *fakeTxRepo) MarkTerminal(ctx context.Context, id int64, status models.TransactionStatus, update models.TransactionUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return pkgerrors.ErrTransactionNotFound
	}
	if tx.Status.IsTerminal() {
		return pkgerrors.ErrAlreadyTerminal
	}
	tx.Status = status
	applyUpdate(tx, update)
	tx.UpdatedAt = time.Now()
	return nil
}

func (f *fakeTxRepo) List(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, tx := range f.byID {
		if tx.FromAccount == filter.Account || tx.ToAccount == filter.Account {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (f *fakeTxRepo) ListInFlight(_ context.Context, statuses []models.TransactionStatus, olderThan time.Time) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, tx := range f.byID {
		for _, s := range statuses {
			if tx.Status == s && tx.UpdatedAt.Before(olderThan) {
				out = append(out, *tx)
			}
		}
	}
	return out, nil
}

func applyUpdate(tx *models.Transaction, update models.TransactionUpdate) {
	if update.ErrorMessage != nil {
		tx.ErrorMessage = *update.ErrorMessage
	}
	if update.FromNewBalance != nil {
		tx.FromNewBalance = update.FromNewBalance
	}
	if update.ToNewBalance != nil {
		tx.ToNewBalance = update.ToNewBalance
	}
}

// fakeLimitRepo serves the static rules plus canned usage numbers.
type fakeLimitRepo struct {
	rules map[models.PrivilegeTier]models.PrivilegeRule
	used  decimal.Decimal
	count int
}

func newFakeLimitRepo() *fakeLimitRepo {
	return &fakeLimitRepo{
		rules: map[models.PrivilegeTier]models.PrivilegeRule{
			models.PrivilegePremium: {Tier: models.PrivilegePremium, DailyAmountLimit: decimal.NewFromInt(100000), DailyCountLimit: 100},
			models.PrivilegeGold:    {Tier: models.PrivilegeGold, DailyAmountLimit: decimal.NewFromInt(50000), DailyCountLimit: 50},
			models.PrivilegeSilver:  {Tier: models.PrivilegeSilver, DailyAmountLimit: decimal.NewFromInt(25000), DailyCountLimit: 25},
		},
	}
}

func (f *fakeLimitRepo) GetRule(tier models.PrivilegeTier) (models.PrivilegeRule, error) {
	rule, ok := f.rules[tier]
	if !ok {
		return models.PrivilegeRule{}, pkgerrors.ErrUnknownPrivilege
	}
	return rule, nil
}

func (f *fakeLimitRepo) GetDailyUsedAmount(context.Context, string, time.Time) (decimal.Decimal, error) {
	return f.used, nil
}

func (f *fakeLimitRepo) GetDailyTransactionCount(context.Context, string, time.Time) (int, error) {
	return f.count, nil
}

// fakeAuditRepo collects entries in memory.
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry
}

func (f *fakeAuditRepo) Record(_ context.Context, entry *models.AuditLogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
}

func (f *fakeAuditRepo) WriteDb(_ context.Context, entry *models.AuditLogEntry) error {
	f.Record(context.Background(), entry)
	return nil
}

func (f *fakeAuditRepo) AppendFile(*models.AuditLogEntry) error { return nil }

func (f *fakeAuditRepo) GetByTransactionID(_ context.Context, id int64) ([]models.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range f.entries {
		if e.TransactionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) GetByAccount(_ context.Context, filter models.TransactionFilter) ([]models.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range f.entries {
		if e.AccountNumber == filter.Account {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) ReadDayFile(time.Time) ([]string, error) { return nil, nil }

func (f *fakeAuditRepo) Summarize(_ context.Context, account string, _, _ time.Time) (*models.AuditSummary, error) {
	return &models.AuditSummary{AccountNumber: account}, nil
}

func (f *fakeAuditRepo) entriesFor(id int64) []models.AuditLogEntry {
	out, _ := f.GetByTransactionID(context.Background(), id)
	return out
}

// fakeRedis is a map with no expiry.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (f *fakeRedis) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeRedis) Close() error { return nil }

// fakeProducer swallows events.
type fakeProducer struct {
	mu     sync.Mutex
	events int
}

func (f *fakeProducer) Send(context.Context, string, string, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events++
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type fixture struct {
	ledger   *fakeLedger
	txRepo   *fakeTxRepo
	limits   *fakeLimitRepo
	audit    *fakeAuditRepo
	redis    *fakeRedis
	producer *fakeProducer
	svc      TransactionService
}

func newFixture() *fixture {
	f := &fixture{
		ledger:   newFakeLedger(),
		txRepo:   newFakeTxRepo(),
		limits:   newFakeLimitRepo(),
		audit:    &fakeAuditRepo{},
		redis:    newFakeRedis(),
		producer: &fakeProducer{},
	}
	f.svc = NewTransactionService(f.ledger, f.txRepo, f.limits, f.audit, f.redis, f.producer, Settings{
		MaxAmount: decimal.NewFromInt(100000),
		PINLength: 4,
		Location:  time.UTC,
	})
	return f
}
