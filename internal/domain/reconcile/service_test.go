package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoaworks/fundledger/internal/domain/errors"
	"github.com/hoaworks/fundledger/internal/domain/journal"
	"github.com/hoaworks/fundledger/internal/domain/registry"
	"github.com/hoaworks/fundledger/internal/domain/tenant"
)

// memStore backs both the reconcile repository and the journal log for
// service tests, so TransitionMatched can enforce exclusivity across both
type memStore struct {
	mu         sync.Mutex
	statements map[string]*BankStatement
	txns       map[string]*BankTransaction
	txnOrder   []string
	entries    map[string]*journal.JournalEntry
	entryOrder []string
	batches    [][]string
	nextSeq    uint64
}

func newMemStore() *memStore {
	return &memStore{
		statements: make(map[string]*BankStatement),
		txns:       make(map[string]*BankTransaction),
		entries:    make(map[string]*journal.JournalEntry),
	}
}

func (m *memStore) CreateStatement(ctx context.Context, stmt *BankStatement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *stmt
	m.statements[stmt.StatementID] = &cp
	return nil
}

func (m *memStore) CreateTransactions(ctx context.Context, txns []*BankTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, txn := range txns {
		cp := *txn
		m.txns[txn.TxnID] = &cp
		m.txnOrder = append(m.txnOrder, txn.TxnID)
		ids = append(ids, txn.TxnID)
	}
	m.batches = append(m.batches, ids)
	return nil
}

func (m *memStore) GetStatement(ctx context.Context, tenantID, statementID string) (*BankStatement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stmt, ok := m.statements[statementID]
	if !ok {
		return nil, errors.NewNotFoundError("statement not found")
	}
	cp := *stmt
	return &cp, nil
}

func (m *memStore) GetTransaction(ctx context.Context, tenantID, txnID string) (*BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[txnID]
	if !ok {
		return nil, errors.NewNotFoundError("transaction not found")
	}
	cp := *txn
	return &cp, nil
}

func (m *memStore) ListTransactions(ctx context.Context, tenantID, statementID string) ([]*BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BankTransaction
	for _, id := range m.txnOrder {
		txn := m.txns[id]
		if txn.StatementID == statementID {
			cp := *txn
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) TransitionMatched(ctx context.Context, txn *BankTransaction, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[entryID]
	if !ok {
		return errors.NewNotFoundError("journal entry not found")
	}
	if entry.MatchedTxnID != "" {
		return errors.NewAlreadyMatchedError(entryID)
	}
	stored, ok := m.txns[txn.TxnID]
	if !ok {
		return errors.NewNotFoundError("transaction not found")
	}
	if stored.Version != txn.Version {
		return errors.NewConcurrentModificationError("transaction version moved")
	}
	entry.MatchedTxnID = txn.TxnID
	cp := *txn
	cp.Version++
	m.txns[txn.TxnID] = &cp
	return nil
}

func (m *memStore) UpdateTransactionStatus(ctx context.Context, txn *BankTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.txns[txn.TxnID]
	if !ok {
		return errors.NewNotFoundError("transaction not found")
	}
	if stored.Version != txn.Version {
		return errors.NewConcurrentModificationError("transaction version moved")
	}
	cp := *txn
	cp.Version++
	m.txns[txn.TxnID] = &cp
	return nil
}

func (m *memStore) MarkReconciled(ctx context.Context, tenantID, statementID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stmt, ok := m.statements[statementID]
	if !ok {
		return errors.NewNotFoundError("statement not found")
	}
	now := time.Now().UTC()
	stmt.Reconciled = true
	stmt.ReconciledAt = &now
	return nil
}

// journal.Repository (read side plus Post support for the fake poster)

func (m *memStore) Append(ctx context.Context, entry *journal.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.EntryID] = &cp
	m.entryOrder = append(m.entryOrder, entry.EntryID)
	return nil
}

func (m *memStore) AppendReversal(ctx context.Context, reversal *journal.JournalEntry, originalID string) error {
	return m.Append(ctx, reversal)
}

func (m *memStore) Get(ctx context.Context, tenantID, entryID string) (*journal.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryID]
	if !ok {
		return nil, errors.NewNotFoundError("journal entry not found")
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) Head(ctx context.Context, fundID string) (*journal.FundHead, error) {
	return &journal.FundHead{FundID: fundID}, nil
}

func (m *memStore) ListByFund(ctx context.Context, fundID string, opts journal.ListOptions) ([]*journal.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*journal.JournalEntry
	for _, id := range m.entryOrder {
		e := m.entries[id]
		if e.FundID == fundID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) MarkMatched(ctx context.Context, tenantID, entryID, txnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryID]
	if !ok {
		return errors.NewNotFoundError("journal entry not found")
	}
	if e.MatchedTxnID != "" {
		return errors.NewAlreadyMatchedError(entryID)
	}
	e.MatchedTxnID = txnID
	return nil
}

// Post implements EntryPoster without the full engine
func (m *memStore) Post(ctx context.Context, tenantCtx *tenant.TenantContext, draft *journal.EntryDraft) (*journal.JournalEntry, error) {
	m.mu.Lock()
	m.nextSeq++
	seq := m.nextSeq
	m.mu.Unlock()

	entry := &journal.JournalEntry{
		TenantID:    tenantCtx.TenantID,
		EntryID:     ulid.Make().String(),
		FundID:      draft.FundID,
		Seq:         seq,
		Date:        draft.Date,
		Description: draft.Description,
		Reference:   draft.Reference,
		Lines:       draft.Lines,
		Status:      journal.StatusPosted,
		CreatedAt:   time.Now().UTC(),
	}
	return entry, m.Append(ctx, entry)
}

type memFunds struct{}

func (memFunds) GetFund(ctx context.Context, tenantID, fundID string) (*registry.Fund, error) {
	if fundID != "op" {
		return nil, errors.NewNotFoundError("fund not found")
	}
	return &registry.Fund{
		TenantID: "t1", FundID: "op", FundType: registry.Operating,
		BankAccountID: "cash", Active: true,
	}, nil
}

func newTestService(store *memStore, cfg Config) *Service {
	return NewService(store, store, store, memFunds{}, cfg, slog.Default())
}

func tctx() *tenant.TenantContext {
	return &tenant.TenantContext{TenantID: "t1", UserID: "reviewer"}
}

func seedStatement(t *testing.T, store *memStore, svc *Service, txns []UploadTransaction) (*BankStatement, []*BankTransaction) {
	t.Helper()
	stmt, err := svc.UploadStatement(context.Background(), tctx(), &UploadStatementRequest{
		FundID:           "op",
		StatementDate:    "2025-10-31",
		BeginningBalance: "10000.00",
		EndingBalance:    "10700.00",
		Transactions:     txns,
	})
	require.NoError(t, err)
	list, err := store.ListTransactions(context.Background(), "t1", stmt.StatementID)
	require.NoError(t, err)
	return stmt, list
}

func seedEntry(t *testing.T, store *memStore, date string, amount int64, reference string) *journal.JournalEntry {
	t.Helper()
	lines := []journal.JournalLine{
		{AccountID: "cash", Debit: amount},
		{AccountID: "income", Credit: amount},
	}
	if amount < 0 {
		lines = []journal.JournalLine{
			{AccountID: "expenses", Debit: -amount},
			{AccountID: "cash", Credit: -amount},
		}
	}
	entry, err := store.Post(context.Background(), tctx(), &journal.EntryDraft{
		FundID: "op", Date: date, Description: "seed", Reference: reference, Lines: lines,
	})
	require.NoError(t, err)
	return entry
}

func TestUploadStatement(t *testing.T) {
	ctx := context.Background()

	t.Run("parses decimal amounts into minor units", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())

		stmt, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01", Description: "Deposit"},
			{Amount: "-45.50", Date: "2025-10-02", Description: "Bank fee"},
		})
		assert.Equal(t, int64(1000000), stmt.BeginningBalance)
		assert.Equal(t, int64(1070000), stmt.EndingBalance)
		require.Len(t, txns, 2)
		assert.Equal(t, int64(50000), txns[0].Amount)
		assert.Equal(t, int64(-4550), txns[1].Amount)
		assert.Equal(t, StatusUnmatched, txns[0].Status)
	})

	t.Run("commits bounded batches independently", func(t *testing.T) {
		store := newMemStore()
		cfg := DefaultConfig()
		cfg.BatchSize = 2
		svc := newTestService(store, cfg)

		var txns []UploadTransaction
		for i := 0; i < 5; i++ {
			txns = append(txns, UploadTransaction{Amount: "1.00", Date: "2025-10-01"})
		}
		seedStatement(t, store, svc, txns)
		require.Len(t, store.batches, 3)
		assert.Len(t, store.batches[0], 2)
		assert.Len(t, store.batches[2], 1)
	})

	t.Run("rejects sub-cent precision", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		_, err := svc.UploadStatement(ctx, tctx(), &UploadStatementRequest{
			FundID: "op", StatementDate: "2025-10-31",
			BeginningBalance: "10000.001", EndingBalance: "10700.00",
		})
		assert.ErrorIs(t, err, errors.NewValidationError(""))
	})
}

func TestSuggest(t *testing.T) {
	ctx := context.Background()

	t.Run("sorted candidates across the cascade", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		exact := seedEntry(t, store, "2025-10-01", 50000, "")
		fuzzy := seedEntry(t, store, "2025-10-03", 49990, "")
		fallback := seedEntry(t, store, "2025-10-20", 50000, "")

		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01", Description: "Deposit"},
		})

		candidates, err := svc.Suggest(ctx, "t1", txns[0].TxnID)
		require.NoError(t, err)
		require.Len(t, candidates, 3)
		assert.Equal(t, exact.EntryID, candidates[0].Entry.EntryID)
		assert.Equal(t, 1.00, candidates[0].Confidence)
		assert.Equal(t, fuzzy.EntryID, candidates[1].Entry.EntryID)
		assert.Equal(t, 0.95, candidates[1].Confidence)
		assert.Equal(t, fallback.EntryID, candidates[2].Entry.EntryID)
		assert.Equal(t, 0.50, candidates[2].Confidence)
	})

	t.Run("no candidates is an empty list", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "123.45", Date: "2025-10-01"},
		})

		candidates, err := svc.Suggest(ctx, "t1", txns[0].TxnID)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("excludes consumed entries and entries outside the window", func(t *testing.T) {
		store := newMemStore()
		cfg := DefaultConfig()
		cfg.DateWindowDays = 7
		svc := newTestService(store, cfg)

		consumed := seedEntry(t, store, "2025-10-01", 50000, "")
		seedEntry(t, store, "2025-08-01", 50000, "")
		require.NoError(t, store.MarkMatched(ctx, "t1", consumed.EntryID, "othertxn"))

		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01"},
		})
		candidates, err := svc.Suggest(ctx, "t1", txns[0].TxnID)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})
}

func TestConfirmMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("transitions transaction and consumes entry", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		entry := seedEntry(t, store, "2025-10-01", 50000, "")
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01"},
		})

		require.NoError(t, svc.ConfirmMatch(ctx, tctx(), txns[0].TxnID, entry.EntryID))

		got, err := store.GetTransaction(ctx, "t1", txns[0].TxnID)
		require.NoError(t, err)
		assert.Equal(t, StatusMatched, got.Status)
		assert.Equal(t, entry.EntryID, got.MatchedEntryID)
		assert.Equal(t, 1.00, got.Confidence)

		stored, err := store.Get(ctx, "t1", entry.EntryID)
		require.NoError(t, err)
		assert.Equal(t, txns[0].TxnID, stored.MatchedTxnID)
	})

	t.Run("exactly one of two concurrent confirmations wins the entry", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		entry := seedEntry(t, store, "2025-10-01", 50000, "")
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01"},
			{Amount: "500.00", Date: "2025-10-01"},
		})

		results := make(chan error, 2)
		var wg sync.WaitGroup
		for _, txn := range txns {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				results <- svc.ConfirmMatch(ctx, tctx(), id, entry.EntryID)
			}(txn.TxnID)
		}
		wg.Wait()
		close(results)

		var wins, losses int
		for err := range results {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, errors.NewAlreadyMatchedError(""))
				losses++
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, losses)
	})

	t.Run("rejects confirmation on reconciled statement", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		entry := seedEntry(t, store, "2025-10-01", 50000, "")
		stmt, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01"},
		})
		require.NoError(t, store.MarkReconciled(ctx, "t1", stmt.StatementID))

		err := svc.ConfirmMatch(ctx, tctx(), txns[0].TxnID, entry.EntryID)
		assert.ErrorIs(t, err, errors.NewStatementAlreadyReconciledError(""))
	})

	t.Run("rejects already terminal transaction", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		entry := seedEntry(t, store, "2025-10-01", 50000, "")
		other := seedEntry(t, store, "2025-10-01", 50000, "")
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01"},
		})
		require.NoError(t, svc.ConfirmMatch(ctx, tctx(), txns[0].TxnID, entry.EntryID))

		err := svc.ConfirmMatch(ctx, tctx(), txns[0].TxnID, other.EntryID)
		assert.ErrorIs(t, err, errors.NewConflictError(""))
	})
}

func TestAutoConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms at or above threshold", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		seedEntry(t, store, "2025-10-01", 49950, "")
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-03"},
		})

		confirmed, err := svc.AutoConfirm(ctx, tctx(), txns[0].TxnID)
		require.NoError(t, err)
		assert.True(t, confirmed)

		got, err := store.GetTransaction(ctx, "t1", txns[0].TxnID)
		require.NoError(t, err)
		assert.Equal(t, StatusMatched, got.Status)
		assert.Equal(t, 0.95, got.Confidence)
	})

	t.Run("leaves low-confidence transactions for a human", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		seedEntry(t, store, "2025-09-10", 50000, "")
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01"},
		})

		confirmed, err := svc.AutoConfirm(ctx, tctx(), txns[0].TxnID)
		require.NoError(t, err)
		assert.False(t, confirmed)

		got, err := store.GetTransaction(ctx, "t1", txns[0].TxnID)
		require.NoError(t, err)
		assert.Equal(t, StatusUnmatched, got.Status)
	})
}

func TestCreateFromTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("posts balancing entry for a bank fee", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "-45.00", Date: "2025-10-02", Description: "Monthly service fee"},
		})

		entry, err := svc.CreateFromTransaction(ctx, tctx(), txns[0].TxnID, "expenses")
		require.NoError(t, err)
		require.Len(t, entry.Lines, 2)
		assert.Equal(t, "expenses", entry.Lines[0].AccountID)
		assert.Equal(t, int64(4500), entry.Lines[0].Debit)
		assert.Equal(t, "cash", entry.Lines[1].AccountID)
		assert.Equal(t, int64(4500), entry.Lines[1].Credit)

		got, err := store.GetTransaction(ctx, "t1", txns[0].TxnID)
		require.NoError(t, err)
		assert.Equal(t, StatusCreated, got.Status)
		assert.Equal(t, entry.EntryID, got.MatchedEntryID)
	})

	t.Run("deposit debits the bank account", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "12.50", Date: "2025-10-02", Description: "Interest"},
		})

		entry, err := svc.CreateFromTransaction(ctx, tctx(), txns[0].TxnID, "income")
		require.NoError(t, err)
		assert.Equal(t, "cash", entry.Lines[0].AccountID)
		assert.Equal(t, int64(1250), entry.Lines[0].Debit)
	})
}

func TestIgnore(t *testing.T) {
	ctx := context.Background()

	t.Run("marks ignored with audit reason", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01"},
		})

		require.NoError(t, svc.Ignore(ctx, tctx(), txns[0].TxnID, "duplicate of prior statement"))
		got, err := store.GetTransaction(ctx, "t1", txns[0].TxnID)
		require.NoError(t, err)
		assert.Equal(t, StatusIgnored, got.Status)
		assert.Equal(t, "duplicate of prior statement", got.IgnoreReason)
	})

	t.Run("requires a reason", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		_, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "500.00", Date: "2025-10-01"},
		})
		err := svc.Ignore(ctx, tctx(), txns[0].TxnID, "  ")
		assert.ErrorIs(t, err, errors.NewValidationError(""))
	})
}

func TestReport(t *testing.T) {
	ctx := context.Background()

	// Beginning 10,000.00, deposits 2,500.00, withdrawals 1,800.00 against an
	// ending balance of 10,700.00 must reconcile exactly.
	setup := func(t *testing.T) (*Service, *memStore, *BankStatement, []*BankTransaction) {
		store := newMemStore()
		svc := newTestService(store, DefaultConfig())
		e1 := seedEntry(t, store, "2025-10-05", 250000, "")
		e2 := seedEntry(t, store, "2025-10-12", -180000, "")
		stmt, txns := seedStatement(t, store, svc, []UploadTransaction{
			{Amount: "2500.00", Date: "2025-10-05", Description: "Assessments"},
			{Amount: "-1800.00", Date: "2025-10-12", Description: "Landscaping"},
			{Amount: "99.99", Date: "2025-10-20", Description: "Unknown deposit"},
		})
		require.NoError(t, svc.ConfirmMatch(ctx, tctx(), txns[0].TxnID, e1.EntryID))
		require.NoError(t, svc.ConfirmMatch(ctx, tctx(), txns[1].TxnID, e2.EntryID))
		return svc, store, stmt, txns
	}

	t.Run("surfaces discrepancy while unmatched transactions remain", func(t *testing.T) {
		svc, _, stmt, _ := setup(t)
		report, err := svc.Report(ctx, "t1", stmt.StatementID)
		require.NoError(t, err)
		assert.Equal(t, int64(250000), report.TotalDeposits)
		assert.Equal(t, int64(180000), report.TotalWithdrawals)
		assert.Equal(t, int64(1070000), report.CalculatedBalance)
		assert.Equal(t, int64(0), report.Difference)
		assert.Equal(t, 1, report.UnmatchedCount)
		assert.False(t, report.Reconciled)
	})

	t.Run("reconciles once the stray transaction is ignored", func(t *testing.T) {
		svc, _, stmt, txns := setup(t)
		require.NoError(t, svc.Ignore(ctx, tctx(), txns[2].TxnID, "bank error, disputed"))

		report, err := svc.Report(ctx, "t1", stmt.StatementID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), report.Difference)
		assert.Equal(t, 0, report.UnmatchedCount)
		assert.Equal(t, 1, report.IgnoredCount)
		assert.Equal(t, int64(9999), report.IgnoredTotal)
		assert.Equal(t, int64(250000), report.TotalDeposits, "ignored amounts stay out of the totals")
		assert.True(t, report.Reconciled)
	})

	t.Run("finalize closes the statement exactly once", func(t *testing.T) {
		svc, _, stmt, txns := setup(t)

		_, err := svc.Finalize(ctx, tctx(), stmt.StatementID)
		assert.ErrorIs(t, err, errors.NewValidationError(""), "unmatched transaction blocks finalize")

		require.NoError(t, svc.Ignore(ctx, tctx(), txns[2].TxnID, "bank error, disputed"))
		report, err := svc.Finalize(ctx, tctx(), stmt.StatementID)
		require.NoError(t, err)
		assert.True(t, report.Reconciled)

		_, err = svc.Finalize(ctx, tctx(), stmt.StatementID)
		assert.ErrorIs(t, err, errors.NewStatementAlreadyReconciledError(""))
	})
}
