package repository

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoaworks/fundledger/internal/domain/journal"
	"github.com/hoaworks/fundledger/internal/domain/reconcile"
)

func testStatement() *reconcile.BankStatement {
	return &reconcile.BankStatement{
		TenantID:         "tenant1",
		StatementID:      "stmt1",
		FundID:           "fund1",
		StatementDate:    "2025-10-31",
		BeginningBalance: 1000000,
		EndingBalance:    1070000,
		CreatedAt:        time.Now().UTC(),
	}
}

func testTransaction(txnID string, amount int64) *reconcile.BankTransaction {
	return &reconcile.BankTransaction{
		TenantID:    "tenant1",
		StatementID: "stmt1",
		TxnID:       txnID,
		FundID:      "fund1",
		Amount:      amount,
		Date:        "2025-10-01",
		Description: "Test transaction",
		Status:      reconcile.StatusUnmatched,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
}

func seedReconcileFixture(t *testing.T) (*DynamoDBStatementRepository, *DynamoDBJournalRepository) {
	t.Helper()
	client := NewTestClient()
	stmtRepo := NewDynamoDBStatementRepository(client, "test-table", slog.Default())
	journalRepo := NewDynamoDBJournalRepository(client, "test-table", slog.Default())

	require.NoError(t, stmtRepo.CreateStatement(context.Background(), testStatement()))
	require.NoError(t, stmtRepo.CreateTransactions(context.Background(), []*reconcile.BankTransaction{
		testTransaction("txn1", 50000),
		testTransaction("txn2", -4500),
	}))
	require.NoError(t, journalRepo.Append(context.Background(), testEntry("e1", 1, "h1", "")))
	return stmtRepo, journalRepo
}

func TestStatementRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := seedReconcileFixture(t)

	stmt, err := repo.GetStatement(ctx, "tenant1", "stmt1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), stmt.BeginningBalance)
	assert.False(t, stmt.Reconciled)

	// statements are tenant scoped
	_, err = repo.GetStatement(ctx, "tenant2", "stmt1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")

	txns, err := repo.ListTransactions(ctx, "tenant1", "stmt1")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, reconcile.StatusUnmatched, txns[0].Status)

	txn, err := repo.GetTransaction(ctx, "tenant1", "txn2")
	require.NoError(t, err)
	assert.Equal(t, int64(-4500), txn.Amount)
}

func TestTransitionMatched(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps both sides and bumps the version", func(t *testing.T) {
		stmtRepo, journalRepo := seedReconcileFixture(t)

		txn, err := stmtRepo.GetTransaction(ctx, "tenant1", "txn1")
		require.NoError(t, err)
		txn.Status = reconcile.StatusMatched
		txn.MatchedEntryID = "e1"
		txn.Confidence = 1.0
		require.NoError(t, stmtRepo.TransitionMatched(ctx, txn, "e1"))

		got, err := stmtRepo.GetTransaction(ctx, "tenant1", "txn1")
		require.NoError(t, err)
		assert.Equal(t, reconcile.StatusMatched, got.Status)
		assert.Equal(t, "e1", got.MatchedEntryID)
		assert.Equal(t, int64(2), got.Version)

		entry, err := journalRepo.Get(ctx, "tenant1", "e1")
		require.NoError(t, err)
		assert.Equal(t, "txn1", entry.MatchedTxnID)
	})

	t.Run("consumed entry rejects a second transaction", func(t *testing.T) {
		stmtRepo, _ := seedReconcileFixture(t)

		txn1, err := stmtRepo.GetTransaction(ctx, "tenant1", "txn1")
		require.NoError(t, err)
		txn1.Status = reconcile.StatusMatched
		txn1.MatchedEntryID = "e1"
		require.NoError(t, stmtRepo.TransitionMatched(ctx, txn1, "e1"))

		txn2, err := stmtRepo.GetTransaction(ctx, "tenant1", "txn2")
		require.NoError(t, err)
		txn2.Status = reconcile.StatusMatched
		txn2.MatchedEntryID = "e1"
		err = stmtRepo.TransitionMatched(ctx, txn2, "e1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ALREADY_MATCHED")
	})

	t.Run("stale version loses", func(t *testing.T) {
		stmtRepo, _ := seedReconcileFixture(t)

		txn, err := stmtRepo.GetTransaction(ctx, "tenant1", "txn1")
		require.NoError(t, err)
		stale := *txn

		txn.Status = reconcile.StatusIgnored
		txn.IgnoreReason = "duplicate"
		require.NoError(t, stmtRepo.UpdateTransactionStatus(ctx, txn))

		stale.Status = reconcile.StatusMatched
		stale.MatchedEntryID = "e1"
		err = stmtRepo.TransitionMatched(ctx, &stale, "e1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CONCURRENT_MODIFICATION")
	})

	t.Run("failed transition leaves the entry untouched", func(t *testing.T) {
		stmtRepo, journalRepo := seedReconcileFixture(t)

		txn, err := stmtRepo.GetTransaction(ctx, "tenant1", "txn1")
		require.NoError(t, err)
		txn.Version = 99 // stale on purpose
		txn.Status = reconcile.StatusMatched
		txn.MatchedEntryID = "e1"
		require.Error(t, stmtRepo.TransitionMatched(ctx, txn, "e1"))

		entry, err := journalRepo.Get(ctx, "tenant1", "e1")
		require.NoError(t, err)
		assert.Empty(t, entry.MatchedTxnID)
	})
}

func TestMarkReconciled(t *testing.T) {
	ctx := context.Background()
	repo, _ := seedReconcileFixture(t)

	require.NoError(t, repo.MarkReconciled(ctx, "tenant1", "stmt1"))

	stmt, err := repo.GetStatement(ctx, "tenant1", "stmt1")
	require.NoError(t, err)
	assert.True(t, stmt.Reconciled)
	require.NotNil(t, stmt.ReconciledAt)

	err = repo.MarkReconciled(ctx, "tenant1", "stmt1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATEMENT_ALREADY_RECONCILED")
}

var _ journal.Repository = (*DynamoDBJournalRepository)(nil)
var _ reconcile.Repository = (*DynamoDBStatementRepository)(nil)
