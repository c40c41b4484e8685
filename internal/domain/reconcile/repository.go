package reconcile

import (
	"context"
)

// Repository defines the interface for statement and transaction storage.
// Statements and transactions are never deleted; financial fields never
// change after ingestion.
type Repository interface {
	// CreateStatement stores the statement header
	CreateStatement(ctx context.Context, stmt *BankStatement) error

	// CreateTransactions stores one ingestion batch. Each batch commits
	// independently so a timeout loses no completed batches.
	CreateTransactions(ctx context.Context, txns []*BankTransaction) error

	// GetStatement retrieves a statement header by ID
	GetStatement(ctx context.Context, tenantID string, statementID string) (*BankStatement, error)

	// GetTransaction retrieves a single transaction
	GetTransaction(ctx context.Context, tenantID string, txnID string) (*BankTransaction, error)

	// ListTransactions returns all transactions of a statement in ingestion order
	ListTransactions(ctx context.Context, tenantID string, statementID string) ([]*BankTransaction, error)

	// TransitionMatched atomically moves the transaction out of unmatched
	// (conditional on its version) and stamps the entry's exclusive
	// matched-transaction reference (conditional on it being unset). Exactly
	// one of two concurrent callers can succeed; the loser sees
	// ALREADY_MATCHED or CONCURRENT_MODIFICATION.
	TransitionMatched(ctx context.Context, txn *BankTransaction, entryID string) error

	// UpdateTransactionStatus applies a status-only transition (ignored),
	// conditional on the transaction's version
	UpdateTransactionStatus(ctx context.Context, txn *BankTransaction) error

	// MarkReconciled closes out a statement
	MarkReconciled(ctx context.Context, tenantID string, statementID string) error
}
