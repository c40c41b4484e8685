package journal

import (
	"context"
)

// Repository defines the interface for append-only journal storage. No
// operation ever deletes or rewrites an entry's financial content.
type Repository interface {
	// Append writes a new entry and advances the fund head in one atomic
	// step, conditional on the head still being at entry.Seq-1. A lost race
	// surfaces as a CONCURRENT_MODIFICATION error.
	Append(ctx context.Context, entry *JournalEntry) error

	// AppendReversal atomically appends a reversing entry and marks the
	// original as reversed-by it, conditional on the original not already
	// having a reversing successor (ALREADY_REVERSED on conflict).
	AppendReversal(ctx context.Context, reversal *JournalEntry, originalID string) error

	// Get retrieves an entry by ID
	Get(ctx context.Context, tenantID string, entryID string) (*JournalEntry, error)

	// Head returns the tail position of a fund's ledger (Seq 0 when empty)
	Head(ctx context.Context, fundID string) (*FundHead, error)

	// ListByFund reads entries in ascending sequence order
	ListByFund(ctx context.Context, fundID string, opts ListOptions) ([]*JournalEntry, error)

	// MarkMatched sets the exclusive matched-transaction reference on an
	// entry, conditional on it being unset (ALREADY_MATCHED on conflict).
	MarkMatched(ctx context.Context, tenantID string, entryID string, txnID string) error
}
