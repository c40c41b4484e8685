package journal

import (
	"time"
)

// EntryStatus represents the lifecycle state of a journal entry
type EntryStatus string

const (
	// StatusPosted is the terminal state for a normal entry
	StatusPosted EntryStatus = "posted"
	// StatusReversed marks an entry that has a reversing successor.
	// The entry itself is never mutated beyond this flag and the back-reference.
	StatusReversed EntryStatus = "reversed"
)

// JournalLine is one side of a double-entry. Exactly one of Debit or Credit is
// nonzero, in integer minor units (cents).
type JournalLine struct {
	AccountID string `json:"accountId"`
	Debit     int64  `json:"debit,omitempty"`
	Credit    int64  `json:"credit,omitempty"`
	Memo      string `json:"memo,omitempty"`
}

// JournalEntry represents an immutable financial event in a fund's ledger.
// Created by the engine only; corrections happen via reversing entries.
type JournalEntry struct {
	TenantID string `json:"tenantId"`
	EntryID  string `json:"entryId"`
	FundID   string `json:"fundId"`
	// Seq is the per-fund sequence number (starts at 1). Assigned on append.
	Seq         uint64 `json:"seq"`
	Date        string `json:"date"` // YYYY-MM-DD
	Description string `json:"description"`
	// Reference holds check numbers, invoice numbers and similar tokens.
	// The matching engine searches it verbatim.
	Reference string        `json:"reference,omitempty"`
	InvoiceID string        `json:"invoiceId,omitempty"`
	DueDate   string        `json:"dueDate,omitempty"` // YYYY-MM-DD, for AR aging
	Lines     []JournalLine `json:"lines"`
	Status    EntryStatus   `json:"status"`
	// Reverses is the entry this one reverses (empty for normal entries).
	Reverses string `json:"reverses,omitempty"`
	// ReversedBy is the reversing successor (empty until reversed).
	ReversedBy string `json:"reversedBy,omitempty"`
	// MatchedTxnID is the bank transaction consuming this entry. Exclusive:
	// at most one matched transaction may ever reference an entry.
	MatchedTxnID string `json:"matchedTxnId,omitempty"`
	// Hash chains this entry to its predecessor: H(prevHash || content).
	// PrevHash stores the predecessor's value, empty for the first entry.
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prevHash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// TotalDebits sums the debit side of all lines
func (e *JournalEntry) TotalDebits() int64 {
	var sum int64
	for _, l := range e.Lines {
		sum += l.Debit
	}
	return sum
}

// TotalCredits sums the credit side of all lines
func (e *JournalEntry) TotalCredits() int64 {
	var sum int64
	for _, l := range e.Lines {
		sum += l.Credit
	}
	return sum
}

// EntryDraft represents the data needed to post a journal entry
type EntryDraft struct {
	FundID      string        `json:"fundId"`
	Date        string        `json:"date"` // YYYY-MM-DD
	Description string        `json:"description"`
	Reference   string        `json:"reference,omitempty"`
	InvoiceID   string        `json:"invoiceId,omitempty"`
	DueDate     string        `json:"dueDate,omitempty"`
	Lines       []JournalLine `json:"lines"`
}

// FundHead tracks the tail of a fund's ledger: the last assigned sequence
// number and the last chain hash. Seq 0 with an empty hash means no entries.
type FundHead struct {
	FundID string `json:"fundId"`
	Seq    uint64 `json:"seq"`
	Hash   string `json:"hash,omitempty"`
}

// ListOptions bounds a sequential read of a fund's ledger
type ListOptions struct {
	FromSeq uint64
	ToSeq   uint64 // zero means no upper bound
	Limit   int    // zero means no limit
}
