package reconcile

import (
	"time"

	"github.com/hoaworks/fundledger/internal/domain/journal"
)

// TxnStatus represents the lifecycle state of a bank transaction
type TxnStatus string

const (
	// StatusUnmatched is the initial state after statement ingestion
	StatusUnmatched TxnStatus = "unmatched"
	// StatusMatched links the transaction to an existing journal entry
	StatusMatched TxnStatus = "matched"
	// StatusIgnored excludes the transaction from the balance equation but
	// keeps it for audit
	StatusIgnored TxnStatus = "ignored"
	// StatusCreated means a balancing journal entry was created from the
	// transaction (bank fees, interest)
	StatusCreated TxnStatus = "created"
)

// Terminal reports whether a status accepts no further transitions.
// Administrative unmatch is a rare manual override outside this engine.
func (s TxnStatus) Terminal() bool {
	return s == StatusMatched || s == StatusIgnored || s == StatusCreated
}

// BankStatement represents one externally supplied statement for a fund.
// Balances are as claimed by the bank, in minor units.
type BankStatement struct {
	TenantID         string     `json:"tenantId"`
	StatementID      string     `json:"statementId"`
	FundID           string     `json:"fundId"`
	StatementDate    string     `json:"statementDate"` // YYYY-MM-DD
	BeginningBalance int64      `json:"beginningBalance"`
	EndingBalance    int64      `json:"endingBalance"`
	Reconciled       bool       `json:"reconciled"`
	ReconciledAt     *time.Time `json:"reconciledAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// BankTransaction is one line of a statement. Financial fields never change
// after ingestion; only the status lifecycle moves, guarded by Version.
type BankTransaction struct {
	TenantID    string `json:"tenantId"`
	StatementID string `json:"statementId"`
	TxnID       string `json:"txnId"`
	FundID      string `json:"fundId"`
	// Amount is signed in minor units: positive deposits, negative withdrawals
	Amount      int64     `json:"amount"`
	Date        string    `json:"date"` // YYYY-MM-DD
	Description string    `json:"description"`
	Reference   string    `json:"reference,omitempty"`
	Status      TxnStatus `json:"status"`
	// MatchedEntryID is the journal entry backing this transaction.
	// Exclusive: an entry backs at most one transaction at a time.
	MatchedEntryID string  `json:"matchedEntryId,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	IgnoreReason   string  `json:"ignoreReason,omitempty"`
	// Version supports optimistic concurrency on status transitions
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// MatchCandidate pairs a transaction with a scored journal entry. Ephemeral;
// never persisted.
type MatchCandidate struct {
	Transaction *BankTransaction      `json:"transaction"`
	Entry       *journal.JournalEntry `json:"entry"`
	Confidence  float64               `json:"confidence"`
	Reason      string                `json:"reason"`
}

// UploadTransaction is one statement line as supplied by the ingestion
// collaborator, amount as a decimal string like "-45.00"
type UploadTransaction struct {
	Amount      string `json:"amount" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Description string `json:"description"`
	Reference   string `json:"reference,omitempty"`
}

// UploadStatementRequest represents a statement upload
type UploadStatementRequest struct {
	FundID           string              `json:"fundId" validate:"required"`
	StatementDate    string              `json:"statementDate" validate:"required"`
	BeginningBalance string              `json:"beginningBalance" validate:"required"`
	EndingBalance    string              `json:"endingBalance" validate:"required"`
	Transactions     []UploadTransaction `json:"transactions"`
}

// ReconciliationReport summarizes a statement. Always recomputed from the
// statement's transactions, never cached, and differences are surfaced
// verbatim.
type ReconciliationReport struct {
	StatementID      string `json:"statementId"`
	BeginningBalance int64  `json:"beginningBalance"`
	EndingBalance    int64  `json:"endingBalance"`
	TotalDeposits    int64  `json:"totalDeposits"`
	TotalWithdrawals int64  `json:"totalWithdrawals"`
	CalculatedBalance int64 `json:"calculatedBalance"`
	Difference       int64  `json:"difference"`
	MatchedCount     int    `json:"matchedCount"`
	UnmatchedCount   int    `json:"unmatchedCount"`
	IgnoredCount     int    `json:"ignoredCount"`
	CreatedCount     int    `json:"createdCount"`
	// IgnoredTotal is excluded from the balance equation but disclosed
	IgnoredTotal int64 `json:"ignoredTotal"`
	Reconciled   bool  `json:"reconciled"`
}
