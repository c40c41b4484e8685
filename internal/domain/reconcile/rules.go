package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/hoaworks/fundledger/internal/domain/journal"
)

// MatchRule is one pure, stateless scoring function in the cascade. Rules are
// evaluated in slice order and the first hit wins for a candidate.
type MatchRule struct {
	Code       string
	Confidence float64
	Matches    func(txn *BankTransaction, entryAmount int64, dateDiffDays int, entryReference string) bool
}

// DefaultRules returns the standard cascade in priority order
func DefaultRules() []MatchRule {
	return []MatchRule{
		{
			Code:       "exact",
			Confidence: 1.00,
			Matches: func(txn *BankTransaction, amount int64, dateDiff int, _ string) bool {
				return amount == txn.Amount && dateDiff == 0
			},
		},
		{
			Code:       "fuzzy",
			Confidence: 0.95,
			Matches: func(txn *BankTransaction, amount int64, dateDiff int, _ string) bool {
				diff := amount - txn.Amount
				if diff < 0 {
					diff = -diff
				}
				return diff <= 100 && dateDiff <= 3
			},
		},
		{
			Code:       "reference",
			Confidence: 0.88,
			Matches: func(txn *BankTransaction, _ int64, _ int, entryReference string) bool {
				return txn.Reference != "" && strings.Contains(entryReference, txn.Reference)
			},
		},
		{
			Code:       "amount-only",
			Confidence: 0.50,
			Matches: func(txn *BankTransaction, amount int64, _ int, _ string) bool {
				return amount == txn.Amount
			},
		},
	}
}

// bankMovement returns the entry's signed movement on the fund's bank
/// account: deposits debit it, withdrawals credit it
func bankMovement(e *journal.JournalEntry, bankAccountID string) int64 {
	var net int64
	for _, l := range e.Lines {
		if l.AccountID == bankAccountID {
			net += l.Debit - l.Credit
		}
	}
	return net
}

// dateDiffDays returns the absolute difference between two ISO dates in days
func dateDiffDays(a, b string) int {
	ta, errA := time.Parse("2006-01-02", a)
	tb, errB := time.Parse("2006-01-02", b)
	if errA != nil || errB != nil {
		return int(^uint(0) >> 1) // unparseable dates never satisfy a window
	}
	days := int(ta.Sub(tb).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// score runs the cascade for a single entry, returning the first matching
// rule or ok=false
func score(rules []MatchRule, txn *BankTransaction, entry *journal.JournalEntry, bankAccountID string) (MatchRule, bool) {
	amount := bankMovement(entry, bankAccountID)
	dateDiff := dateDiffDays(txn.Date, entry.Date)
	for _, r := range rules {
		if r.Matches(txn, amount, dateDiff, entry.Reference) {
			return r, true
		}
	}
	return MatchRule{}, false
}

// sortCandidates orders by descending confidence, breaking ties with the
// earliest entry date, then the lowest sequence number
func sortCandidates(candidates []*MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if candidates[i].Entry.Date != candidates[j].Entry.Date {
			return candidates[i].Entry.Date < candidates[j].Entry.Date
		}
		return candidates[i].Entry.Seq < candidates[j].Entry.Seq
	})
}
