package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoaworks/fundledger/internal/domain/journal"
)

func depositEntry(seq uint64, date string, amount int64, reference string) *journal.JournalEntry {
	return &journal.JournalEntry{
		TenantID: "t1", EntryID: "E" + date, FundID: "op", Seq: seq,
		Date: date, Reference: reference, Status: journal.StatusPosted,
		Lines: []journal.JournalLine{
			{AccountID: "cash", Debit: amount},
			{AccountID: "income", Credit: amount},
		},
	}
}

func TestScoreCascade(t *testing.T) {
	rules := DefaultRules()

	t.Run("exact amount and date", func(t *testing.T) {
		txn := &BankTransaction{Amount: 50000, Date: "2025-10-01"}
		rule, ok := score(rules, txn, depositEntry(1, "2025-10-01", 50000, ""), "cash")
		require.True(t, ok)
		assert.Equal(t, "exact", rule.Code)
		assert.Equal(t, 1.00, rule.Confidence)
	})

	t.Run("fuzzy within one currency unit and three days", func(t *testing.T) {
		txn := &BankTransaction{Amount: 49950, Date: "2025-10-03"}
		rule, ok := score(rules, txn, depositEntry(1, "2025-10-01", 50000, ""), "cash")
		require.True(t, ok)
		assert.Equal(t, "fuzzy", rule.Code)
		assert.Equal(t, 0.95, rule.Confidence)
	})

	t.Run("reference token found verbatim", func(t *testing.T) {
		txn := &BankTransaction{Amount: 12345, Date: "2025-10-20", Reference: "1042"}
		rule, ok := score(rules, txn, depositEntry(1, "2025-10-01", 99999, "check 1042 roof repair"), "cash")
		require.True(t, ok)
		assert.Equal(t, "reference", rule.Code)
		assert.Equal(t, 0.88, rule.Confidence)
	})

	t.Run("amount-only fallback", func(t *testing.T) {
		txn := &BankTransaction{Amount: 50000, Date: "2025-10-25"}
		rule, ok := score(rules, txn, depositEntry(1, "2025-10-01", 50000, ""), "cash")
		require.True(t, ok)
		assert.Equal(t, "amount-only", rule.Code)
		assert.Equal(t, 0.50, rule.Confidence)
	})

	t.Run("no rule matches", func(t *testing.T) {
		txn := &BankTransaction{Amount: 11111, Date: "2025-10-25"}
		_, ok := score(rules, txn, depositEntry(1, "2025-10-01", 50000, ""), "cash")
		assert.False(t, ok)
	})

	t.Run("withdrawals compare against credited bank account", func(t *testing.T) {
		entry := &journal.JournalEntry{
			EntryID: "W1", FundID: "op", Seq: 1, Date: "2025-10-05",
			Lines: []journal.JournalLine{
				{AccountID: "expenses", Debit: 4500},
				{AccountID: "cash", Credit: 4500},
			},
		}
		txn := &BankTransaction{Amount: -4500, Date: "2025-10-05"}
		rule, ok := score(rules, txn, entry, "cash")
		require.True(t, ok)
		assert.Equal(t, "exact", rule.Code)
	})
}

func TestSortCandidates(t *testing.T) {
	t.Run("descending confidence", func(t *testing.T) {
		candidates := []*MatchCandidate{
			{Entry: depositEntry(1, "2025-10-01", 1, ""), Confidence: 0.50},
			{Entry: depositEntry(2, "2025-10-01", 1, ""), Confidence: 1.00},
			{Entry: depositEntry(3, "2025-10-01", 1, ""), Confidence: 0.95},
		}
		sortCandidates(candidates)
		assert.Equal(t, 1.00, candidates[0].Confidence)
		assert.Equal(t, 0.95, candidates[1].Confidence)
		assert.Equal(t, 0.50, candidates[2].Confidence)
	})

	t.Run("ties break by earliest date then lowest sequence", func(t *testing.T) {
		candidates := []*MatchCandidate{
			{Entry: depositEntry(7, "2025-10-03", 1, ""), Confidence: 0.95},
			{Entry: depositEntry(5, "2025-10-01", 1, ""), Confidence: 0.95},
			{Entry: depositEntry(2, "2025-10-01", 1, ""), Confidence: 0.95},
		}
		sortCandidates(candidates)
		assert.Equal(t, uint64(2), candidates[0].Entry.Seq)
		assert.Equal(t, uint64(5), candidates[1].Entry.Seq)
		assert.Equal(t, uint64(7), candidates[2].Entry.Seq)
	})
}
