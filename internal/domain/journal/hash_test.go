package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry() *JournalEntry {
	return &JournalEntry{
		TenantID:    "tenant1",
		EntryID:     "01JENTRY",
		FundID:      "fund1",
		Seq:         1,
		Date:        "2025-10-01",
		Description: "October assessment billing",
		Reference:   "INV-1001",
		Lines: []JournalLine{
			{AccountID: "ar", Debit: 50000},
			{AccountID: "income", Credit: 50000},
		},
		CreatedAt: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestChainHash(t *testing.T) {
	t.Run("deterministic for equal content", func(t *testing.T) {
		a, err := ChainHash(testEntry(), "")
		require.NoError(t, err)
		b, err := ChainHash(testEntry(), "")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("depends on previous hash", func(t *testing.T) {
		a, err := ChainHash(testEntry(), "")
		require.NoError(t, err)
		b, err := ChainHash(testEntry(), a)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("changes when content changes", func(t *testing.T) {
		base, err := ChainHash(testEntry(), "")
		require.NoError(t, err)

		tampered := testEntry()
		tampered.Lines[0].Debit = 50001
		got, err := ChainHash(tampered, "")
		require.NoError(t, err)
		assert.NotEqual(t, base, got)
	})

	t.Run("ignores mutable linkage fields", func(t *testing.T) {
		base, err := ChainHash(testEntry(), "")
		require.NoError(t, err)

		matched := testEntry()
		matched.ReversedBy = "01JOTHER"
		matched.MatchedTxnID = "01JTXN"
		got, err := ChainHash(matched, "")
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})
}
