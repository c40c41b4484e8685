package journal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// entryContent is the canonical hashing envelope for a journal entry. Only
// fields fixed at posting time participate; mutable linkage fields
// (ReversedBy, MatchedTxnID) are excluded so later status transitions do not
// break the chain.
type entryContent struct {
	TenantID    string        `json:"tenantId"`
	EntryID     string        `json:"entryId"`
	FundID      string        `json:"fundId"`
	Seq         uint64        `json:"seq"`
	Date        string        `json:"date"`
	Description string        `json:"description"`
	Reference   string        `json:"reference,omitempty"`
	InvoiceID   string        `json:"invoiceId,omitempty"`
	DueDate     string        `json:"dueDate,omitempty"`
	Lines       []JournalLine `json:"lines"`
	Reverses    string        `json:"reverses,omitempty"`
	CreatedAt   string        `json:"createdAt"`
}

// canonicalContent serializes the hashed subset of an entry deterministically.
// Field order is fixed by the envelope struct and the encoder never emits
// HTML escapes, so equal content always yields equal bytes.
func canonicalContent(e *JournalEntry) ([]byte, error) {
	content := entryContent{
		TenantID:    e.TenantID,
		EntryID:     e.EntryID,
		FundID:      e.FundID,
		Seq:         e.Seq,
		Date:        e.Date,
		Description: e.Description,
		Reference:   e.Reference,
		InvoiceID:   e.InvoiceID,
		DueDate:     e.DueDate,
		Lines:       e.Lines,
		Reverses:    e.Reverses,
		CreatedAt:   e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(content); err != nil {
		return nil, fmt.Errorf("encode canonical entry: %w", err)
	}

	// Remove trailing newline from Encode
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}

	return result, nil
}

// ChainHash computes the tamper-evidence hash linking an entry to its
// predecessor: SHA-256 over the previous hash concatenated with the entry's
// canonical serialization. Recomputing the chain from sequence 1 must
// reproduce every stored value.
func ChainHash(e *JournalEntry, prevHash string) (string, error) {
	content, err := canonicalContent(e)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil)), nil
}
