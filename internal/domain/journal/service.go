package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"github.com/hoaworks/fundledger/internal/common/utils"
	"github.com/hoaworks/fundledger/internal/domain/errors"
	"github.com/hoaworks/fundledger/internal/domain/registry"
	"github.com/hoaworks/fundledger/internal/domain/tenant"
)

// AccountLookup resolves accounts and funds for entry validation.
// Satisfied by the registry service.
type AccountLookup interface {
	GetAccount(ctx context.Context, tenantID string, accountID string) (*registry.Account, error)
	GetFund(ctx context.Context, tenantID string, fundID string) (*registry.Fund, error)
}

// ProjectionSink receives posted entries so read models can extend their
// materialized views. Delivery is at-least-once; sinks must apply
// idempotently, keyed by (fund, seq).
type ProjectionSink interface {
	EntryPosted(entry *JournalEntry)
}

// Service is the journal engine: it validates and appends balanced entries,
// produces reversals, and verifies the per-fund hash chain.
type Service struct {
	repo     Repository
	accounts AccountLookup
	sink     ProjectionSink
	logger   *slog.Logger

	// mu guards fundMu and halted. Posting itself only holds the per-fund
	// mutex, so funds post independently and in parallel.
	mu     sync.Mutex
	fundMu map[string]*sync.Mutex
	halted map[string]errors.AppError
}

// NewService creates a new journal engine. sink may be nil.
func NewService(repo Repository, accounts AccountLookup, sink ProjectionSink, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		sink:     sink,
		logger:   logger,
		fundMu:   make(map[string]*sync.Mutex),
		halted:   make(map[string]errors.AppError),
	}
}

// Post validates a draft and appends it to the fund's ledger. The entire
// entry is accepted or rejected; no partial line is ever persisted.
func (s *Service) Post(ctx context.Context, tenantCtx *tenant.TenantContext, draft *EntryDraft) (*JournalEntry, error) {
	if err := s.validateDraft(ctx, tenantCtx.TenantID, draft); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &JournalEntry{
		TenantID:    tenantCtx.TenantID,
		EntryID:     ulid.Make().String(),
		FundID:      draft.FundID,
		Date:        draft.Date,
		Description: draft.Description,
		Reference:   draft.Reference,
		InvoiceID:   draft.InvoiceID,
		DueDate:     draft.DueDate,
		Lines:       draft.Lines,
		Status:      StatusPosted,
		CreatedAt:   now,
	}

	if err := s.appendSerialized(ctx, entry, ""); err != nil {
		return nil, err
	}

	s.notify(entry)
	return entry, nil
}

// Reverse posts a new entry with every line's debit and credit swapped,
// back-referencing the original. Idempotent: a second reversal of the same
// entry fails with ALREADY_REVERSED, in-process and across processes.
func (s *Service) Reverse(ctx context.Context, tenantCtx *tenant.TenantContext, entryID string) (*JournalEntry, error) {
	original, err := s.repo.Get(ctx, tenantCtx.TenantID, entryID)
	if err != nil {
		return nil, err
	}
	if original.ReversedBy != "" {
		return nil, errors.NewAlreadyReversedError(entryID)
	}

	lines := make([]JournalLine, len(original.Lines))
	for i, l := range original.Lines {
		lines[i] = JournalLine{
			AccountID: l.AccountID,
			Debit:     l.Credit,
			Credit:    l.Debit,
			Memo:      l.Memo,
		}
	}

	now := time.Now().UTC()
	reversal := &JournalEntry{
		TenantID:    tenantCtx.TenantID,
		EntryID:     ulid.Make().String(),
		FundID:      original.FundID,
		Date:        now.Format("2006-01-02"),
		Description: "Reversal of " + original.Description,
		Reference:   original.Reference,
		InvoiceID:   original.InvoiceID,
		Lines:       lines,
		Status:      StatusPosted,
		Reverses:    original.EntryID,
		CreatedAt:   now,
	}

	if err := s.appendSerialized(ctx, reversal, original.EntryID); err != nil {
		return nil, err
	}

	s.notify(reversal)
	return reversal, nil
}

// VerifyChain replays a fund's ledger from sequence 1 and recomputes every
// chain hash. A mismatch is fatal for that fund: posting halts until the log
// is investigated and the service restarted.
func (s *Service) VerifyChain(ctx context.Context, fundID string) error {
	entries, err := s.repo.ListByFund(ctx, fundID, ListOptions{})
	if err != nil {
		return err
	}

	prev := ""
	for i, e := range entries {
		if e.Seq != uint64(i)+1 {
			return s.haltFund(fundID, e.Seq)
		}
		if e.PrevHash != prev {
			return s.haltFund(fundID, e.Seq)
		}
		want, err := ChainHash(e, prev)
		if err != nil {
			return errors.NewInternalError("recomputing chain hash", err)
		}
		if e.Hash != want {
			return s.haltFund(fundID, e.Seq)
		}
		prev = e.Hash
	}
	return nil
}

// appendSerialized holds the fund's posting mutex while assigning the next
// sequence number, chaining the hash, and appending. The critical section
// performs a single conditional write and no other blocking I/O; the storage
// condition is what makes the single-writer discipline hold across processes.
func (s *Service) appendSerialized(ctx context.Context, entry *JournalEntry, reversedEntryID string) error {
	mu := s.lockFund(entry.FundID)
	mu.Lock()
	defer mu.Unlock()

	if err, halted := s.fundHalted(entry.FundID); halted {
		return err
	}

	head, err := s.repo.Head(ctx, entry.FundID)
	if err != nil {
		return err
	}

	entry.Seq = head.Seq + 1
	entry.PrevHash = head.Hash
	hash, err := ChainHash(entry, head.Hash)
	if err != nil {
		return errors.NewInternalError("computing chain hash", err)
	}
	entry.Hash = hash

	if reversedEntryID != "" {
		err = s.repo.AppendReversal(ctx, entry, reversedEntryID)
	} else {
		err = s.repo.Append(ctx, entry)
	}
	if err != nil {
		return err
	}

	s.logger.Info("journal entry appended",
		"fundId", entry.FundID,
		"entryId", entry.EntryID,
		"seq", entry.Seq,
		"reverses", entry.Reverses)
	return nil
}

func (s *Service) validateDraft(ctx context.Context, tenantID string, draft *EntryDraft) error {
	if len(draft.Lines) == 0 {
		return errors.NewEmptyEntryError()
	}
	if err := utils.ValidateISODate(draft.Date); err != nil {
		return err
	}
	if draft.DueDate != "" {
		if err := utils.ValidateISODate(draft.DueDate); err != nil {
			return err
		}
	}

	var debits, credits int64
	for _, l := range draft.Lines {
		if l.Debit < 0 || l.Credit < 0 {
			return errors.NewValidationError("line amounts must be non-negative minor units")
		}
		if (l.Debit == 0) == (l.Credit == 0) {
			return errors.NewValidationError("each line must have exactly one of debit or credit set")
		}
		debits += l.Debit
		credits += l.Credit
	}
	if debits != credits {
		return errors.NewImbalancedEntryError(debits, credits)
	}

	return s.validateAccounts(ctx, tenantID, draft)
}

// validateAccounts confirms every referenced account exists, belongs to the
// calling tenant, and is active, and that any inter-fund movement carries the
// due-to/due-from pairing for each fund involved.
func (s *Service) validateAccounts(ctx context.Context, tenantID string, draft *EntryDraft) error {
	lineFunds := make(map[string]bool)
	lineAccounts := make(map[string]bool)

	for _, l := range draft.Lines {
		acct, err := s.accounts.GetAccount(ctx, tenantID, l.AccountID)
		if err != nil {
			return errors.NewInvalidAccountError(l.AccountID, "unknown account")
		}
		if acct.TenantID != tenantID {
			return errors.NewInvalidAccountError(l.AccountID, "account belongs to another tenant")
		}
		if !acct.Active {
			return errors.NewInvalidAccountError(l.AccountID, "account is inactive")
		}
		lineFunds[acct.FundID] = true
		lineAccounts[acct.AccountID] = true
	}

	if !lineFunds[draft.FundID] {
		return errors.NewInvalidAccountError(draft.FundID, "no line belongs to the declared fund")
	}
	if len(lineFunds) == 1 {
		return nil
	}

	// Cross-fund lines require the due-to/due-from pairing on every fund
	// touched, so each fund's balance sheet stays self-balancing.
	for fundID := range lineFunds {
		fund, err := s.accounts.GetFund(ctx, tenantID, fundID)
		if err != nil {
			return errors.NewInvalidAccountError(fundID, "unknown fund")
		}
		if !lineAccounts[fund.DueToAccountID] && !lineAccounts[fund.DueFromAccountID] {
			return errors.NewInvalidAccountError(fundID, "cross-fund entry requires a due-to/due-from line for this fund")
		}
	}
	return nil
}

func (s *Service) lockFund(fundID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.fundMu[fundID]
	if !ok {
		mu = &sync.Mutex{}
		s.fundMu[fundID] = mu
	}
	return mu
}

func (s *Service) fundHalted(fundID string) (errors.AppError, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.halted[fundID]
	return err, ok
}

func (s *Service) haltFund(fundID string, seq uint64) error {
	appErr := errors.NewChainVerificationError(fundID, seq)
	s.mu.Lock()
	s.halted[fundID] = appErr
	s.mu.Unlock()
	s.logger.Error("hash chain verification failed, posting halted",
		"fundId", fundID,
		"seq", seq)
	return appErr
}

// notify hands the entry to the projection sink without blocking the caller
func (s *Service) notify(entry *JournalEntry) {
	if s.sink == nil {
		return
	}
	go s.sink.EntryPosted(entry)
}
