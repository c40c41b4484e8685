package balance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hoaworks/fundledger/internal/common/utils"
	"github.com/hoaworks/fundledger/internal/domain/errors"
	"github.com/hoaworks/fundledger/internal/domain/journal"
	"github.com/hoaworks/fundledger/internal/domain/registry"
)

// AccountLookup resolves accounts for balance signing and funds for aging.
// Satisfied by the registry service.
type AccountLookup interface {
	GetAccount(ctx context.Context, tenantID string, accountID string) (*registry.Account, error)
	GetFund(ctx context.Context, tenantID string, fundID string) (*registry.Fund, error)
}

// Service is the balance projector: a read model over the journal log. It
// holds no information that cannot be reproduced by replaying the log in
// sequence order.
type Service struct {
	log       journal.Repository
	accounts  AccountLookup
	snapshots SnapshotRepository
	logger    *slog.Logger

	// mu serializes snapshot extension; queries replay the log and do not
	// take it
	mu sync.Mutex
}

// NewService creates a new balance projector
func NewService(log journal.Repository, accounts AccountLookup, snapshots SnapshotRepository, logger *slog.Logger) *Service {
	return &Service{
		log:       log,
		accounts:  accounts,
		snapshots: snapshots,
		logger:    logger,
	}
}

// GetBalance replays all posted entries touching the account up to asOf and
// sums signed amounts according to the account's normal balance side. The
// same inputs always produce the same result.
func (s *Service) GetBalance(ctx context.Context, tenantID string, req *GetBalanceRequest) (int64, error) {
	if req.AsOf != "" {
		if err := utils.ValidateISODate(req.AsOf); err != nil {
			return 0, err
		}
	}

	acct, err := s.accounts.GetAccount(ctx, tenantID, req.AccountID)
	if err != nil {
		return 0, err
	}
	if acct.TenantID != tenantID {
		return 0, errors.NewNotFoundError("account not found")
	}

	entries, err := s.log.ListByFund(ctx, acct.FundID, journal.ListOptions{})
	if err != nil {
		return 0, err
	}

	var net int64
	for _, e := range entries {
		// ISO dates compare correctly as strings
		if req.AsOf != "" && e.Date > req.AsOf {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID != req.AccountID {
				continue
			}
			net += l.Debit - l.Credit
		}
	}

	if acct.NormalBalance == registry.CreditNormal {
		return -net, nil
	}
	return net, nil
}

// GetAgingBuckets buckets outstanding invoice-linked receivables for a fund
// by asOf minus due date. An invoice's outstanding amount is the net movement
// on the fund's non-bank asset accounts across every entry tagged with it, so
// billings, payments, and reversals all fold in.
func (s *Service) GetAgingBuckets(ctx context.Context, tenantID string, req *GetAgingBucketsRequest) (*AgingBuckets, error) {
	if err := utils.ValidateISODate(req.AsOf); err != nil {
		return nil, err
	}
	asOf, _ := time.Parse("2006-01-02", req.AsOf)

	fund, err := s.accounts.GetFund(ctx, tenantID, req.FundID)
	if err != nil {
		return nil, err
	}

	entries, err := s.log.ListByFund(ctx, req.FundID, journal.ListOptions{})
	if err != nil {
		return nil, err
	}

	type invoice struct {
		outstanding int64
		dueDate     string
	}
	invoices := make(map[string]*invoice)

	for _, e := range entries {
		if e.InvoiceID == "" || e.Date > req.AsOf {
			continue
		}
		inv := invoices[e.InvoiceID]
		if inv == nil {
			inv = &invoice{}
			invoices[e.InvoiceID] = inv
		}
		if e.DueDate != "" && (inv.dueDate == "" || e.DueDate < inv.dueDate) {
			inv.dueDate = e.DueDate
		}
		for _, l := range e.Lines {
			if l.AccountID == fund.BankAccountID {
				continue
			}
			acct, err := s.accounts.GetAccount(ctx, tenantID, l.AccountID)
			if err != nil {
				return nil, err
			}
			if acct.AccountType != registry.Asset {
				continue
			}
			inv.outstanding += l.Debit - l.Credit
		}
	}

	buckets := &AgingBuckets{}
	for id, inv := range invoices {
		if inv.outstanding <= 0 {
			continue
		}
		if inv.dueDate == "" {
			s.logger.Warn("invoice without due date excluded from aging", "invoiceId", id)
			continue
		}
		due, err := time.Parse("2006-01-02", inv.dueDate)
		if err != nil {
			return nil, errors.NewInternalError("parsing stored due date", err)
		}
		days := int(asOf.Sub(due).Hours() / 24)
		switch {
		case days <= 0:
			buckets.Current += inv.outstanding
		case days <= 30:
			buckets.D30 += inv.outstanding
		case days <= 60:
			buckets.D60 += inv.outstanding
		case days <= 90:
			buckets.D90 += inv.outstanding
		default:
			buckets.D90Plus += inv.outstanding
		}
	}
	return buckets, nil
}

// EntryPosted extends the fund's materialized snapshot with a newly appended
// entry. Implements journal.ProjectionSink. Deliveries may repeat; entries at
// or below the snapshot's LastSeq are skipped, and a sequence gap triggers a
// full rebuild from the log.
func (s *Service) EntryPosted(entry *journal.JournalEntry) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshots.GetSnapshot(ctx, entry.FundID)
	if err != nil {
		s.logger.Error("loading fund snapshot", "fundId", entry.FundID, "error", err)
		return
	}

	switch {
	case entry.Seq <= snap.LastSeq:
		return // already applied
	case entry.Seq == snap.LastSeq+1:
		applyEntry(snap, entry)
	default:
		if err := s.rebuildLocked(ctx, entry.FundID); err != nil {
			s.logger.Error("rebuilding fund snapshot", "fundId", entry.FundID, "error", err)
		}
		return
	}

	if err := s.snapshots.PutSnapshot(ctx, snap); err != nil {
		s.logger.Error("storing fund snapshot", "fundId", entry.FundID, "error", err)
	}
}

// Rebuild reconstructs a fund's snapshot purely by replaying the journal log.
// This is the disaster-recovery path; it can run at any time.
func (s *Service) Rebuild(ctx context.Context, fundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx, fundID)
}

func (s *Service) rebuildLocked(ctx context.Context, fundID string) error {
	entries, err := s.log.ListByFund(ctx, fundID, journal.ListOptions{})
	if err != nil {
		return err
	}

	snap := &FundSnapshot{FundID: fundID, Nets: make(map[string]int64)}
	for _, e := range entries {
		applyEntry(snap, e)
	}
	return s.snapshots.PutSnapshot(ctx, snap)
}

// GetSnapshotBalance reads the materialized net for an account, signed by its
// normal side. Faster than replay but only as fresh as the snapshot.
func (s *Service) GetSnapshotBalance(ctx context.Context, tenantID string, accountID string) (int64, error) {
	acct, err := s.accounts.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return 0, err
	}

	snap, err := s.snapshots.GetSnapshot(ctx, acct.FundID)
	if err != nil {
		return 0, err
	}

	net := snap.Nets[accountID]
	if acct.NormalBalance == registry.CreditNormal {
		return -net, nil
	}
	return net, nil
}

func applyEntry(snap *FundSnapshot, entry *journal.JournalEntry) {
	if snap.Nets == nil {
		snap.Nets = make(map[string]int64)
	}
	for _, l := range entry.Lines {
		snap.Nets[l.AccountID] += l.Debit - l.Credit
	}
	snap.LastSeq = entry.Seq
}
