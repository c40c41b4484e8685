package reconcile

import (
	"context"
	"log/slog"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/hoaworks/fundledger/internal/common/utils"
	"github.com/hoaworks/fundledger/internal/domain/errors"
	"github.com/hoaworks/fundledger/internal/domain/journal"
	"github.com/hoaworks/fundledger/internal/domain/registry"
	"github.com/hoaworks/fundledger/internal/domain/tenant"
)

// EntryPoster posts balancing entries for transactions with no counterpart.
// Satisfied by the journal engine.
type EntryPoster interface {
	Post(ctx context.Context, tenantCtx *tenant.TenantContext, draft *journal.EntryDraft) (*journal.JournalEntry, error)
}

// FundLookup resolves funds for bank-account mapping. Satisfied by the
// registry service.
type FundLookup interface {
	GetFund(ctx context.Context, tenantID string, fundID string) (*registry.Fund, error)
}

// Config holds tunables for the matching engine. The threshold and tie-break
// are deliberate defaults, not business law.
type Config struct {
	// AutoMatchThreshold is the minimum confidence for unattended confirmation
	AutoMatchThreshold float64
	// DateWindowDays bounds candidate generation around the transaction date
	DateWindowDays int
	// BatchSize bounds each independently committed ingestion batch
	BatchSize int
}

// DefaultConfig returns the standard matching configuration
func DefaultConfig() Config {
	return Config{
		AutoMatchThreshold: 0.95,
		DateWindowDays:     30,
		BatchSize:          25,
	}
}

// Service implements the matching engine and the reconciliation session
type Service struct {
	repo   Repository
	log    journal.Repository
	poster EntryPoster
	funds  FundLookup
	rules  []MatchRule
	cfg    Config
	logger *slog.Logger
}

// NewService creates a new reconciliation service with the default rule cascade
func NewService(repo Repository, log journal.Repository, poster EntryPoster, funds FundLookup, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		log:    log,
		poster: poster,
		funds:  funds,
		rules:  DefaultRules(),
		cfg:    cfg,
		logger: logger,
	}
}

// parseAmountMinor converts a decimal amount string like "-45.00" to signed
// integer minor units, rejecting sub-cent precision
func parseAmountMinor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.NewValidationError("invalid amount: " + s)
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, errors.NewValidationError("amount has sub-cent precision: " + s)
	}
	return minor.IntPart(), nil
}

// UploadStatement ingests an externally supplied statement. Transactions are
// written in bounded batches, each committed independently, so a timeout
// part-way through loses no completed batches.
func (s *Service) UploadStatement(ctx context.Context, tenantCtx *tenant.TenantContext, req *UploadStatementRequest) (*BankStatement, error) {
	if err := utils.ValidateISODate(req.StatementDate); err != nil {
		return nil, err
	}
	if _, err := s.funds.GetFund(ctx, tenantCtx.TenantID, req.FundID); err != nil {
		return nil, err
	}

	begin, err := parseAmountMinor(req.BeginningBalance)
	if err != nil {
		return nil, err
	}
	end, err := parseAmountMinor(req.EndingBalance)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stmt := &BankStatement{
		TenantID:         tenantCtx.TenantID,
		StatementID:      ulid.Make().String(),
		FundID:           req.FundID,
		StatementDate:    req.StatementDate,
		BeginningBalance: begin,
		EndingBalance:    end,
		CreatedAt:        now,
	}

	txns := make([]*BankTransaction, 0, len(req.Transactions))
	for _, ut := range req.Transactions {
		if err := utils.ValidateISODate(ut.Date); err != nil {
			return nil, err
		}
		amount, err := parseAmountMinor(ut.Amount)
		if err != nil {
			return nil, err
		}
		txns = append(txns, &BankTransaction{
			TenantID:    tenantCtx.TenantID,
			StatementID: stmt.StatementID,
			TxnID:       ulid.Make().String(),
			FundID:      req.FundID,
			Amount:      amount,
			Date:        ut.Date,
			Description: ut.Description,
			Reference:   ut.Reference,
			Status:      StatusUnmatched,
			Version:     1,
			CreatedAt:   now,
		})
	}

	if err := s.repo.CreateStatement(ctx, stmt); err != nil {
		return nil, err
	}

	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = DefaultConfig().BatchSize
	}
	for start := 0; start < len(txns); start += batch {
		stop := start + batch
		if stop > len(txns) {
			stop = len(txns)
		}
		if err := s.repo.CreateTransactions(ctx, txns[start:stop]); err != nil {
			return nil, err
		}
	}

	s.logger.Info("statement uploaded",
		"statementId", stmt.StatementID,
		"fundId", stmt.FundID,
		"transactions", len(txns))
	return stmt, nil
}

// Suggest generates scored match candidates for a transaction from
// unresolved same-fund entries within the configured date window. A read-only
// operation: no candidates is an empty list, never an error.
func (s *Service) Suggest(ctx context.Context, tenantID string, txnID string) ([]*MatchCandidate, error) {
	txn, err := s.repo.GetTransaction(ctx, tenantID, txnID)
	if err != nil {
		return nil, err
	}
	if txn.Status != StatusUnmatched {
		return []*MatchCandidate{}, nil
	}

	fund, err := s.funds.GetFund(ctx, tenantID, txn.FundID)
	if err != nil {
		return nil, err
	}

	entries, err := s.log.ListByFund(ctx, txn.FundID, journal.ListOptions{})
	if err != nil {
		return nil, err
	}

	window := s.cfg.DateWindowDays
	if window <= 0 {
		window = DefaultConfig().DateWindowDays
	}

	candidates := []*MatchCandidate{}
	for _, e := range entries {
		if !s.eligible(e, fund.BankAccountID) {
			continue
		}
		if dateDiffDays(txn.Date, e.Date) > window {
			continue
		}
		if rule, ok := score(s.rules, txn, e, fund.BankAccountID); ok {
			candidates = append(candidates, &MatchCandidate{
				Transaction: txn,
				Entry:       e,
				Confidence:  rule.Confidence,
				Reason:      rule.Code,
			})
		}
	}

	sortCandidates(candidates)
	return candidates, nil
}

// eligible filters to unresolved entries that actually move the bank account
func (s *Service) eligible(e *journal.JournalEntry, bankAccountID string) bool {
	return e.MatchedTxnID == "" &&
		e.ReversedBy == "" &&
		e.Reverses == "" &&
		bankMovement(e, bankAccountID) != 0
}

// ConfirmMatch transitions a transaction to matched and consumes the entry.
// The storage layer's compare-and-set guarantees that two concurrent
// confirmations of the same entry produce exactly one winner; the loser gets
// ALREADY_MATCHED and should re-fetch suggestions and retry.
func (s *Service) ConfirmMatch(ctx context.Context, tenantCtx *tenant.TenantContext, txnID string, entryID string) error {
	txn, err := s.repo.GetTransaction(ctx, tenantCtx.TenantID, txnID)
	if err != nil {
		return err
	}
	if txn.Status.Terminal() {
		return errors.NewConflictError("transaction is already " + string(txn.Status))
	}

	stmt, err := s.repo.GetStatement(ctx, tenantCtx.TenantID, txn.StatementID)
	if err != nil {
		return err
	}
	if stmt.Reconciled {
		return errors.NewStatementAlreadyReconciledError(stmt.StatementID)
	}

	entry, err := s.log.Get(ctx, tenantCtx.TenantID, entryID)
	if err != nil {
		return err
	}
	if entry.FundID != txn.FundID {
		return errors.NewValidationError("entry belongs to a different fund")
	}
	if entry.ReversedBy != "" || entry.Reverses != "" {
		return errors.NewValidationError("reversed entries cannot back a match")
	}

	fund, err := s.funds.GetFund(ctx, tenantCtx.TenantID, txn.FundID)
	if err != nil {
		return err
	}

	txn.Status = StatusMatched
	txn.MatchedEntryID = entryID
	if rule, ok := score(s.rules, txn, entry, fund.BankAccountID); ok {
		txn.Confidence = rule.Confidence
	}

	if err := s.repo.TransitionMatched(ctx, txn, entryID); err != nil {
		return err
	}

	s.logger.Info("match confirmed",
		"txnId", txn.TxnID,
		"entryId", entryID,
		"confidence", txn.Confidence)
	return nil
}

// AutoConfirm confirms the top suggestion when its confidence clears the
// configured threshold. Below threshold the transaction is left for a human.
func (s *Service) AutoConfirm(ctx context.Context, tenantCtx *tenant.TenantContext, txnID string) (bool, error) {
	candidates, err := s.Suggest(ctx, tenantCtx.TenantID, txnID)
	if err != nil {
		return false, err
	}
	threshold := s.cfg.AutoMatchThreshold
	if threshold <= 0 {
		threshold = DefaultConfig().AutoMatchThreshold
	}
	if len(candidates) == 0 || candidates[0].Confidence < threshold {
		return false, nil
	}
	if err := s.ConfirmMatch(ctx, tenantCtx, txnID, candidates[0].Entry.EntryID); err != nil {
		return false, err
	}
	return true, nil
}

// CreateFromTransaction posts a balancing journal entry for a transaction
// with no counterpart (bank fees, interest) and marks it created
func (s *Service) CreateFromTransaction(ctx context.Context, tenantCtx *tenant.TenantContext, txnID string, accountID string) (*journal.JournalEntry, error) {
	txn, err := s.repo.GetTransaction(ctx, tenantCtx.TenantID, txnID)
	if err != nil {
		return nil, err
	}
	if txn.Status.Terminal() {
		return nil, errors.NewConflictError("transaction is already " + string(txn.Status))
	}

	stmt, err := s.repo.GetStatement(ctx, tenantCtx.TenantID, txn.StatementID)
	if err != nil {
		return nil, err
	}
	if stmt.Reconciled {
		return nil, errors.NewStatementAlreadyReconciledError(stmt.StatementID)
	}

	fund, err := s.funds.GetFund(ctx, tenantCtx.TenantID, txn.FundID)
	if err != nil {
		return nil, err
	}
	if fund.BankAccountID == "" {
		return nil, errors.NewValidationError("fund has no bank account configured")
	}

	amount := txn.Amount
	var lines []journal.JournalLine
	if amount >= 0 {
		lines = []journal.JournalLine{
			{AccountID: fund.BankAccountID, Debit: amount},
			{AccountID: accountID, Credit: amount},
		}
	} else {
		lines = []journal.JournalLine{
			{AccountID: accountID, Debit: -amount},
			{AccountID: fund.BankAccountID, Credit: -amount},
		}
	}

	entry, err := s.poster.Post(ctx, tenantCtx, &journal.EntryDraft{
		FundID:      txn.FundID,
		Date:        txn.Date,
		Description: txn.Description,
		Reference:   txn.Reference,
		Lines:       lines,
	})
	if err != nil {
		return nil, err
	}

	txn.Status = StatusCreated
	txn.MatchedEntryID = entry.EntryID
	txn.Confidence = 1.0
	if err := s.repo.TransitionMatched(ctx, txn, entry.EntryID); err != nil {
		return nil, err
	}

	s.logger.Info("entry created from transaction",
		"txnId", txn.TxnID,
		"entryId", entry.EntryID)
	return entry, nil
}

// Ignore marks a transaction ignored with an audit reason. Ignored amounts
// leave the balance equation but stay on the statement for disclosure.
func (s *Service) Ignore(ctx context.Context, tenantCtx *tenant.TenantContext, txnID string, reason string) error {
	if err := utils.ValidateRequiredString(reason, "reason"); err != nil {
		return err
	}

	txn, err := s.repo.GetTransaction(ctx, tenantCtx.TenantID, txnID)
	if err != nil {
		return err
	}
	if txn.Status.Terminal() {
		return errors.NewConflictError("transaction is already " + string(txn.Status))
	}

	stmt, err := s.repo.GetStatement(ctx, tenantCtx.TenantID, txn.StatementID)
	if err != nil {
		return err
	}
	if stmt.Reconciled {
		return errors.NewStatementAlreadyReconciledError(stmt.StatementID)
	}

	txn.Status = StatusIgnored
	txn.IgnoreReason = reason
	return s.repo.UpdateTransactionStatus(ctx, txn)
}

// Report computes the reconciliation summary for a statement. Stateless and
// recomputed on demand; it may run alongside confirmations and tolerates a
// slightly stale transaction set.
func (s *Service) Report(ctx context.Context, tenantID string, statementID string) (*ReconciliationReport, error) {
	stmt, err := s.repo.GetStatement(ctx, tenantID, statementID)
	if err != nil {
		return nil, err
	}

	txns, err := s.repo.ListTransactions(ctx, tenantID, statementID)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{
		StatementID:      stmt.StatementID,
		BeginningBalance: stmt.BeginningBalance,
		EndingBalance:    stmt.EndingBalance,
	}

	for _, txn := range txns {
		switch txn.Status {
		case StatusUnmatched:
			report.UnmatchedCount++
		case StatusIgnored:
			report.IgnoredCount++
			report.IgnoredTotal += txn.Amount
		case StatusMatched, StatusCreated:
			if txn.Status == StatusMatched {
				report.MatchedCount++
			} else {
				report.CreatedCount++
			}
			if txn.Amount >= 0 {
				report.TotalDeposits += txn.Amount
			} else {
				report.TotalWithdrawals += -txn.Amount
			}
		}
	}

	report.CalculatedBalance = report.BeginningBalance + report.TotalDeposits - report.TotalWithdrawals
	report.Difference = report.EndingBalance - report.CalculatedBalance
	report.Reconciled = report.Difference == 0 && report.UnmatchedCount == 0
	return report, nil
}

// Finalize closes out a statement once its report balances. A statement with
// a nonzero difference or unmatched transactions is never silently closed.
func (s *Service) Finalize(ctx context.Context, tenantCtx *tenant.TenantContext, statementID string) (*ReconciliationReport, error) {
	stmt, err := s.repo.GetStatement(ctx, tenantCtx.TenantID, statementID)
	if err != nil {
		return nil, err
	}
	if stmt.Reconciled {
		return nil, errors.NewStatementAlreadyReconciledError(statementID)
	}

	report, err := s.Report(ctx, tenantCtx.TenantID, statementID)
	if err != nil {
		return nil, err
	}
	if !report.Reconciled {
		return nil, errors.NewValidationError("statement does not reconcile").
			WithDetail("difference", report.Difference).
			WithDetail("unmatchedCount", report.UnmatchedCount)
	}

	if err := s.repo.MarkReconciled(ctx, tenantCtx.TenantID, statementID); err != nil {
		return nil, err
	}
	return report, nil
}
