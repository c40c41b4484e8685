package registry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hoaworks/fundledger/internal/common/utils"
	"github.com/hoaworks/fundledger/internal/domain/errors"
	"github.com/hoaworks/fundledger/internal/domain/tenant"
)

// Service provides chart-of-accounts and fund business logic
type Service struct {
	repo Repository
}

// NewService creates a new registry service
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

// CreateAccount creates a new account
func (s *Service) CreateAccount(ctx context.Context, tenantCtx *tenant.TenantContext, req *CreateAccountRequest) (*Account, error) {
	if err := utils.ValidateAccountNumber(req.Number); err != nil {
		return nil, err
	}
	if err := utils.ValidateRequiredString(req.Name, "name"); err != nil {
		return nil, err
	}
	switch req.AccountType {
	case Asset, Liability, Equity, Revenue, Expense:
	default:
		return nil, errors.NewValidationError("unknown account type")
	}

	// Exactly one fund per account
	fund, err := s.repo.GetFund(ctx, tenantCtx.TenantID, req.FundID)
	if err != nil {
		return nil, err
	}
	if !fund.Active {
		return nil, errors.NewValidationError("fund is inactive")
	}

	exists, err := s.repo.AccountNumberExists(ctx, tenantCtx.TenantID, req.Number)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.NewConflictError("account with this number already exists")
	}

	now := time.Now().UTC()
	account := &Account{
		TenantID:      tenantCtx.TenantID,
		AccountID:     uuid.New().String(),
		Number:        req.Number,
		Name:          req.Name,
		AccountType:   req.AccountType,
		NormalBalance: NormalBalanceFor(req.AccountType),
		FundID:        req.FundID,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	return s.repo.CreateAccount(ctx, account)
}

// CreateFund creates a new fund
func (s *Service) CreateFund(ctx context.Context, tenantCtx *tenant.TenantContext, req *CreateFundRequest) (*Fund, error) {
	if err := utils.ValidateRequiredString(req.Name, "name"); err != nil {
		return nil, err
	}
	switch req.FundType {
	case Operating, Reserve, SpecialAssessment:
	default:
		return nil, errors.NewValidationError("unknown fund type")
	}

	now := time.Now().UTC()
	fund := &Fund{
		TenantID:         tenantCtx.TenantID,
		FundID:           uuid.New().String(),
		Name:             req.Name,
		FundType:         req.FundType,
		BankAccountID:    req.BankAccountID,
		DueToAccountID:   req.DueToAccountID,
		DueFromAccountID: req.DueFromAccountID,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	return s.repo.CreateFund(ctx, fund)
}

// GetAccount retrieves an account by ID
func (s *Service) GetAccount(ctx context.Context, tenantID string, accountID string) (*Account, error) {
	return s.repo.GetAccount(ctx, tenantID, accountID)
}

// GetFund retrieves a fund by ID
func (s *Service) GetFund(ctx context.Context, tenantID string, fundID string) (*Fund, error) {
	return s.repo.GetFund(ctx, tenantID, fundID)
}

// GetAccounts lists accounts matching the filter
func (s *Service) GetAccounts(ctx context.Context, tenantID string, filter *GetAccountsRequest) ([]*Account, error) {
	return s.repo.GetAccounts(ctx, tenantID, filter)
}

// DeactivateAccount flips the active flag off. Accounts referenced by posted
// entries are never deleted or otherwise mutated.
func (s *Service) DeactivateAccount(ctx context.Context, tenantID string, accountID string) (*Account, error) {
	return s.repo.SetAccountActive(ctx, tenantID, accountID, false)
}
