package registry

import (
	"context"
)

// Repository defines the interface for chart-of-accounts data operations
type Repository interface {
	// Create a new account
	CreateAccount(ctx context.Context, account *Account) (*Account, error)

	// Get an account by ID
	GetAccount(ctx context.Context, tenantID string, accountID string) (*Account, error)

	// Get accounts by criteria
	GetAccounts(ctx context.Context, tenantID string, filter *GetAccountsRequest) ([]*Account, error)

	// Set the active flag on an account
	SetAccountActive(ctx context.Context, tenantID string, accountID string, active bool) (*Account, error)

	// Create a new fund
	CreateFund(ctx context.Context, fund *Fund) (*Fund, error)

	// Get a fund by ID
	GetFund(ctx context.Context, tenantID string, fundID string) (*Fund, error)

	// Check if an account number is already taken within the tenant
	AccountNumberExists(ctx context.Context, tenantID string, number string) (bool, error)
}
