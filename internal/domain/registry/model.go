package registry

import (
	"time"
)

// AccountType represents the type of an account
type AccountType string

const (
	// Asset represents an asset account
	Asset AccountType = "asset"
	// Liability represents a liability account
	Liability AccountType = "liability"
	// Equity represents an equity account
	Equity AccountType = "equity"
	// Revenue represents a revenue account
	Revenue AccountType = "revenue"
	// Expense represents an expense account
	Expense AccountType = "expense"
)

// NormalBalance represents the side on which an account normally carries its balance
type NormalBalance string

const (
	// DebitNormal accounts (assets, expenses) increase on the debit side
	DebitNormal NormalBalance = "debit"
	// CreditNormal accounts (liabilities, equity, revenue) increase on the credit side
	CreditNormal NormalBalance = "credit"
)

// NormalBalanceFor returns the conventional balance side for an account type
func NormalBalanceFor(t AccountType) NormalBalance {
	switch t {
	case Asset, Expense:
		return DebitNormal
	default:
		return CreditNormal
	}
}

// FundType represents the type of a fund
type FundType string

const (
	// Operating funds cover day-to-day activity
	Operating FundType = "operating"
	// Reserve funds are set aside for long-term replacement costs
	Reserve FundType = "reserve"
	// SpecialAssessment funds track one-off levies
	SpecialAssessment FundType = "special-assessment"
)

// Fund represents a segregated pool of accounts with its own balance sheet
type Fund struct {
	TenantID string   `json:"tenantId"`
	FundID   string   `json:"fundId"`
	Name     string   `json:"name"`
	FundType FundType `json:"fundType"`
	// BankAccountID is the asset account that mirrors the fund's bank account.
	// Used when creating entries directly from bank transactions.
	BankAccountID string `json:"bankAccountId,omitempty"`
	// DueToAccountID / DueFromAccountID pair inter-fund movements.
	DueToAccountID   string    `json:"dueToAccountId,omitempty"`
	DueFromAccountID string    `json:"dueFromAccountId,omitempty"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// Account represents an account in the chart of accounts. Financial fields are
// immutable once the account is referenced by a posted entry; only Active may change.
type Account struct {
	TenantID      string        `json:"tenantId"`
	AccountID     string        `json:"accountId"`
	Number        string        `json:"number"`
	Name          string        `json:"name"`
	AccountType   AccountType   `json:"accountType"`
	NormalBalance NormalBalance `json:"normalBalance"`
	FundID        string        `json:"fundId"`
	Active        bool          `json:"active"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`

	// DynamoDB specific attributes
	PK string `json:"-"`
	SK string `json:"-"`
}

// CreateAccountRequest represents the request to create a new account
type CreateAccountRequest struct {
	Number      string      `json:"number" validate:"required"`
	Name        string      `json:"name" validate:"required"`
	AccountType AccountType `json:"accountType" validate:"required,oneof=asset liability equity revenue expense"`
	FundID      string      `json:"fundId" validate:"required"`
}

// CreateFundRequest represents the request to create a new fund
type CreateFundRequest struct {
	Name             string   `json:"name" validate:"required"`
	FundType         FundType `json:"fundType" validate:"required,oneof=operating reserve special-assessment"`
	BankAccountID    string   `json:"bankAccountId,omitempty"`
	DueToAccountID   string   `json:"dueToAccountId,omitempty"`
	DueFromAccountID string   `json:"dueFromAccountId,omitempty"`
}

// GetAccountsRequest represents the request to list accounts
type GetAccountsRequest struct {
	FundID      string `json:"fundId,omitempty"`
	AccountType string `json:"accountType,omitempty"`
	ActiveOnly  bool   `json:"activeOnly,omitempty"`
}
