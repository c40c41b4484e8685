package errors

import (
	"fmt"
	"net/http"
)

// AppError is a custom error type for application errors
type AppError struct {
	Code       string
	Message    string
	StatusCode int // Same rule as HTTP status codes
	Err        error
	Details    map[string]interface{}
}

// Error returns a string representation of the error
func (e AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is implements the errors.Is interface
func (e AppError) Is(target error) bool {
	if target, ok := target.(AppError); ok {
		return target.Code == e.Code
	}
	return false
}

// Unwrap returns the underlying error
func (e AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e AppError) WithDetails(details map[string]interface{}) AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e AppError) WithDetail(key string, value interface{}) AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a new validation error
func NewValidationError(message string) AppError {
	return AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewImbalancedEntryError reports a journal entry whose debit and credit
// totals differ. The offending totals are carried as details.
func NewImbalancedEntryError(debits, credits int64) AppError {
	return AppError{
		Code:       "IMBALANCED_ENTRY",
		Message:    fmt.Sprintf("journal entry does not balance: debits %d != credits %d", debits, credits),
		StatusCode: http.StatusBadRequest,
		Details: map[string]interface{}{
			"debits":  debits,
			"credits": credits,
		},
	}
}

// NewEmptyEntryError reports a journal entry draft with no lines
func NewEmptyEntryError() AppError {
	return AppError{
		Code:       "EMPTY_ENTRY",
		Message:    "journal entry must have at least one line",
		StatusCode: http.StatusBadRequest,
	}
}

// NewInvalidAccountError reports a line referencing an unknown, foreign-tenant,
// inactive, or wrong-fund account
func NewInvalidAccountError(accountID, reason string) AppError {
	return AppError{
		Code:       "INVALID_ACCOUNT",
		Message:    fmt.Sprintf("account %s: %s", accountID, reason),
		StatusCode: http.StatusBadRequest,
	}
}

// NewAlreadyReversedError reports a second reversal attempt on the same entry
func NewAlreadyReversedError(entryID string) AppError {
	return AppError{
		Code:       "ALREADY_REVERSED",
		Message:    fmt.Sprintf("journal entry %s already has a reversing entry", entryID),
		StatusCode: http.StatusConflict,
	}
}

// NewAlreadyMatchedError reports a match confirmation that lost the race for an
// entry already consumed by another bank transaction
func NewAlreadyMatchedError(entryID string) AppError {
	return AppError{
		Code:       "ALREADY_MATCHED",
		Message:    fmt.Sprintf("journal entry %s is already matched to another transaction", entryID),
		StatusCode: http.StatusConflict,
	}
}

// NewStatementAlreadyReconciledError reports a status mutation against a
// statement that has been closed out
func NewStatementAlreadyReconciledError(statementID string) AppError {
	return AppError{
		Code:       "STATEMENT_ALREADY_RECONCILED",
		Message:    fmt.Sprintf("statement %s is already reconciled", statementID),
		StatusCode: http.StatusConflict,
	}
}

// NewConcurrentModificationError reports an optimistic-concurrency conflict.
// Callers are expected to re-read and retry.
func NewConcurrentModificationError(message string) AppError {
	return AppError{
		Code:       "CONCURRENT_MODIFICATION",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewChainVerificationError reports a hash-chain mismatch. This is fatal to the
// integrity of a fund's log: posting must halt until it is investigated.
func NewChainVerificationError(fundID string, seq uint64) AppError {
	return AppError{
		Code:       "CHAIN_VERIFICATION_FAILED",
		Message:    fmt.Sprintf("hash chain for fund %s broken at sequence %d", fundID, seq),
		StatusCode: http.StatusInternalServerError,
		Details: map[string]interface{}{
			"fundId":   fundID,
			"sequence": seq,
		},
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) AppError {
	return AppError{
		Code:       "NOT_FOUND",
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) AppError {
	return AppError{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) AppError {
	return AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewTenantError creates a new tenant-related error
func NewTenantError(message string) AppError {
	return AppError{
		Code:       "TENANT_ERROR",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}
