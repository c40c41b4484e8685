package utils

import (
	"regexp"
	"strings"
	"time"

	"github.com/hoaworks/fundledger/internal/domain/errors"
)

var (
	// UUIDRegex validates UUID strings
	UUIDRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

	// AccountNumberRegex validates chart-of-account numbers like "1010" or "1010-01"
	AccountNumberRegex = regexp.MustCompile(`^\d{4}(?:-\d{2})?$`)

	// DateRegex validates ISO 8601 date strings (YYYY-MM-DD)
	DateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ValidateUUID validates a UUID string
func ValidateUUID(uuid string) error {
	if !UUIDRegex.MatchString(uuid) {
		return errors.NewValidationError("invalid UUID format")
	}
	return nil
}

// ValidateAccountNumber validates a chart-of-account number
func ValidateAccountNumber(number string) error {
	if !AccountNumberRegex.MatchString(number) {
		return errors.NewValidationError("invalid account number, should be like '1010' or '1010-01'")
	}
	return nil
}

// ValidateISODate validates an ISO 8601 date string (YYYY-MM-DD)
func ValidateISODate(date string) error {
	if !DateRegex.MatchString(date) {
		return errors.NewValidationError("invalid date format, should be YYYY-MM-DD")
	}

	// Parse the date to ensure it's valid
	_, err := time.Parse("2006-01-02", date)
	if err != nil {
		return errors.NewValidationError("invalid date value")
	}

	return nil
}

// ValidateTenantID validates a tenant ID
func ValidateTenantID(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return errors.NewTenantError("tenant ID is required")
	}
	return nil
}

// ValidateRequiredString validates that a string is not empty
func ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(fieldName + " is required")
	}
	return nil
}
