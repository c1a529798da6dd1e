package transform

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-class defect detected before
// or during a domain run: a malformed rule set, an expression
// referencing a column no declared table carries, or an unpinned
// duplicate-key coalesce.
//
// Unlike data-quality conditions, which always come back as values on
// records and reports, a ConfigError fails the run loudly before any
// misleading output exists.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// Domain identifies the affected domain.
	Domain string

	// Variable and Column identify the offending rule reference, when
	// one exists.
	Variable string
	Column   string

	// Table identifies the table involved, when one exists.
	Table string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeSchemaViolation indicates an expression references a column
	// absent from every table it may read.
	ErrCodeSchemaViolation ConfigErrorCode = "SCHEMA_VIOLATION"

	// ErrCodeBadConfig indicates an inconsistent rule set or domain
	// configuration.
	ErrCodeBadConfig ConfigErrorCode = "BAD_CONFIG"

	// ErrCodeUnpinnedCoalesce indicates a qualified reference can match
	// multiple join-key rows in a table that is not pinned in the
	// domain's table priority.
	ErrCodeUnpinnedCoalesce ConfigErrorCode = "UNPINNED_COALESCE"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("%s: %s (domain=%s, variable=%s)", e.Code, e.Message, e.Domain, e.Variable)
	}
	if e.Domain != "" {
		return fmt.Sprintf("%s: %s (domain=%s)", e.Code, e.Message, e.Domain)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsSchemaViolation reports whether err is a schema-violation defect.
// Uses errors.As to handle wrapped errors.
func IsSchemaViolation(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeSchemaViolation
	}
	return false
}

// IsConfigError reports whether err is any configuration-class defect.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
