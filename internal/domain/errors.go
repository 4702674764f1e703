package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrStateNotFound indicates the identity snapshot file does not exist
	ErrStateNotFound = errors.New("state file not found")

	// ErrStateCorrupted indicates the identity snapshot file is unreadable or unparseable
	ErrStateCorrupted = errors.New("state file is corrupted")

	// ErrVersionMismatch indicates an incompatible snapshot schema version
	ErrVersionMismatch = errors.New("state version mismatch")

	// ErrRateLimited indicates rate limiting was encountered
	ErrRateLimited = errors.New("rate limited")

	// ErrFullDeletion indicates a plan would remove every known document
	ErrFullDeletion = errors.New("plan deletes entire corpus")
)

// ValidationError indicates malformed caller input, e.g. duplicate
// document identities. Never recovered silently.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ConfigurationError indicates an invalid parameter value, surfaced
// before any work is done.
type ConfigurationError struct {
	Param   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Param, e.Message)
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(param, message string) *ConfigurationError {
	return &ConfigurationError{
		Param:   param,
		Message: message,
	}
}

// FetchError represents an error from the knowledge-base API
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError
func NewFetchError(url string, statusCode int, err error) *FetchError {
	return &FetchError{
		URL:        url,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IndexError represents an error from the remote search index API
type IndexError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *IndexError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("index %s failed: status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("index %s failed: %v", e.Operation, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// NewIndexError creates a new IndexError
func NewIndexError(operation string, statusCode int, err error) *IndexError {
	return &IndexError{
		Operation:  operation,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return retryableStatus(fetchErr.StatusCode)
	}

	var indexErr *IndexError
	if errors.As(err, &indexErr) {
		return retryableStatus(indexErr.StatusCode)
	}

	return errors.Is(err, ErrRateLimited)
}

func retryableStatus(statusCode int) bool {
	switch statusCode {
	case 429, 502, 503, 504:
		return true
	}
	return statusCode >= 520 && statusCode <= 530
}
