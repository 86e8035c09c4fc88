package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode represents a specific type of error in the domain
type ErrorCode string

const (
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Gateway errors
	ErrUnknownProvider ErrorCode = "UNKNOWN_PROVIDER"
	ErrMissingConfig   ErrorCode = "MISSING_CONFIG"
	ErrRetryExhausted  ErrorCode = "RETRY_EXHAUSTED"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// MarshalJSON hides the wrapped cause from API clients.
func (e *DomainError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{
		Code:    string(e.Code),
		Message: e.Message,
	})
}

func NewError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewNotFoundError(message string) *DomainError {
	return NewError(ErrNotFound, message, nil)
}

func NewInvalidInputError(message string) *DomainError {
	return NewError(ErrInvalidInput, message, nil)
}

func NewInternalError(message string, err error) *DomainError {
	return NewError(ErrInternal, message, err)
}

// UnknownProviderError is returned when no provider rule matches a model id.
type UnknownProviderError struct {
	Model string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider for model %q", e.Model)
}

func (e *UnknownProviderError) DomainError() *DomainError {
	return NewError(ErrUnknownProvider, e.Error(), nil)
}

// MissingConfigError is returned when a provider client cannot be built
// because a required setting is absent.
type MissingConfigError struct {
	Provider string
	Setting  string
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("provider %s: missing %s", e.Provider, e.Setting)
}

func (e *MissingConfigError) DomainError() *DomainError {
	return NewError(ErrMissingConfig, e.Error(), nil)
}

// RetryExhaustedError carries the last transient failure after every attempt
// was used.
type RetryExhaustedError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("model %s failed after %d attempts: %v", e.Model, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

func (e *RetryExhaustedError) DomainError() *DomainError {
	return NewError(ErrRetryExhausted, fmt.Sprintf("model %s failed after %d attempts", e.Model, e.Attempts), e.Err)
}

// IsConfigError reports whether err is a configuration failure that must
// abort the run instead of being skipped per item.
func IsConfigError(err error) bool {
	var unknown *UnknownProviderError
	var missing *MissingConfigError
	return errors.As(err, &unknown) || errors.As(err, &missing)
}

// ErrDeadlineTooClose is returned when a model call cannot start before the
// context deadline, for example because the provider rate limit would make it
// wait past it. It wraps context.DeadlineExceeded.
var ErrDeadlineTooClose = fmt.Errorf("model call cannot start before the deadline: %w", context.DeadlineExceeded)

// IsFatalError reports whether err must abort the run: a configuration
// failure or a deadline that leaves no room for another call.
func IsFatalError(err error) bool {
	return IsConfigError(err) || errors.Is(err, ErrDeadlineTooClose)
}

// AsDomainError maps any error to the DomainError the API layer reports.
func AsDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	var unknown *UnknownProviderError
	if errors.As(err, &unknown) {
		return unknown.DomainError()
	}
	var missing *MissingConfigError
	if errors.As(err, &missing) {
		return missing.DomainError()
	}
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.DomainError()
	}
	return NewInternalError("internal error", err)
}
