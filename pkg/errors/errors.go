// Package errors provides custom error types for the icsync system.
// These errors enable programmatic error checking across the
// reconciliation pipeline: transient remote failures are retried,
// permanent remote failures escalate to the per-event boundary, and
// parse failures merely disqualify a candidate during verification.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the icsync system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrCredentialsRequired indicates that remote credentials are
	// required but not configured
	ErrCredentialsRequired = errors.New("credentials required")

	// ErrCategoryRequired indicates that a destination category is
	// required to create a record but none was configured
	ErrCategoryRequired = errors.New("category required")

	// ErrRateLimited indicates that the remote rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrRemoteUnavailable indicates that the remote system is
	// temporarily unavailable (5xx)
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// ConfigError represents a configuration error: missing credentials,
// missing destination category, unreadable calendars file.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// APIError represents an error response from the remote API. Its Is
// method classifies 429 as rate limiting and 5xx as remote
// unavailability, which is what the resilient client retries on; any
// other status is permanent and escalates to the per-event boundary.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s: %s", e.Endpoint, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *APIError) Is(target error) bool {
	if e.StatusCode == 429 {
		return target == ErrRateLimited
	}
	if e.StatusCode >= 500 {
		return target == ErrRemoteUnavailable
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(endpoint string, statusCode int, message string) *APIError {
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    message,
	}
}

// Retryable reports whether err is a transient remote failure worth
// another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrRemoteUnavailable)
}

// ParseError represents a failure to parse source or remote data: a
// malformed ICS payload, an event missing a usable identifier, or a
// stored content block that does not parse back into attributes.
type ParseError struct {
	Format  string // "ics", "event-block", "json"
	Subject string // file, URL, or topic being parsed
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("parse error in %s %s: %s", e.Format, e.Subject, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, subject, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		Subject: subject,
		Message: message,
		Err:     err,
	}
}

// SyncError represents a failure while reconciling a single event. It is
// what the per-event boundary logs; one event's SyncError never aborts
// the run.
type SyncError struct {
	UID     string
	Stage   string // "normalize", "locate", "create", "update", "adopt", "tags"
	TopicID int
	Err     error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.TopicID != 0 {
		return fmt.Sprintf("sync error for UID %s during %s (topic %d): %v", e.UID, e.Stage, e.TopicID, e.Err)
	}
	return fmt.Sprintf("sync error for UID %s during %s: %v", e.UID, e.Stage, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError creates a new SyncError
func NewSyncError(uid, stage string, topicID int, err error) *SyncError {
	return &SyncError{
		UID:     uid,
		Stage:   stage,
		TopicID: topicID,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "open"
	Path      string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("IO error during %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsRemoteUnavailable checks if an error indicates remote unavailability
func IsRemoteUnavailable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}

// IsConfig checks if an error is a configuration error
func IsConfig(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, ErrCredentialsRequired) || errors.Is(err, ErrCategoryRequired)
}

// IsParse checks if an error is a parse error
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Helper wrapping functions for common patterns

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Operation: operation, Path: path, Err: err}
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, subject string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, subject, err.Error(), err)
}

// WrapSync wraps an error as a SyncError
func WrapSync(uid, stage string, topicID int, err error) error {
	if err == nil {
		return nil
	}
	return NewSyncError(uid, stage, topicID, err)
}
