// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Review errors.
	ErrMissingCategory = errors.New("category is required")
	ErrInvalidStatus   = errors.New("invalid review status")
	ErrAlreadyReviewed = errors.New("transaction already reviewed")

	// Duplicate and merge errors.
	ErrInvalidThreshold = errors.New("threshold days must be positive")
	ErrKeepNotInGroup   = errors.New("keep transaction is not a member of the group")
	ErrNothingToRemove  = errors.New("no duplicates to remove")
	ErrNoKeepSelected   = errors.New("no transaction selected to keep")
	ErrGroupOutOfRange  = errors.New("duplicate group index out of range")

	// Collaborator errors.
	ErrRemoteUnavailable = errors.New("import service unavailable")
	ErrSessionExpired    = errors.New("session expired")
	ErrStaleResponse     = errors.New("response superseded by a newer request")

	// Database errors.
	ErrNotFound = errors.New("not found")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// RemoteError carries a failure reported by the import service. Message is the
// collaborator's text, unmodified, so it can be shown as-is.
type RemoteError struct {
	Err     error
	Message string
	Status  int
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", ErrRemoteUnavailable, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", ErrRemoteUnavailable, e.Message)
}

// Unwrap exposes both the remote sentinel and any underlying cause.
func (e *RemoteError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRemoteUnavailable, e.Err}
	}
	return []error{ErrRemoteUnavailable}
}

// NewRemoteError wraps a collaborator failure.
func NewRemoteError(status int, message string, cause error) error {
	return &RemoteError{Status: status, Message: message, Err: cause}
}

// RemoteMessage returns the collaborator's message for display, or the error
// text when err did not come from the collaborator.
func RemoteMessage(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsValidation reports whether err is a local precondition failure that should
// block the action inline rather than be reported as a remote failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingCategory) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrAlreadyReviewed) ||
		errors.Is(err, ErrKeepNotInGroup) ||
		errors.Is(err, ErrNothingToRemove) ||
		errors.Is(err, ErrNoKeepSelected) ||
		errors.Is(err, ErrGroupOutOfRange) ||
		errors.Is(err, ErrInvalidThreshold)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrSessionExpired) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Status == 0 || remote.Status >= 500
	}

	return false
}
