package apperrors

import "fmt"

// ValidationError rejects a malformed enqueue or campaign request before it
// reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError means the referenced resource does not exist for this publisher.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError means the requested transition is illegal for the entry's
// current status, or a claim race was lost to another processor.
type ConflictError struct {
	ID     string
	Status string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("conflict on entry %s (status %s): %s", e.ID, e.Status, e.Reason)
	}
	return fmt.Sprintf("conflict on entry %s: %s", e.ID, e.Reason)
}

func NewConflict(id, status, reason string) error {
	return &ConflictError{ID: id, Status: status, Reason: reason}
}

// TransportError wraps a failed or timed-out adapter call. It drives the
// retry/backoff path and is never returned raw to API callers.
type TransportError struct {
	Message string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport timed out: %s", e.Message)
	}
	return fmt.Sprintf("transport failed: %s", e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransport(message string, timeout bool, err error) error {
	return &TransportError{Message: message, Timeout: timeout, Err: err}
}

// GeneratorError wraps a failed or timed-out content render. Recovered locally
// with a fallback template during expansion.
type GeneratorError struct {
	RecipientID string
	Err         error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("content render failed for recipient %s: %v", e.RecipientID, e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }

func NewGenerator(recipientID string, err error) error {
	return &GeneratorError{RecipientID: recipientID, Err: err}
}
