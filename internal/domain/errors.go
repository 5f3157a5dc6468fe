package domain

import "fmt"

// ValidationError is a caller mistake: missing required input or an illegal
// transition. It is surfaced synchronously and never silently defaulted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError wraps a data-service failure. Local state is left
// unchanged so the caller may retry the same operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AttachmentError wraps a blob-storage or attachment-metadata failure. Other
// attachments are unaffected.
type AttachmentError struct {
	Op  string
	Err error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment: %s: %v", e.Op, e.Err)
}

func (e *AttachmentError) Unwrap() error { return e.Err }
