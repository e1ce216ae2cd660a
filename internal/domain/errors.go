package domain

import "errors"

var (
	// ErrValidation marks client-caused errors (bad input, malformed payloads).
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups that resolved to nothing.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks writes that would overwrite an existing record.
	ErrConflict = errors.New("conflict")
	// ErrDuplicate marks a redelivery of an already-recorded callback.
	ErrDuplicate = errors.New("duplicate delivery")
)
