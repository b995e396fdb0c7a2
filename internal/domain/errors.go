package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument rejects empty content, unrecognized roles, and
	// wrongly-typed field values. Never partially applied.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidField rejects profile fields outside the whitelist.
	ErrInvalidField = errors.New("invalid profile field")

	// ErrConflict marks a profile update that would overwrite a differing
	// non-empty value. Surfaced to the user as a disambiguation request,
	// not treated as a system error.
	ErrConflict = errors.New("profile field conflict")
)

// ConflictError carries the details needed to phrase a clarifying question.
type ConflictError struct {
	Field    ProfileField
	Existing string
	Proposed string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already set to %q, refusing to overwrite with %q", e.Field, e.Existing, e.Proposed)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
