package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("letter_not_found")
	ErrForbidden          = errors.New("letter_forbidden")
	ErrAllowanceExhausted = errors.New("allowance_exhausted")
	ErrTransitionConflict = errors.New("transition_conflict")
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrInvalidTitle       = errors.New("invalid_title")
	ErrMissingContent     = errors.New("missing_final_content")
	ErrMissingReason      = errors.New("missing_rejection_reason")
	ErrNotDeletable       = errors.New("letter_not_deletable")
)

// TransitionError carries the rejected (from, to) pair for diagnostics.
// It matches ErrInvalidTransition under errors.Is.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid_transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// NewTransitionError builds the rejection for an illegal (from, to) pair.
func NewTransitionError(from, to Status) error {
	return &TransitionError{From: from, To: to}
}
