package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Entry describes one audit event to record.
type Entry struct {
	LetterID    snowflake.ID
	Action      string
	OldStatus   string
	NewStatus   string
	PerformedBy string
	Notes       string
	Metadata    map[string]any
}

// Service appends audit records and reads a letter's trail.
//
// Record is best-effort from the caller's perspective: state transitions that
// already committed must not be rolled back because the trail write failed.
// Callers that hold that policy use RecordBestEffort.
type Service interface {
	Record(ctx context.Context, entry Entry) error
	RecordBestEffort(ctx context.Context, entry Entry)
	Trail(ctx context.Context, letterID snowflake.ID, order Order) ([]*LetterAudit, error)
}

var (
	ErrInvalidLetter = errors.New("invalid_letter")
	ErrInvalidAction = errors.New("invalid_action")
)
