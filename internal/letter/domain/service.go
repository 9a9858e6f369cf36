package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/counselops/letterflow/internal/audit/domain"
)

// CreateRequest opens a new letter for a subscriber.
type CreateRequest struct {
	UserID snowflake.ID
	Title  string
	Body   string
}

// ApproveRequest carries the staff decision that publishes a letter.
type ApproveRequest struct {
	AdminID      snowflake.ID
	LetterID     snowflake.ID
	FinalContent string
	ReviewNotes  string
}

// RejectRequest carries the staff decision that bounces a letter.
type RejectRequest struct {
	AdminID  snowflake.ID
	LetterID snowflake.ID
	Reason   string
}

// Service owns Letter.status. Every transition is validated against the
// transition table, applied with an optimistic conditional update, audited,
// and followed by fire-and-forget notification dispatch.
type Service interface {
	// Create opens a letter in draft with subscriber-authored content.
	Create(ctx context.Context, req CreateRequest) (*Letter, error)
	// CreateGenerating opens a letter in generating for the AI-draft path,
	// pre-deducting an allowance unit unless the user is on trial or unlimited.
	CreateGenerating(ctx context.Context, req CreateRequest) (*Letter, error)

	// Submit moves draft -> pending_review, deducting allowance first.
	Submit(ctx context.Context, userID, letterID snowflake.ID) (*Letter, error)
	// MarkGenerated moves generating -> pending_review with the produced draft.
	MarkGenerated(ctx context.Context, letterID snowflake.ID, draft string) (*Letter, error)
	// MarkGenerationFailed moves generating -> failed, refunding any
	// pre-deducted allowance unit.
	MarkGenerationFailed(ctx context.Context, letterID snowflake.ID, reason string) (*Letter, error)
	// Retry moves failed -> draft so the owner can edit and resubmit.
	Retry(ctx context.Context, userID, letterID snowflake.ID) (*Letter, error)

	// StartReview moves pending_review -> under_review for an admin.
	StartReview(ctx context.Context, adminID, letterID snowflake.ID) (*Letter, error)
	// Approve moves under_review -> approved with required final content.
	Approve(ctx context.Context, req ApproveRequest) (*Letter, error)
	// Reject moves under_review -> rejected with a required reason.
	Reject(ctx context.Context, req RejectRequest) (*Letter, error)
	// Complete moves approved -> completed.
	Complete(ctx context.Context, adminID, letterID snowflake.ID) (*Letter, error)

	// Delete hard-deletes an owner's letter in draft, rejected, or failed.
	Delete(ctx context.Context, userID, letterID snowflake.ID) error

	Get(ctx context.Context, userID, letterID snowflake.ID) (*Letter, error)
	GetForReview(ctx context.Context, letterID snowflake.ID) (*Letter, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]*Letter, error)
	ListPendingReview(ctx context.Context) ([]*Letter, error)
	Trail(ctx context.Context, letterID snowflake.ID) ([]*auditdomain.LetterAudit, error)
}
