package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the single lifecycle state of a letter.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusGenerating    Status = "generating"
	StatusPendingReview Status = "pending_review"
	StatusUnderReview   Status = "under_review"
	StatusApproved      Status = "approved"
	StatusCompleted     Status = "completed"
	StatusRejected      Status = "rejected"
	StatusFailed        Status = "failed"
)

// transitions is the full set of legal status changes. Anything not listed
// here is rejected with a TransitionError.
var transitions = map[Status][]Status{
	StatusDraft:         {StatusPendingReview},
	StatusGenerating:    {StatusPendingReview, StatusFailed},
	StatusFailed:        {StatusDraft},
	StatusPendingReview: {StatusUnderReview},
	StatusUnderReview:   {StatusApproved, StatusRejected},
	StatusApproved:      {StatusCompleted},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Deletable reports whether a letter in this status may be hard-deleted by
// its owner.
func (s Status) Deletable() bool {
	switch s {
	case StatusDraft, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// Free-text bounds applied before persistence.
const (
	MaxTitleLen           = 200
	MaxFinalContentLen    = 10000
	MaxRejectionReasonLen = 1000
	MaxReviewNotesLen     = 2000
	MaxDraftContentLen    = 20000
)

// Letter is an AI-drafted legal letter moving through staff review.
// FinalContent is set once the letter reaches approved; RejectionReason is
// set only on rejected letters. CreditConsumed marks that an allowance unit
// was deducted for the in-flight attempt and is still refundable.
type Letter struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	UserID          snowflake.ID `gorm:"not null;index"`
	Status          Status       `gorm:"type:text;not null;default:'draft';index"`
	Title           string       `gorm:"type:text;not null"`
	AIDraftContent  string       `gorm:"column:ai_draft_content;type:text;not null;default:''"`
	FinalContent    string       `gorm:"type:text;not null;default:''"`
	ReviewNotes     string       `gorm:"type:text;not null;default:''"`
	RejectionReason string       `gorm:"type:text;not null;default:''"`
	ReviewedBy      *snowflake.ID
	CreditConsumed  bool `gorm:"not null;default:false"`
	SubmittedAt     *time.Time
	ReviewedAt      *time.Time
	ApprovedAt      *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Letter) TableName() string { return "letters" }
