package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Actions recorded on the letter audit trail.
const (
	ActionSubmitted         = "submitted"
	ActionGenerationStarted = "generation_started"
	ActionGenerated         = "generation_succeeded"
	ActionGenerationFailed  = "generation_failed"
	ActionRetried           = "retried"
	ActionReviewStarted     = "review_started"
	ActionApproved          = "approved"
	ActionRejected          = "rejected"
	ActionCompleted         = "completed"
	ActionDeleted           = "deleted"
)

// LetterAudit is one immutable record of a letter transition or notable event.
// Rows are never updated or deleted. Snowflake ids are time-ordered, so
// (created_at, id) ascending reconstructs the exact transition sequence even
// when two records share a timestamp.
type LetterAudit struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	LetterID    snowflake.ID      `gorm:"not null;index"`
	Action      string            `gorm:"type:text;not null"`
	OldStatus   string            `gorm:"type:text;not null;default:''"`
	NewStatus   string            `gorm:"type:text;not null;default:''"`
	PerformedBy *string           `gorm:"type:text"`
	Notes       string            `gorm:"type:text;not null;default:''"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LetterAudit) TableName() string { return "letter_audits" }
