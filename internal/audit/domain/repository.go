package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Order controls trail ordering: causal for reconstruction, reverse for display.
type Order string

const (
	OrderCausal Order = "causal"
	OrderRecent Order = "recent"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *LetterAudit) error
	ListByLetter(ctx context.Context, db *gorm.DB, letterID snowflake.ID, order Order) ([]*LetterAudit, error)
}
