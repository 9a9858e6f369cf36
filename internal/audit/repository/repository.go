package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/counselops/letterflow/internal/audit/domain"
	"gorm.io/gorm"
)

type Repository struct{}

func Provide() auditdomain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, record *auditdomain.LetterAudit) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *Repository) ListByLetter(ctx context.Context, db *gorm.DB, letterID snowflake.ID, order auditdomain.Order) ([]*auditdomain.LetterAudit, error) {
	direction := "created_at ASC, id ASC"
	if order == auditdomain.OrderRecent {
		direction = "created_at DESC, id DESC"
	}

	var records []*auditdomain.LetterAudit
	err := db.WithContext(ctx).
		Where("letter_id = ?", letterID).
		Order(direction).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
