package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus tracks the paid-plan lifecycle. Subscriptions are never
// deleted, only moved between statuses.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

// Subscription carries the allowance ledger balance for one purchase.
// CreditsRemaining never goes negative; CreditsGrantedAt marks that the plan's
// letter credits were applied, making grants idempotent per subscription.
type Subscription struct {
	ID                 snowflake.ID       `gorm:"primaryKey"`
	UserID             snowflake.ID       `gorm:"not null;index"`
	Status             SubscriptionStatus `gorm:"type:text;not null;default:'active'"`
	PlanType           string             `gorm:"type:text;not null"`
	Price              decimal.Decimal    `gorm:"type:numeric;not null"`
	Discount           decimal.Decimal    `gorm:"type:numeric;not null"`
	CreditsRemaining   int64              `gorm:"not null;default:0"`
	CreditsGrantedAt   *time.Time
	CouponCode         *string   `gorm:"type:text"`
	PaymentSessionID   string    `gorm:"type:text;not null;uniqueIndex"`
	CurrentPeriodStart time.Time `gorm:"not null"`
	CurrentPeriodEnd   time.Time `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// ActiveAt reports whether the subscription covers the given instant.
func (s Subscription) ActiveAt(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	return !now.Before(s.CurrentPeriodStart) && !now.After(s.CurrentPeriodEnd)
}
