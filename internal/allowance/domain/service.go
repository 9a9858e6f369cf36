package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Status is the read-only allowance view for a user.
type Status struct {
	HasAllowance bool
	Remaining    int64
	Unlimited    bool
}

// Service maintains credits_remaining as an exact, race-safe counter.
//
// Deduct must be a single conditional update at the storage layer, never a
// read-then-write pair; a false return means insufficient allowance, not a
// fault. Grant and MarkUnlimited accept an optional transaction handle so
// payment confirmation can compose them into one logical transaction.
type Service interface {
	Check(ctx context.Context, userID snowflake.ID) (Status, error)
	Deduct(ctx context.Context, userID snowflake.ID) (bool, error)
	Refund(ctx context.Context, userID snowflake.ID) error
	Grant(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, planType string) error
	MarkUnlimited(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error
	ActiveSubscription(ctx context.Context, userID snowflake.ID) (*Subscription, error)
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrNoActiveSubscription = errors.New("no_active_subscription")
	ErrUnknownPlan          = errors.New("unknown_plan")
	ErrUserNotFound         = errors.New("user_not_found")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
