package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	allowancedomain "github.com/counselops/letterflow/internal/allowance/domain"
	"github.com/counselops/letterflow/internal/clock"
	"github.com/counselops/letterflow/internal/observability/metrics"
	"github.com/counselops/letterflow/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Plans *plan.Catalog
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	plans *plan.Catalog
}

func NewService(p Params) allowancedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("allowance.service"),
		clock: p.Clock,
		plans: p.Plans,
	}
}

func (s *Service) Check(ctx context.Context, userID snowflake.ID) (allowancedomain.Status, error) {
	if userID == 0 {
		return allowancedomain.Status{}, allowancedomain.ErrInvalidUser
	}

	unlimited, err := s.isUnlimited(ctx, userID)
	if err != nil {
		return allowancedomain.Status{}, err
	}
	if unlimited {
		return allowancedomain.Status{HasAllowance: true, Unlimited: true}, nil
	}

	sub, err := s.ActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, allowancedomain.ErrNoActiveSubscription) {
			return allowancedomain.Status{}, nil
		}
		return allowancedomain.Status{}, err
	}

	return allowancedomain.Status{
		HasAllowance: sub.CreditsRemaining > 0,
		Remaining:    sub.CreditsRemaining,
	}, nil
}

// Deduct decrements the active subscription's balance by one. The decrement
// and the positive-balance check happen in a single conditional update so
// concurrent submissions cannot overdraw the ledger.
func (s *Service) Deduct(ctx context.Context, userID snowflake.ID) (bool, error) {
	sub, err := s.ActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, allowancedomain.ErrNoActiveSubscription) {
			metrics.Letters().IncDeduction("exhausted")
			return false, nil
		}
		return false, err
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET credits_remaining = credits_remaining - 1, updated_at = ?
		 WHERE id = ? AND credits_remaining > 0`,
		s.clock.Now(),
		sub.ID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	deducted := result.RowsAffected > 0
	if deducted {
		metrics.Letters().IncDeduction("deducted")
	} else {
		metrics.Letters().IncDeduction("exhausted")
	}
	return deducted, nil
}

// Refund credits one unit back to the active subscription. Used when a
// pre-deducted generation attempt fails.
func (s *Service) Refund(ctx context.Context, userID snowflake.ID) error {
	sub, err := s.ActiveSubscription(ctx, userID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET credits_remaining = credits_remaining + 1, updated_at = ?
		 WHERE id = ?`,
		s.clock.Now(),
		sub.ID,
	).Error
}

// Grant applies the plan's letter count once per subscription. The
// credits_granted_at marker makes duplicate payment confirmations no-ops.
func (s *Service) Grant(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, planType string) error {
	if subscriptionID == 0 {
		return allowancedomain.ErrInvalidSubscription
	}
	db := tx
	if db == nil {
		db = s.db
	}

	purchased, err := s.plans.Lookup(ctx, planType)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			return allowancedomain.ErrUnknownPlan
		}
		return err
	}

	now := s.clock.Now()
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET credits_remaining = credits_remaining + ?, credits_granted_at = ?, updated_at = ?
		 WHERE id = ? AND credits_granted_at IS NULL`,
		purchased.Letters,
		now,
		now,
		subscriptionID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Debug("credits already granted",
			zap.String("subscription_id", subscriptionID.String()),
		)
	}
	return nil
}

// MarkUnlimited flags the user profile as unmetered. Submissions for the user
// bypass the ledger from then on.
func (s *Service) MarkUnlimited(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error {
	if userID == 0 {
		return allowancedomain.ErrInvalidUser
	}
	db := tx
	if db == nil {
		db = s.db
	}

	result := db.WithContext(ctx).Exec(
		`UPDATE users SET is_unlimited = TRUE, updated_at = ? WHERE id = ?`,
		s.clock.Now(),
		userID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return allowancedomain.ErrUserNotFound
	}
	return nil
}

func (s *Service) ActiveSubscription(ctx context.Context, userID snowflake.ID) (*allowancedomain.Subscription, error) {
	if userID == 0 {
		return nil, allowancedomain.ErrInvalidUser
	}

	now := s.clock.Now()
	var sub allowancedomain.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, allowancedomain.SubscriptionStatusActive).
		Where("current_period_start <= ? AND current_period_end >= ?", now, now).
		Order("current_period_end DESC").
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, allowancedomain.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Service) isUnlimited(ctx context.Context, userID snowflake.ID) (bool, error) {
	var row struct {
		Found       bool `gorm:"column:found"`
		IsUnlimited bool `gorm:"column:is_unlimited"`
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT TRUE AS found, is_unlimited FROM users WHERE id = ?`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return false, err
	}
	if !row.Found {
		return false, allowancedomain.ErrUserNotFound
	}
	return row.IsUnlimited, nil
}
