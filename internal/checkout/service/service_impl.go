package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	allowancedomain "github.com/counselops/letterflow/internal/allowance/domain"
	checkoutdomain "github.com/counselops/letterflow/internal/checkout/domain"
	"github.com/counselops/letterflow/internal/clock"
	coupondomain "github.com/counselops/letterflow/internal/coupon/domain"
	"github.com/counselops/letterflow/internal/notification"
	"github.com/counselops/letterflow/internal/plan"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Plans        *plan.Catalog
	AllowanceSvc allowancedomain.Service
	CouponSvc    coupondomain.Service
	Notifier     *notification.Queue
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	plans        *plan.Catalog
	allowanceSvc allowancedomain.Service
	couponSvc    coupondomain.Service
	notifier     *notification.Queue
}

func NewService(p Params) checkoutdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("checkout.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		plans:        p.Plans,
		allowanceSvc: p.AllowanceSvc,
		couponSvc:    p.CouponSvc,
		notifier:     p.Notifier,
	}
}

func (s *Service) Preview(ctx context.Context, req checkoutdomain.PreviewRequest) (*checkoutdomain.Preview, error) {
	purchased, err := s.plans.Lookup(ctx, req.PlanType)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			return nil, checkoutdomain.ErrUnknownPlan
		}
		return nil, err
	}

	var coupon *coupondomain.EmployeeCoupon
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		coupon, err = s.couponSvc.Validate(ctx, code)
		if err != nil {
			return nil, err
		}
	}

	pricing := price(purchased.Price, coupon)
	preview := &checkoutdomain.Preview{
		PlanType:        purchased.PlanType,
		PlanName:        purchased.Name,
		Letters:         purchased.Letters,
		BasePrice:       pricing.base,
		DiscountPercent: pricing.percent,
		Discount:        pricing.discount,
		FinalPrice:      pricing.final,
		Unlimited:       purchased.IsUnlimited(),
	}
	if coupon != nil {
		preview.CouponCode = coupon.Code
		if coupon.IsSuper {
			preview.Unlimited = true
		}
	}
	return preview, nil
}

// Confirm settles one paid checkout session exactly once. The subscription
// insert carries the session id's unique index, so a replay inserts zero rows
// and the whole side-effect chain is skipped. Everything else rides in the
// same transaction as the insert.
func (s *Service) Confirm(ctx context.Context, req checkoutdomain.ConfirmRequest) (*checkoutdomain.ConfirmResult, error) {
	sessionID := strings.TrimSpace(req.PaymentSessionID)
	if sessionID == "" {
		return nil, checkoutdomain.ErrInvalidSession
	}
	if req.UserID == 0 {
		return nil, checkoutdomain.ErrInvalidUser
	}

	purchased, err := s.plans.Lookup(ctx, req.PlanType)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			return nil, checkoutdomain.ErrUnknownPlan
		}
		return nil, err
	}

	var coupon *coupondomain.EmployeeCoupon
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		coupon, err = s.couponSvc.Validate(ctx, code)
		if err != nil {
			return nil, err
		}
	}

	pricing := price(purchased.Price, coupon)
	now := s.clock.Now()
	sub := &allowancedomain.Subscription{
		ID:                 s.genID.Generate(),
		UserID:             req.UserID,
		Status:             allowancedomain.SubscriptionStatusActive,
		PlanType:           purchased.PlanType,
		Price:              pricing.final,
		Discount:           pricing.discount,
		PaymentSessionID:   sessionID,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if coupon != nil {
		sub.CouponCode = &coupon.Code
	}

	replayed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`INSERT INTO subscriptions
			   (id, user_id, status, plan_type, price, discount, credits_remaining,
			    coupon_code, payment_session_id, current_period_start, current_period_end,
			    created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (payment_session_id) DO NOTHING`,
			sub.ID, sub.UserID, sub.Status, sub.PlanType, sub.Price, sub.Discount,
			sub.CouponCode, sub.PaymentSessionID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
			sub.CreatedAt, sub.UpdatedAt,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			replayed = true
			return nil
		}

		if err := s.allowanceSvc.Grant(ctx, tx, sub.ID, sub.PlanType); err != nil {
			return err
		}
		if purchased.IsUnlimited() || (coupon != nil && coupon.IsSuper) {
			if err := s.allowanceSvc.MarkUnlimited(ctx, tx, req.UserID); err != nil {
				return err
			}
		}
		if coupon != nil {
			if err := s.redeem(ctx, tx, coupon, sub, pricing); err != nil {
				return err
			}
		}
		recipient := s.userEmail(ctx, tx, req.UserID)
		if recipient == "" {
			return nil
		}
		return s.notifier.EnqueueTx(ctx, tx, notification.Message{
			Template:  notification.TemplatePaymentConfirmed,
			Recipient: recipient,
			Payload: map[string]any{
				"plan_type":   sub.PlanType,
				"final_price": pricing.final.StringFixed(2),
			},
			DedupeKey: "payment_confirmed:" + sessionID,
		})
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		existing, err := s.bySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		s.log.Info("checkout session replayed",
			zap.String("payment_session_id", sessionID),
			zap.String("subscription_id", existing.ID.String()),
		)
		return &checkoutdomain.ConfirmResult{Subscription: existing, Replayed: true}, nil
	}

	created, err := s.bySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &checkoutdomain.ConfirmResult{Subscription: created}, nil
}

// redeem records the coupon usage, bumps the redemption counter, and books
// the employee commission. A fully discounted sale books no commission.
func (s *Service) redeem(ctx context.Context, tx *gorm.DB, coupon *coupondomain.EmployeeCoupon, sub *allowancedomain.Subscription, pricing pricing) error {
	now := s.clock.Now()
	usage := &coupondomain.CouponUsage{
		ID:             s.genID.Generate(),
		Code:           coupon.Code,
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		AmountBefore:   pricing.base,
		AmountAfter:    pricing.final,
		CreatedAt:      now,
	}
	if err := tx.WithContext(ctx).Create(usage).Error; err != nil {
		return err
	}

	result := tx.WithContext(ctx).Exec(
		`UPDATE employee_coupons SET usage_count = usage_count + 1, updated_at = ? WHERE code = ?`,
		now,
		coupon.Code,
	)
	if result.Error != nil {
		return result.Error
	}

	// Super coupons are promotional regardless of attribution; only a
	// regular employee coupon on a positive final price pays out.
	if coupon.EmployeeID == nil || coupon.IsSuper || !pricing.final.IsPositive() {
		return nil
	}
	amount := pricing.final.Mul(coupondomain.CommissionRate).Round(2)
	return tx.WithContext(ctx).Exec(
		`INSERT INTO commissions
		   (id, employee_id, subscription_id, subscription_amount, commission_rate,
		    commission_amount, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subscription_id) DO NOTHING`,
		s.genID.Generate(),
		*coupon.EmployeeID,
		sub.ID,
		pricing.final,
		coupondomain.CommissionRate,
		amount,
		coupondomain.CommissionStatusPending,
		now,
	).Error
}

func (s *Service) bySession(ctx context.Context, sessionID string) (*allowancedomain.Subscription, error) {
	var sub allowancedomain.Subscription
	err := s.db.WithContext(ctx).
		Where("payment_session_id = ?", sessionID).
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, allowancedomain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Service) userEmail(ctx context.Context, tx *gorm.DB, userID snowflake.ID) string {
	var email string
	if err := tx.WithContext(ctx).Raw(
		`SELECT email FROM users WHERE id = ?`,
		userID,
	).Scan(&email).Error; err != nil {
		s.log.Warn("user email lookup failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(email)
}

type pricing struct {
	base     decimal.Decimal
	percent  int
	discount decimal.Decimal
	final    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// price applies the coupon's whole-percent discount with half-up rounding to
// cents. The final price never goes below zero.
func price(base decimal.Decimal, coupon *coupondomain.EmployeeCoupon) pricing {
	p := pricing{base: base, discount: decimal.Zero, final: base}
	if coupon == nil || coupon.DiscountPercent <= 0 {
		return p
	}
	p.percent = coupon.DiscountPercent
	p.discount = base.Mul(decimal.NewFromInt(int64(coupon.DiscountPercent))).Div(hundred).Round(2)
	p.final = base.Sub(p.discount)
	if p.final.IsNegative() {
		p.final = decimal.Zero
	}
	return p
}
