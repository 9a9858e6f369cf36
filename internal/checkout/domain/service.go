package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	allowancedomain "github.com/counselops/letterflow/internal/allowance/domain"
	"github.com/shopspring/decimal"
)

// PreviewRequest asks for the price of a plan with an optional coupon.
type PreviewRequest struct {
	PlanType   string
	CouponCode string
}

// Preview is the priced quote shown before payment.
type Preview struct {
	PlanType        string
	PlanName        string
	Letters         int
	BasePrice       decimal.Decimal
	DiscountPercent int
	Discount        decimal.Decimal
	FinalPrice      decimal.Decimal
	CouponCode      string
	Unlimited       bool
}

// ConfirmRequest is the payment provider's settlement callback payload.
// PaymentSessionID is the idempotency key: replays of the same session must
// not grant, redeem, or commission twice.
type ConfirmRequest struct {
	UserID           snowflake.ID
	PlanType         string
	PaymentSessionID string
	CouponCode       string
}

// ConfirmResult reports the subscription and whether this call created it.
type ConfirmResult struct {
	Subscription *allowancedomain.Subscription
	Replayed     bool
}

// Service prices plan purchases and settles confirmed payments.
type Service interface {
	Preview(ctx context.Context, req PreviewRequest) (*Preview, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error)
}

var (
	ErrInvalidSession = errors.New("invalid_payment_session")
	ErrInvalidUser    = errors.New("invalid_user")
	ErrUnknownPlan    = errors.New("unknown_plan")
)
