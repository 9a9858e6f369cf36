package authorization

import (
	"context"

	authdomain "github.com/counselops/letterflow/internal/auth/domain"
)

// Objects and actions gated by role.
const (
	ObjectLetter     = "letter"
	ObjectReview     = "review"
	ObjectCoupon     = "coupon"
	ObjectCommission = "commission"
)

const (
	ActionLetterWrite      = "letter:write"
	ActionReviewDecide     = "review:decide"
	ActionCouponManage     = "coupon:manage"
	ActionCommissionView   = "commission:view"
	ActionCommissionPayout = "commission:payout"
)

// Service answers whether a role may perform an action on an object.
type Service interface {
	Authorize(ctx context.Context, role authdomain.Role, object string, action string) error
}
