package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CreateCouponRequest describes a new referral code.
type CreateCouponRequest struct {
	Code            string
	EmployeeID      *snowflake.ID
	DiscountPercent int
	IsSuper         bool
}

// Service manages referral coupons and employee commission payouts.
type Service interface {
	Create(ctx context.Context, req CreateCouponRequest) (*EmployeeCoupon, error)
	Deactivate(ctx context.Context, code string) error
	Validate(ctx context.Context, code string) (*EmployeeCoupon, error)
	ListCommissions(ctx context.Context, employeeID snowflake.ID) ([]*Commission, error)
	MarkCommissionPaid(ctx context.Context, commissionID snowflake.ID) error
}
