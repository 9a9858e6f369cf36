package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// CommissionRate is the fixed employee payout share of a referred sale.
var CommissionRate = decimal.NewFromFloat(0.05)

// CommissionStatus tracks payout state. Commission rows are created once and
// mutated only to flip paid/paid_at.
type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPaid    CommissionStatus = "paid"
)

// EmployeeCoupon is a referral code attributable to an employee. Promotional
// codes carry no employee. UsageCount is monotonically non-decreasing and
// incremented exactly once per successful redemption.
type EmployeeCoupon struct {
	Code            string        `gorm:"primaryKey;type:text"`
	EmployeeID      *snowflake.ID `gorm:"index"`
	DiscountPercent int           `gorm:"not null"`
	IsSuper         bool          `gorm:"not null;default:false"`
	IsActive        bool          `gorm:"not null;default:true"`
	UsageCount      int64         `gorm:"not null;default:0"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EmployeeCoupon) TableName() string { return "employee_coupons" }

// Commission is created at most once per generating subscription.
type Commission struct {
	ID                 snowflake.ID     `gorm:"primaryKey"`
	EmployeeID         snowflake.ID     `gorm:"not null;index"`
	SubscriptionID     snowflake.ID     `gorm:"not null;uniqueIndex"`
	SubscriptionAmount decimal.Decimal  `gorm:"type:numeric;not null"`
	CommissionRate     decimal.Decimal  `gorm:"type:numeric;not null"`
	CommissionAmount   decimal.Decimal  `gorm:"type:numeric;not null"`
	Status             CommissionStatus `gorm:"type:text;not null;default:'pending'"`
	PaidAt             *time.Time
	CreatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Commission) TableName() string { return "commissions" }

// CouponUsage records one redemption with pre/post-discount amounts for audit
// and fraud analysis. Never mutated after creation.
type CouponUsage struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	Code           string          `gorm:"type:text;not null;index"`
	UserID         snowflake.ID    `gorm:"not null"`
	SubscriptionID snowflake.ID    `gorm:"not null"`
	AmountBefore   decimal.Decimal `gorm:"type:numeric;not null"`
	AmountAfter    decimal.Decimal `gorm:"type:numeric;not null"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CouponUsage) TableName() string { return "coupon_usages" }

var (
	ErrInvalidCode        = errors.New("invalid_code")
	ErrInvalidDiscount    = errors.New("invalid_discount")
	ErrCouponNotFound     = errors.New("coupon_not_found")
	ErrCouponInactive     = errors.New("coupon_inactive")
	ErrCouponExists       = errors.New("coupon_exists")
	ErrCommissionNotFound = errors.New("commission_not_found")
	ErrCommissionPaid     = errors.New("commission_already_paid")
	ErrInvalidEmployee    = errors.New("invalid_employee")
)
