package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/counselops/letterflow/internal/clock"
	coupondomain "github.com/counselops/letterflow/internal/coupon/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) coupondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("coupon.service"),
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req coupondomain.CreateCouponRequest) (*coupondomain.EmployeeCoupon, error) {
	code := normalizeCode(req.Code)
	if code == "" {
		return nil, coupondomain.ErrInvalidCode
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return nil, coupondomain.ErrInvalidDiscount
	}
	if req.EmployeeID != nil && *req.EmployeeID == 0 {
		return nil, coupondomain.ErrInvalidEmployee
	}

	now := s.clock.Now()
	record := &coupondomain.EmployeeCoupon{
		Code:            code,
		EmployeeID:      req.EmployeeID,
		DiscountPercent: req.DiscountPercent,
		IsSuper:         req.IsSuper,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO employee_coupons (code, employee_id, discount_percent, is_super, is_active, usage_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, TRUE, 0, ?, ?)
		 ON CONFLICT (code) DO NOTHING`,
		record.Code,
		record.EmployeeID,
		record.DiscountPercent,
		record.IsSuper,
		now,
		now,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, coupondomain.ErrCouponExists
	}
	return record, nil
}

func (s *Service) Deactivate(ctx context.Context, code string) error {
	code = normalizeCode(code)
	if code == "" {
		return coupondomain.ErrInvalidCode
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE employee_coupons SET is_active = FALSE, updated_at = ? WHERE code = ?`,
		s.clock.Now(),
		code,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return coupondomain.ErrCouponNotFound
	}
	return nil
}

// Validate returns the coupon when it exists and is redeemable.
func (s *Service) Validate(ctx context.Context, code string) (*coupondomain.EmployeeCoupon, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, coupondomain.ErrInvalidCode
	}

	var record coupondomain.EmployeeCoupon
	err := s.db.WithContext(ctx).
		Where("code = ?", code).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, coupondomain.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	if !record.IsActive {
		return nil, coupondomain.ErrCouponInactive
	}
	return &record, nil
}

func (s *Service) ListCommissions(ctx context.Context, employeeID snowflake.ID) ([]*coupondomain.Commission, error) {
	if employeeID == 0 {
		return nil, coupondomain.ErrInvalidEmployee
	}

	var records []*coupondomain.Commission
	err := s.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MarkCommissionPaid flips a pending commission to paid exactly once.
func (s *Service) MarkCommissionPaid(ctx context.Context, commissionID snowflake.ID) error {
	if commissionID == 0 {
		return coupondomain.ErrCommissionNotFound
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE commissions
		 SET status = ?, paid_at = ?
		 WHERE id = ? AND status = ?`,
		coupondomain.CommissionStatusPaid,
		now,
		commissionID,
		coupondomain.CommissionStatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM commissions WHERE id = ?`, commissionID,
		).Scan(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return coupondomain.ErrCommissionNotFound
		}
		return coupondomain.ErrCommissionPaid
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
