package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/counselops/letterflow/internal/clock"
	coupondomain "github.com/counselops/letterflow/internal/coupon/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupCouponTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE employee_coupons (
			code TEXT PRIMARY KEY,
			employee_id INTEGER,
			discount_percent INTEGER NOT NULL,
			is_super BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE commissions (
			id INTEGER PRIMARY KEY,
			employee_id INTEGER NOT NULL,
			subscription_id INTEGER NOT NULL UNIQUE,
			subscription_amount NUMERIC NOT NULL,
			commission_rate NUMERIC NOT NULL,
			commission_amount NUMERIC NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			paid_at DATETIME,
			created_at DATETIME
		)`,
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newCouponService(t *testing.T, db *gorm.DB) coupondomain.Service {
	t.Helper()
	return NewService(Params{DB: db, Log: zap.NewNop(), Clock: clock.SystemClock{}})
}

func employeeRef(id snowflake.ID) *snowflake.ID { return &id }

func insertCommission(t *testing.T, db *gorm.DB, id, employeeID, subscriptionID snowflake.ID, status coupondomain.CommissionStatus) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO commissions
		   (id, employee_id, subscription_id, subscription_amount, commission_rate,
		    commission_amount, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, employeeID, subscriptionID,
		decimal.NewFromInt(99), coupondomain.CommissionRate, decimal.NewFromFloat(4.95),
		status, now,
	).Error
	if err != nil {
		t.Fatalf("insert commission: %v", err)
	}
}

func TestCreateNormalizesCode(t *testing.T) {
	db := setupCouponTestDB(t)
	svc := newCouponService(t, db)

	coupon, err := svc.Create(context.Background(), coupondomain.CreateCouponRequest{
		Code:            "  save10  ",
		EmployeeID:      employeeRef(7),
		DiscountPercent: 10,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if coupon.Code != "SAVE10" {
		t.Fatalf("expected normalized code SAVE10, got %q", coupon.Code)
	}
	if !coupon.IsActive {
		t.Fatal("new coupon must start active")
	}

	// Lookup is case-insensitive through the same normalization.
	found, err := svc.Validate(context.Background(), "Save10")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if found.EmployeeID == nil || *found.EmployeeID != 7 {
		t.Fatal("validate must return the attributed employee")
	}
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	db := setupCouponTestDB(t)
	svc := newCouponService(t, db)
	ctx := context.Background()

	req := coupondomain.CreateCouponRequest{Code: "DUP", DiscountPercent: 5, EmployeeID: employeeRef(7)}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, req); !errors.Is(err, coupondomain.ErrCouponExists) {
		t.Fatalf("expected coupon exists, got %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	db := setupCouponTestDB(t)
	svc := newCouponService(t, db)
	ctx := context.Background()

	if _, err := svc.Create(ctx, coupondomain.CreateCouponRequest{Code: "   ", DiscountPercent: 5}); !errors.Is(err, coupondomain.ErrInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	if _, err := svc.Create(ctx, coupondomain.CreateCouponRequest{Code: "BAD", DiscountPercent: 101}); !errors.Is(err, coupondomain.ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}
	if _, err := svc.Create(ctx, coupondomain.CreateCouponRequest{Code: "BAD", DiscountPercent: -1}); !errors.Is(err, coupondomain.ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}
	if _, err := svc.Create(ctx, coupondomain.CreateCouponRequest{Code: "BAD", DiscountPercent: 5, EmployeeID: employeeRef(0)}); !errors.Is(err, coupondomain.ErrInvalidEmployee) {
		t.Fatalf("expected invalid employee, got %v", err)
	}
}

func TestDeactivateBlocksValidation(t *testing.T) {
	db := setupCouponTestDB(t)
	svc := newCouponService(t, db)
	ctx := context.Background()

	if _, err := svc.Create(ctx, coupondomain.CreateCouponRequest{Code: "GONE", DiscountPercent: 15, EmployeeID: employeeRef(7)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Deactivate(ctx, "gone"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Validate(ctx, "GONE"); !errors.Is(err, coupondomain.ErrCouponInactive) {
		t.Fatalf("expected coupon inactive, got %v", err)
	}
	if err := svc.Deactivate(ctx, "never-existed"); !errors.Is(err, coupondomain.ErrCouponNotFound) {
		t.Fatalf("expected coupon not found, got %v", err)
	}
}

func TestValidateUnknownCode(t *testing.T) {
	db := setupCouponTestDB(t)
	svc := newCouponService(t, db)

	if _, err := svc.Validate(context.Background(), "NOPE"); !errors.Is(err, coupondomain.ErrCouponNotFound) {
		t.Fatalf("expected coupon not found, got %v", err)
	}
}

func TestListCommissionsScopedToEmployee(t *testing.T) {
	db := setupCouponTestDB(t)
	svc := newCouponService(t, db)

	insertCommission(t, db, 100, 7, 900, coupondomain.CommissionStatusPending)
	insertCommission(t, db, 101, 7, 901, coupondomain.CommissionStatusPaid)
	insertCommission(t, db, 102, 8, 902, coupondomain.CommissionStatusPending)

	commissions, err := svc.ListCommissions(context.Background(), 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(commissions) != 2 {
		t.Fatalf("expected 2 commissions for employee 7, got %d", len(commissions))
	}
	for _, c := range commissions {
		if c.EmployeeID != 7 {
			t.Fatalf("commission %d belongs to employee %d", c.ID, c.EmployeeID)
		}
	}
}

func TestMarkCommissionPaidIsFinal(t *testing.T) {
	db := setupCouponTestDB(t)
	svc := newCouponService(t, db)
	ctx := context.Background()

	insertCommission(t, db, 200, 7, 910, coupondomain.CommissionStatusPending)

	if err := svc.MarkCommissionPaid(ctx, 200); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := svc.MarkCommissionPaid(ctx, 200); !errors.Is(err, coupondomain.ErrCommissionPaid) {
		t.Fatalf("expected already paid, got %v", err)
	}
	if err := svc.MarkCommissionPaid(ctx, 999); !errors.Is(err, coupondomain.ErrCommissionNotFound) {
		t.Fatalf("expected commission not found, got %v", err)
	}

	var stamped int64
	if err := db.Raw(`SELECT COUNT(1) FROM commissions WHERE id = 200 AND paid_at IS NOT NULL`).Scan(&stamped).Error; err != nil {
		t.Fatalf("read paid_at: %v", err)
	}
	if stamped != 1 {
		t.Fatal("paid commission must carry paid_at")
	}
}
