package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	allowanceservice "github.com/counselops/letterflow/internal/allowance/service"
	checkoutdomain "github.com/counselops/letterflow/internal/checkout/domain"
	"github.com/counselops/letterflow/internal/clock"
	coupondomain "github.com/counselops/letterflow/internal/coupon/domain"
	couponservice "github.com/counselops/letterflow/internal/coupon/service"
	"github.com/counselops/letterflow/internal/notification"
	"github.com/counselops/letterflow/internal/plan"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
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
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			is_unlimited BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE subscriptions (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			plan_type TEXT NOT NULL,
			price NUMERIC NOT NULL DEFAULT 0,
			discount NUMERIC NOT NULL DEFAULT 0,
			credits_remaining INTEGER NOT NULL DEFAULT 0,
			credits_granted_at DATETIME,
			coupon_code TEXT,
			payment_session_id TEXT NOT NULL UNIQUE,
			current_period_start DATETIME NOT NULL,
			current_period_end DATETIME NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE plans (
			plan_type TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			letters INTEGER NOT NULL,
			price NUMERIC NOT NULL,
			created_at DATETIME
		)`,
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
		`CREATE TABLE coupon_usages (
			id INTEGER PRIMARY KEY,
			code TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			subscription_id INTEGER NOT NULL,
			amount_before NUMERIC NOT NULL,
			amount_after NUMERIC NOT NULL,
			created_at DATETIME
		)`,
		`CREATE TABLE notification_outbox (
			id INTEGER PRIMARY KEY,
			template TEXT NOT NULL,
			recipient TEXT NOT NULL,
			payload TEXT,
			dedupe_key TEXT UNIQUE,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			published_at DATETIME,
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME
		)`,
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	seed := []string{
		`INSERT INTO plans (plan_type, name, letters, price) VALUES ('starter', 'Starter', 5, 49)`,
		`INSERT INTO plans (plan_type, name, letters, price) VALUES ('professional', 'Professional', 15, 99)`,
		`INSERT INTO plans (plan_type, name, letters, price) VALUES ('super', 'Super', 0, 299)`,
		`INSERT INTO users (id, email) VALUES (1, 'buyer@example.com')`,
		`INSERT INTO users (id, email) VALUES (2, 'employee@example.com')`,
	}
	for _, statement := range seed {
		if err := db.Exec(statement).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func newCheckoutService(t *testing.T, db *gorm.DB) checkoutdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := clock.SystemClock{}
	plans := plan.NewCatalog(plan.Params{DB: db, Log: zap.NewNop()})
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Plans: plans,
		AllowanceSvc: allowanceservice.NewService(allowanceservice.Params{
			DB: db, Log: zap.NewNop(), Clock: clk, Plans: plans,
		}),
		CouponSvc: couponservice.NewService(couponservice.Params{
			DB: db, Log: zap.NewNop(), Clock: clk,
		}),
		Notifier: notification.NewQueue(db, node),
	})
}

func seedCoupon(t *testing.T, db *gorm.DB, code string, employeeID any, percent int, super bool) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO employee_coupons (code, employee_id, discount_percent, is_super, is_active, usage_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, TRUE, 0, ?, ?)`,
		code, employeeID, percent, super, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
}

func TestPreviewAppliesDiscount(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)
	seedCoupon(t, db, "SAVE20", int64(2), 20, false)

	preview, err := svc.Preview(context.Background(), checkoutdomain.PreviewRequest{
		PlanType:   "professional",
		CouponCode: "save20",
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.BasePrice.StringFixed(2) != "99.00" {
		t.Fatalf("unexpected base price: %s", preview.BasePrice)
	}
	if preview.Discount.StringFixed(2) != "19.80" {
		t.Fatalf("unexpected discount: %s", preview.Discount)
	}
	if preview.FinalPrice.StringFixed(2) != "79.20" {
		t.Fatalf("unexpected final price: %s", preview.FinalPrice)
	}
}

func TestConfirmGrantsOnce(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)
	ctx := context.Background()

	req := checkoutdomain.ConfirmRequest{
		UserID:           1,
		PlanType:         "starter",
		PaymentSessionID: "cs_123",
	}

	first, err := svc.Confirm(ctx, req)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if first.Replayed {
		t.Fatal("first confirmation must not be a replay")
	}
	if first.Subscription.CreditsRemaining != 5 {
		t.Fatalf("expected 5 credits granted, got %d", first.Subscription.CreditsRemaining)
	}

	second, err := svc.Confirm(ctx, req)
	if err != nil {
		t.Fatalf("replayed confirm: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second confirmation must report replay")
	}
	if second.Subscription.ID != first.Subscription.ID {
		t.Fatal("replay must return the original subscription")
	}
	if second.Subscription.CreditsRemaining != 5 {
		t.Fatalf("replay must not re-grant, got %d", second.Subscription.CreditsRemaining)
	}

	var subCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM subscriptions`).Scan(&subCount).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if subCount != 1 {
		t.Fatalf("expected one subscription, got %d", subCount)
	}
}

func TestConfirmBooksCommissionOnce(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)
	ctx := context.Background()

	seedCoupon(t, db, "REF10", int64(2), 10, false)

	req := checkoutdomain.ConfirmRequest{
		UserID:           1,
		PlanType:         "professional",
		PaymentSessionID: "cs_200",
		CouponCode:       "REF10",
	}
	if _, err := svc.Confirm(ctx, req); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Confirm(ctx, req); err != nil {
		t.Fatalf("replayed confirm: %v", err)
	}

	var commissions []coupondomain.Commission
	if err := db.Find(&commissions).Error; err != nil {
		t.Fatalf("load commissions: %v", err)
	}
	if len(commissions) != 1 {
		t.Fatalf("expected exactly one commission, got %d", len(commissions))
	}
	// 99 - 9.90 = 89.10; 5% of that is 4.455, rounded to cents.
	if commissions[0].CommissionAmount.StringFixed(2) != "4.46" {
		t.Fatalf("unexpected commission amount: %s", commissions[0].CommissionAmount)
	}

	var usageCount int64
	if err := db.Raw(`SELECT usage_count FROM employee_coupons WHERE code = 'REF10'`).Scan(&usageCount).Error; err != nil {
		t.Fatalf("read usage count: %v", err)
	}
	if usageCount != 1 {
		t.Fatalf("expected usage_count 1, got %d", usageCount)
	}
}

func TestConfirmFullDiscountSkipsCommission(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)
	ctx := context.Background()

	seedCoupon(t, db, "FREE100", int64(2), 100, false)

	result, err := svc.Confirm(ctx, checkoutdomain.ConfirmRequest{
		UserID:           1,
		PlanType:         "starter",
		PaymentSessionID: "cs_300",
		CouponCode:       "FREE100",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !result.Subscription.Price.IsZero() {
		t.Fatalf("expected zero final price, got %s", result.Subscription.Price)
	}

	var commissionCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM commissions`).Scan(&commissionCount).Error; err != nil {
		t.Fatalf("count commissions: %v", err)
	}
	if commissionCount != 0 {
		t.Fatalf("fully discounted sale must book no commission, got %d", commissionCount)
	}

	var usageCount int64
	if err := db.Raw(`SELECT usage_count FROM employee_coupons WHERE code = 'FREE100'`).Scan(&usageCount).Error; err != nil {
		t.Fatalf("read usage count: %v", err)
	}
	if usageCount != 1 {
		t.Fatalf("redemption must still be recorded, got usage_count %d", usageCount)
	}
}

func TestConfirmSuperCouponMarksUnlimited(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)
	ctx := context.Background()

	seedCoupon(t, db, "VIP", nil, 0, true)

	if _, err := svc.Confirm(ctx, checkoutdomain.ConfirmRequest{
		UserID:           1,
		PlanType:         "starter",
		PaymentSessionID: "cs_400",
		CouponCode:       "VIP",
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var unlimited bool
	if err := db.Raw(`SELECT is_unlimited FROM users WHERE id = 1`).Scan(&unlimited).Error; err != nil {
		t.Fatalf("read user: %v", err)
	}
	if !unlimited {
		t.Fatal("super coupon must flag the user unlimited")
	}

	var commissionCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM commissions`).Scan(&commissionCount).Error; err != nil {
		t.Fatalf("count commissions: %v", err)
	}
	if commissionCount != 0 {
		t.Fatalf("promotional coupon must book no commission, got %d", commissionCount)
	}
}

func TestConfirmSuperPlanMarksUnlimited(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)

	if _, err := svc.Confirm(context.Background(), checkoutdomain.ConfirmRequest{
		UserID:           1,
		PlanType:         "super",
		PaymentSessionID: "cs_500",
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var unlimited bool
	if err := db.Raw(`SELECT is_unlimited FROM users WHERE id = 1`).Scan(&unlimited).Error; err != nil {
		t.Fatalf("read user: %v", err)
	}
	if !unlimited {
		t.Fatal("super plan must flag the user unlimited")
	}
}

func TestConfirmRejectsMissingSession(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)

	_, err := svc.Confirm(context.Background(), checkoutdomain.ConfirmRequest{
		UserID:   1,
		PlanType: "starter",
	})
	if !errors.Is(err, checkoutdomain.ErrInvalidSession) {
		t.Fatalf("expected invalid session, got %v", err)
	}
}

func TestConfirmQueuesPaymentNotificationOnce(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)
	ctx := context.Background()

	req := checkoutdomain.ConfirmRequest{
		UserID:           1,
		PlanType:         "starter",
		PaymentSessionID: "cs_600",
	}
	if _, err := svc.Confirm(ctx, req); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Confirm(ctx, req); err != nil {
		t.Fatalf("replayed confirm: %v", err)
	}

	var outboxCount int64
	if err := db.Raw(
		`SELECT COUNT(1) FROM notification_outbox WHERE template = ?`,
		notification.TemplatePaymentConfirmed,
	).Scan(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount != 1 {
		t.Fatalf("expected exactly one payment notification, got %d", outboxCount)
	}
}

func TestConfirmEmployeeSuperCouponSkipsCommission(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)
	ctx := context.Background()

	seedCoupon(t, db, "SUPER50", int64(2), 50, true)

	if _, err := svc.Confirm(ctx, checkoutdomain.ConfirmRequest{
		UserID:           1,
		PlanType:         "professional",
		PaymentSessionID: "cs_700",
		CouponCode:       "SUPER50",
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var unlimited bool
	if err := db.Raw(`SELECT is_unlimited FROM users WHERE id = 1`).Scan(&unlimited).Error; err != nil {
		t.Fatalf("read user: %v", err)
	}
	if !unlimited {
		t.Fatal("super coupon must flag the user unlimited")
	}

	var commissionCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM commissions`).Scan(&commissionCount).Error; err != nil {
		t.Fatalf("count commissions: %v", err)
	}
	if commissionCount != 0 {
		t.Fatalf("super coupon must book no commission even when attributed, got %d", commissionCount)
	}

	var usageCount int64
	if err := db.Raw(`SELECT usage_count FROM employee_coupons WHERE code = 'SUPER50'`).Scan(&usageCount).Error; err != nil {
		t.Fatalf("read usage count: %v", err)
	}
	if usageCount != 1 {
		t.Fatalf("expected usage_count 1, got %d", usageCount)
	}
}

func TestConcurrentConfirmBooksOneCommission(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db)

	seedCoupon(t, db, "RACE10", int64(2), 10, false)

	req := checkoutdomain.ConfirmRequest{
		UserID:           1,
		PlanType:         "professional",
		PaymentSessionID: "cs_800",
		CouponCode:       "RACE10",
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = svc.Confirm(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("concurrent confirm: %v", err)
		}
	}

	var subscriptionCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM subscriptions WHERE user_id = 1`).Scan(&subscriptionCount).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if subscriptionCount != 1 {
		t.Fatalf("expected one subscription, got %d", subscriptionCount)
	}

	var commissionCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM commissions`).Scan(&commissionCount).Error; err != nil {
		t.Fatalf("count commissions: %v", err)
	}
	if commissionCount != 1 {
		t.Fatalf("expected exactly one commission, got %d", commissionCount)
	}

	var usageCount int64
	if err := db.Raw(`SELECT usage_count FROM employee_coupons WHERE code = 'RACE10'`).Scan(&usageCount).Error; err != nil {
		t.Fatalf("read usage count: %v", err)
	}
	if usageCount != 1 {
		t.Fatalf("expected usage_count 1, got %d", usageCount)
	}
}
