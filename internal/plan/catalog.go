// Package plan resolves the subscription plan catalog.
package plan

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/counselops/letterflow/internal/cache"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Plan types carried by subscriptions. The super plan is unmetered.
const (
	TypeStarter      = "starter"
	TypeProfessional = "professional"
	TypeSuper        = "super"
)

var ErrPlanNotFound = errors.New("plan_not_found")

// Plan describes a purchasable subscription plan.
type Plan struct {
	PlanType  string          `gorm:"primaryKey;column:plan_type"`
	Name      string          `gorm:"type:text;not null"`
	Letters   int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:numeric;not null"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// IsUnlimited reports whether the plan bypasses the allowance ledger.
func (p Plan) IsUnlimited() bool { return p.PlanType == TypeSuper }

const lookupTTL = time.Minute

// Catalog reads plans with a short-lived cache in front of the store.
type Catalog struct {
	db    *gorm.DB
	log   *zap.Logger
	cache cache.Cache[string, Plan]
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewCatalog(p Params) *Catalog {
	return &Catalog{
		db:    p.DB,
		log:   p.Log.Named("plan.catalog"),
		cache: cache.NewTTLCache[string, Plan](),
	}
}

// Lookup returns the plan for a plan type.
func (c *Catalog) Lookup(ctx context.Context, planType string) (Plan, error) {
	planType = strings.ToLower(strings.TrimSpace(planType))
	if planType == "" {
		return Plan{}, ErrPlanNotFound
	}

	if cached, ok := c.cache.Get(planType); ok {
		return cached, nil
	}

	var found Plan
	err := c.db.WithContext(ctx).
		Where("plan_type = ?", planType).
		Take(&found).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Plan{}, ErrPlanNotFound
	}
	if err != nil {
		return Plan{}, err
	}

	c.cache.Set(planType, found, lookupTTL)
	return found, nil
}

// List returns all purchasable plans ordered by price.
func (c *Catalog) List(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	err := c.db.WithContext(ctx).
		Order("price ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

var Module = fx.Module("plan.catalog",
	fx.Provide(NewCatalog),
)
