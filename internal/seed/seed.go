package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/counselops/letterflow/internal/auth/domain"
	"github.com/counselops/letterflow/internal/clock"
	"github.com/counselops/letterflow/internal/config"
	"github.com/counselops/letterflow/internal/plan"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
}

// Run applies startup seeding per the bootstrap config. Every step is
// idempotent so restarts are safe.
func Run(ctx context.Context, p Params) error {
	log := p.Log.Named("seed")
	if p.Cfg.Bootstrap.EnsurePlans {
		if err := ensurePlans(ctx, p.DB); err != nil {
			return err
		}
		log.Info("plan catalog ensured")
	}
	if p.Cfg.Bootstrap.EnsureDefaultAdmin {
		if err := ensureDefaultAdmin(ctx, p, log); err != nil {
			return err
		}
	}
	return nil
}

func ensurePlans(ctx context.Context, db *gorm.DB) error {
	plans := []plan.Plan{
		{PlanType: plan.TypeStarter, Name: "Starter", Letters: 5, Price: decimal.NewFromInt(49)},
		{PlanType: plan.TypeProfessional, Name: "Professional", Letters: 15, Price: decimal.NewFromInt(99)},
		{PlanType: plan.TypeSuper, Name: "Super", Letters: 0, Price: decimal.NewFromInt(299)},
	}
	for _, row := range plans {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO plans (plan_type, name, letters, price)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (plan_type) DO NOTHING`,
			row.PlanType, row.Name, row.Letters, row.Price,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// ensureDefaultAdmin creates the bootstrap admin account on first start. When
// no password is configured a random one is generated and logged once; the
// operator is expected to rotate it.
func ensureDefaultAdmin(ctx context.Context, p Params, log *zap.Logger) error {
	email := p.Cfg.Bootstrap.AdminEmail
	password := p.Cfg.Bootstrap.AdminPassword

	generated := false
	if password == "" {
		buf := make([]byte, 12)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		password = hex.EncodeToString(buf)
		generated = true
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := p.Clock.Now()
	result := p.DB.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, password_hash, display_name, role, is_unlimited, created_at, updated_at)
		 VALUES (?, ?, ?, 'Administrator', ?, FALSE, ?, ?)
		 ON CONFLICT (email) DO NOTHING`,
		p.GenID.Generate(), email, string(hash), authdomain.RoleAdmin, now, now,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return nil
	}

	if generated {
		log.Warn("default admin created with generated password",
			zap.String("email", email),
			zap.String("password", password),
		)
	} else {
		log.Info("default admin created", zap.String("email", email))
	}
	return nil
}
