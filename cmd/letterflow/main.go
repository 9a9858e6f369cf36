package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/counselops/letterflow/internal/allowance"
	"github.com/counselops/letterflow/internal/audit"
	"github.com/counselops/letterflow/internal/auth"
	"github.com/counselops/letterflow/internal/authorization"
	"github.com/counselops/letterflow/internal/checkout"
	"github.com/counselops/letterflow/internal/clock"
	"github.com/counselops/letterflow/internal/config"
	"github.com/counselops/letterflow/internal/coupon"
	"github.com/counselops/letterflow/internal/letter"
	"github.com/counselops/letterflow/internal/maintenance"
	"github.com/counselops/letterflow/internal/migration"
	"github.com/counselops/letterflow/internal/notification"
	"github.com/counselops/letterflow/internal/observability/logger"
	"github.com/counselops/letterflow/internal/plan"
	"github.com/counselops/letterflow/internal/seed"
	"github.com/counselops/letterflow/internal/server"
	"github.com/counselops/letterflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Invoke(func(log *zap.Logger, cfg config.Config) {
			log.Info("starting letterflow",
				zap.String("version", version),
				zap.String("environment", cfg.Environment),
			)
		}),
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, p seed.Params) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			return seed.Run(context.Background(), p)
		}),
		plan.Module,
		audit.Module,
		allowance.Module,
		coupon.Module,
		notification.Module,
		maintenance.Module,
		letter.Module,
		checkout.Module,
		auth.Module,
		authorization.Module,
		server.Module,
	)
	app.Run()
}
