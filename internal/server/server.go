package server

import (
	"context"
	"errors"
	"net/http"

	allowancedomain "github.com/counselops/letterflow/internal/allowance/domain"
	authdomain "github.com/counselops/letterflow/internal/auth/domain"
	"github.com/counselops/letterflow/internal/authorization"
	checkoutdomain "github.com/counselops/letterflow/internal/checkout/domain"
	"github.com/counselops/letterflow/internal/config"
	coupondomain "github.com/counselops/letterflow/internal/coupon/domain"
	letterdomain "github.com/counselops/letterflow/internal/letter/domain"
	"github.com/counselops/letterflow/internal/observability/logger"
	"github.com/counselops/letterflow/internal/plan"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	AuthSvc      authdomain.Service
	AuthzSvc     authorization.Service
	LetterSvc    letterdomain.Service
	AllowanceSvc allowancedomain.Service
	CheckoutSvc  checkoutdomain.Service
	CouponSvc    coupondomain.Service
	Plans        *plan.Catalog
}

// Server carries the handler dependencies. One instance serves all routes.
type Server struct {
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	authSvc      authdomain.Service
	authzSvc     authorization.Service
	letterSvc    letterdomain.Service
	allowanceSvc allowancedomain.Service
	checkoutSvc  checkoutdomain.Service
	couponSvc    coupondomain.Service
	plans        *plan.Catalog
	submitLimit  *rateLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		authSvc:      p.AuthSvc,
		authzSvc:     p.AuthzSvc,
		letterSvc:    p.LetterSvc,
		allowanceSvc: p.AllowanceSvc,
		checkoutSvc:  p.CheckoutSvc,
		couponSvc:    p.CouponSvc,
		plans:        p.Plans,
		submitLimit:  newRateLimiter(p.Cfg.SubmitRateLimit, p.Cfg.SubmitRateWindow),
	}
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	return engine
}

func RegisterRoutes(engine *gin.Engine, s *Server) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		api.POST("/auth/register", s.Register)
		api.POST("/auth/login", s.Login)
		api.POST("/auth/logout", s.SessionRequired(), s.Logout)
		api.GET("/auth/me", s.SessionRequired(), s.Me)

		api.GET("/plans", s.ListPlans)
		api.POST("/checkout/preview", s.PreviewCheckout)
		api.GET("/coupons/:code", s.ValidateCoupon)

		authed := api.Group("", s.SessionRequired(), s.CSRFRequired())
		{
			authed.GET("/allowance", s.AllowanceStatus)

			letters := authed.Group("/letters")
			letters.GET("", s.ListLetters)
			letters.GET("/:id", s.GetLetter)
			letters.GET("/:id/audit", s.LetterTrail)

			// Authoring is a subscriber capability; staff roles review,
			// they do not write.
			authoring := letters.Group("", s.RoleRequired(authorization.ObjectLetter, authorization.ActionLetterWrite))
			authoring.POST("", s.CreateLetter)
			authoring.POST("/:id/submit", s.SubmitLetter)
			authoring.POST("/:id/retry", s.RetryLetter)
			authoring.DELETE("/:id", s.DeleteLetter)

			review := authed.Group("/review", s.RoleRequired(authorization.ObjectReview, authorization.ActionReviewDecide))
			review.GET("/letters", s.ListPendingReview)
			review.GET("/letters/:id", s.GetLetterForReview)
			review.POST("/letters/:id/start", s.StartReview)
			review.POST("/letters/:id/approve", s.ApproveLetter)
			review.POST("/letters/:id/reject", s.RejectLetter)
			review.POST("/letters/:id/complete", s.CompleteLetter)

			coupons := authed.Group("/admin/coupons", s.RoleRequired(authorization.ObjectCoupon, authorization.ActionCouponManage))
			coupons.POST("", s.CreateCoupon)
			coupons.DELETE("/:code", s.DeactivateCoupon)

			authed.GET("/commissions", s.RoleRequired(authorization.ObjectCommission, authorization.ActionCommissionView), s.ListCommissions)
			authed.POST("/admin/commissions/:id/pay", s.RoleRequired(authorization.ObjectCommission, authorization.ActionCommissionPayout), s.PayCommission)
		}
	}

	// Providers call back without a session; shared secrets authenticate
	// them instead.
	engine.POST("/webhooks/payment", s.PaymentWebhook)
	engine.POST("/webhooks/generation", s.GenerationWebhook)
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RunHTTP),
)
