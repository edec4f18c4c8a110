// Package server is the HTTP boundary: gin handlers for the merchant
// API, the channel webhook endpoints, and operational routes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/payflow/internal/audit/domain"
	"github.com/smallbiznis/payflow/internal/config"
	merchantservice "github.com/smallbiznis/payflow/internal/merchant/service"
	"github.com/smallbiznis/payflow/internal/observability/logger"
	"github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	PaymentSvc  domain.Service
	MerchantSvc *merchantservice.Service
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Server struct {
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	engine      *gin.Engine
	paymentSvc  domain.Service
	merchantSvc *merchantservice.Service
	auditSvc    auditdomain.Service
	limiter     *rateLimiter
}

func NewEngine(cfg config.Config, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	engine.Use(metrics.GinMiddleware(httpMetrics))
	return engine
}

func NewServer(p Params, engine *gin.Engine) *Server {
	return &Server{
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("server"),
		engine:      engine,
		paymentSvc:  p.PaymentSvc,
		merchantSvc: p.MerchantSvc,
		auditSvc:    p.AuditSvc,
		limiter:     newRateLimiter(120, time.Minute),
	}
}

func (s *Server) RegisterAPIRoutes() {
	s.engine.GET("/healthz", s.Healthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Channel webhooks authenticate by signature, not API key.
	s.engine.POST("/api/v1/notifications/:channel", s.HandleNotification)

	api := s.engine.Group("/api/v1")
	api.Use(s.APIKeyRequired())
	{
		api.GET("/payment_channels", s.ListChannels)

		api.POST("/payments", s.CreatePayment)
		api.GET("/payments/:order_id", s.GetPayment)
		api.GET("/payments/:order_id/status", s.GetPaymentStatus)
		api.GET("/payments/:order_id/events", s.GetPaymentEvents)

		api.POST("/refunds", s.CreateRefund)
		api.GET("/refunds/:refund_id", s.GetRefund)
		api.GET("/refunds/:refund_id/status", s.GetRefundStatus)
	}

	if s.cfg.Env != "production" {
		s.engine.POST("/internal/test/cleanup", s.TestCleanup)
	}
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
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
