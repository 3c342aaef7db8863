package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/mediavault/internal/authorization"
	"github.com/smallbiznis/mediavault/internal/config"
	mediadomain "github.com/smallbiznis/mediavault/internal/media/domain"
	"github.com/smallbiznis/mediavault/internal/observability"
	obsmiddleware "github.com/smallbiznis/mediavault/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mediavault/internal/observability/metrics"
	obstracing "github.com/smallbiznis/mediavault/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/mediavault/internal/payment/domain"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	quotadomain "github.com/smallbiznis/mediavault/internal/quota/domain"
	"github.com/smallbiznis/mediavault/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/mediavault/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authzSvc        authorization.Service
	planSvc         plandomain.Service
	usageSvc        usagedomain.Service
	quotaSvc        quotadomain.Service
	mediaSvc        mediadomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	webhookSvc      paymentdomain.WebhookService
	limiter         ratelimit.Limiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	PlanSvc         plandomain.Service
	UsageSvc        usagedomain.Service
	QuotaSvc        quotadomain.Service
	MediaSvc        mediadomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	WebhookSvc      paymentdomain.WebhookService
	Limiter         ratelimit.Limiter   `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.handler"),
		authzSvc:        p.AuthzSvc,
		planSvc:         p.PlanSvc,
		usageSvc:        p.UsageSvc,
		quotaSvc:        p.QuotaSvc,
		mediaSvc:        p.MediaSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		webhookSvc:      p.WebhookSvc,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerPublicRoutes()
	svc.registerUserRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	s.engine.GET("/plans", s.ListPlans)

	// Provider-to-server; authenticated by the HMAC signature instead of a token.
	s.engine.POST("/payment/webhook", s.HandlePaymentWebhook)
}

func (s *Server) registerUserRoutes() {
	payment := s.engine.Group("/payment", s.AuthRequired())
	{
		payment.POST("/initiate", s.RateLimit(ratelimit.EndpointPaymentInitiate), s.InitiatePayment)
		payment.GET("/:id", s.GetPayment)
		payment.GET("/:id/receipt", s.GetPaymentReceipt)
	}

	usage := s.engine.Group("/usage", s.AuthRequired())
	{
		usage.POST("/update", s.RateLimit(ratelimit.EndpointUsageUpdate), s.UpdateUsage)
		usage.POST("/authorize", s.AuthorizeUsage)
		usage.GET("/current", s.authorizeAction(authorization.ObjectUsage, authorization.ActionUsageView), s.GetCurrentUsage)
		usage.GET("/analytics", s.authorizeAction(authorization.ObjectUsage, authorization.ActionUsageView), s.GetUsageAnalytics)
	}

	subscription := s.engine.Group("/subscription", s.AuthRequired())
	{
		subscription.GET("", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscription)
		subscription.POST("/cancel", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired())

	admin.GET("/payments", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListAdminPayments)
	admin.POST("/payments/:id/reactivate", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentReactivate), s.ReactivatePayment)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
