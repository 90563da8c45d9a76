package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/futorumeshi/internal/auth"
	authdomain "github.com/smallbiznis/futorumeshi/internal/auth/domain"
	"github.com/smallbiznis/futorumeshi/internal/auth/session"
	"github.com/smallbiznis/futorumeshi/internal/cache"
	"github.com/smallbiznis/futorumeshi/internal/config"
	"github.com/smallbiznis/futorumeshi/internal/delivery"
	deliverydomain "github.com/smallbiznis/futorumeshi/internal/delivery/domain"
	"github.com/smallbiznis/futorumeshi/internal/notify"
	"github.com/smallbiznis/futorumeshi/internal/observability"
	obsmiddleware "github.com/smallbiznis/futorumeshi/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/futorumeshi/internal/observability/metrics"
	obstracing "github.com/smallbiznis/futorumeshi/internal/observability/tracing"
	"github.com/smallbiznis/futorumeshi/internal/order"
	orderdomain "github.com/smallbiznis/futorumeshi/internal/order/domain"
	"github.com/smallbiznis/futorumeshi/internal/payment"
	paymentdomain "github.com/smallbiznis/futorumeshi/internal/payment/domain"
	"github.com/smallbiznis/futorumeshi/internal/providers/slack"
	"github.com/smallbiznis/futorumeshi/internal/ratelimit"
	"github.com/smallbiznis/futorumeshi/internal/referral"
	referraldomain "github.com/smallbiznis/futorumeshi/internal/referral/domain"
	"github.com/smallbiznis/futorumeshi/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/futorumeshi/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	cache.Module,
	ratelimit.Module,
	slack.Module,
	notify.Module,
	auth.Module,
	delivery.Module,
	order.Module,
	subscription.Module,
	referral.Module,
	payment.Module,
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
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := NewEngine(obsCfg, httpMetrics)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-Id"},
			ExposeHeaders:    []string{"X-Request-Id", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	return r
}

func run(lc fx.Lifecycle, cfg config.Config, srv *Server, log *zap.Logger, shutdowner fx.Shutdowner) {
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", httpSrv.Addr))
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authsvc         authdomain.Service
	sessions        *session.Manager
	orderSvc        orderdomain.Service
	subscriptionSvc subscriptiondomain.Service
	deliverySvc     deliverydomain.Service
	referrerSvc     referraldomain.Service
	statsSvc        referraldomain.StatsService
	paymentSvc      paymentdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Authsvc         authdomain.Service
	Sessions        *session.Manager
	OrderSvc        orderdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	DeliverySvc     deliverydomain.Service
	ReferrerSvc     referraldomain.Service
	StatsSvc        referraldomain.StatsService
	PaymentSvc      paymentdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authsvc:         p.Authsvc,
		sessions:        p.Sessions,
		orderSvc:        p.OrderSvc,
		subscriptionSvc: p.SubscriptionSvc,
		deliverySvc:     p.DeliverySvc,
		referrerSvc:     p.ReferrerSvc,
		statsSvc:        p.StatsSvc,
		paymentSvc:      p.PaymentSvc,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/plans", s.ListPlans)

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminRequired())

	// -------- Referrers --------
	admin.GET("/referrers", s.ListReferrers)
	admin.POST("/referrers", s.CreateReferrer)
	admin.GET("/referrers/stats", s.ListReferrerStats)
	admin.GET("/referrers/:code", s.GetReferrer)
	admin.PATCH("/referrers/:code", s.UpdateReferrer)
	admin.DELETE("/referrers/:code", s.DeleteReferrer)
	admin.GET("/referrers/:code/stats", s.GetReferrerStats)

	// -------- Orders --------
	admin.GET("/orders", s.ListOrders)

	// -------- Subscriptions --------
	admin.GET("/subscriptions", s.ListSubscriptions)
	admin.GET("/subscriptions/:id", s.GetSubscriptionByID)
	admin.GET("/subscriptions/:id/deliveries", s.ListSubscriptionDeliveries)
	admin.POST("/subscriptions/:id/cancel", s.CancelSubscription)

	// -------- Deliveries --------
	admin.GET("/deliveries/upcoming", s.ListUpcomingDeliveries)
	admin.GET("/deliveries/preview", s.PreviewDeliveries)
	admin.POST("/deliveries/:id/ship", s.MarkDeliveryShipped)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
