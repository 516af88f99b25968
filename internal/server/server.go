// Package server wires the HTTP surface. Handlers translate between JSON and
// the domain services and hold no business rules of their own.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cvforge/cvforge/internal/account"
	accountservice "github.com/cvforge/cvforge/internal/account/service"
	"github.com/cvforge/cvforge/internal/config"
	"github.com/cvforge/cvforge/internal/entitlement"
	"github.com/cvforge/cvforge/internal/freetier"
	freetierservice "github.com/cvforge/cvforge/internal/freetier/service"
	"github.com/cvforge/cvforge/internal/identity"
	"github.com/cvforge/cvforge/internal/observability"
	obslogger "github.com/cvforge/cvforge/internal/observability/logger"
	obsmetrics "github.com/cvforge/cvforge/internal/observability/metrics"
	obstracing "github.com/cvforge/cvforge/internal/observability/tracing"
	"github.com/cvforge/cvforge/internal/payment"
	paymentdomain "github.com/cvforge/cvforge/internal/payment/domain"
	"github.com/cvforge/cvforge/internal/payment/intent"
	"github.com/cvforge/cvforge/internal/payment/reconcile"
	"github.com/cvforge/cvforge/internal/ratelimit"
	"github.com/cvforge/cvforge/internal/subscription"
	subscriptiondomain "github.com/cvforge/cvforge/internal/subscription/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	identity.Module,
	account.Module,
	payment.Module,
	subscription.Module,
	entitlement.Module,
	freetier.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	db              *gorm.DB
	genID           *snowflake.Node
	accountSvc      *accountservice.Service
	intentSvc       *intent.Service
	reconcileSvc    *reconcile.Service
	entitlementSvc  *entitlement.Service
	freetierSvc     *freetierservice.Service
	subscriptionSvc subscriptiondomain.Service
	paymentRepo     paymentdomain.Repository
	cookies         *identity.CookieManager
	tokens          *identity.TokenManager
	intentLimiter   *ratelimit.IntentLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	AccountSvc      *accountservice.Service
	IntentSvc       *intent.Service
	ReconcileSvc    *reconcile.Service
	EntitlementSvc  *entitlement.Service
	FreetierSvc     *freetierservice.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentRepo     paymentdomain.Repository
	Cookies         *identity.CookieManager
	Tokens          *identity.TokenManager
	IntentLimiter   *ratelimit.IntentLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		accountSvc:      p.AccountSvc,
		intentSvc:       p.IntentSvc,
		reconcileSvc:    p.ReconcileSvc,
		entitlementSvc:  p.EntitlementSvc,
		freetierSvc:     p.FreetierSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentRepo:     p.PaymentRepo,
		cookies:         p.Cookies,
		tokens:          p.Tokens,
		intentLimiter:   p.IntentLimiter,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	api.Use(identity.Resolver(s.tokens, s.cookies))

	api.POST("/session/init", s.InitSession)

	auth := api.Group("/auth")
	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.Me)

	payments := api.Group("/payments")
	payments.POST("/create-intent", s.CreateIntent)
	payments.POST("/webhook", s.Webhook)
	payments.GET("/webhook", s.Webhook)
	payments.POST("/refresh", s.RefreshPayments)
	payments.GET("/status", s.PaymentStatus)
	payments.GET("/history", s.PaymentHistory)
	payments.GET("/public-key", s.ProcessorPublicKey)
	payments.GET("/:id", s.PaymentLookup)

	downloads := api.Group("/downloads")
	downloads.GET("/:product", s.DownloadGrant)
	downloads.POST("/:product", s.ConsumeDownload)

	subs := api.Group("/subscriptions")
	subs.GET("/status", s.SubscriptionStatus)
	subs.GET("/history", s.SubscriptionHistory)
	subs.POST("/cancel", s.CancelSubscription)

	api.POST("/questions/view", s.ViewQuestion)
	api.POST("/interviews/start", s.StartInterview)
	api.GET("/freetier/:feature", s.FreeTierStatus)
}

// requireIdentity returns the resolved identity or mints a fresh anonymous
// session, so first-time visitors get a working identity on any endpoint.
func (s *Server) requireIdentity(c *gin.Context) identity.Identity {
	if ident, ok := identity.FromContext(c); ok {
		return ident
	}
	sessionID := s.cookies.Ensure(c)
	ident := identity.ForSession(sessionID)
	identity.SetForRequest(c, ident)
	return ident
}
