package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/mercato/internal/account"
	accountdomain "github.com/smallbiznis/mercato/internal/account/domain"
	"github.com/smallbiznis/mercato/internal/checkout"
	checkoutdomain "github.com/smallbiznis/mercato/internal/checkout/domain"
	"github.com/smallbiznis/mercato/internal/config"
	"github.com/smallbiznis/mercato/internal/observability"
	obsmiddleware "github.com/smallbiznis/mercato/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mercato/internal/observability/metrics"
	obstracing "github.com/smallbiznis/mercato/internal/observability/tracing"
	"github.com/smallbiznis/mercato/internal/order"
	orderdomain "github.com/smallbiznis/mercato/internal/order/domain"
	stripeprovider "github.com/smallbiznis/mercato/internal/providers/stripe"
	"github.com/smallbiznis/mercato/internal/webhook"
	webhookdomain "github.com/smallbiznis/mercato/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	stripeprovider.Module,
	account.Module,
	order.Module,
	checkout.Module,
	webhook.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	accountSvc  accountdomain.Service
	orderSvc    orderdomain.Service
	checkoutSvc checkoutdomain.Service
	webhookSvc  webhookdomain.Service
	verifier    stripeprovider.Verifier
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	AccountSvc  accountdomain.Service
	OrderSvc    orderdomain.Service
	CheckoutSvc checkoutdomain.Service
	WebhookSvc  webhookdomain.Service
	Verifier    stripeprovider.Verifier
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		accountSvc:  p.AccountSvc,
		orderSvc:    p.OrderSvc,
		checkoutSvc: p.CheckoutSvc,
		webhookSvc:  p.WebhookSvc,
		verifier:    p.Verifier,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)

	api := s.engine.Group("/api/v1")
	{
		api.POST("/accounts", s.CreateAccount)
		api.GET("/accounts", s.ListAccounts)
		api.GET("/accounts/:id", s.GetAccount)
		api.POST("/accounts/:id/onboarding_link", s.CreateOnboardingLink)

		api.POST("/checkout/sessions", s.CreateCheckoutSession)

		api.GET("/orders", s.ListOrders)
		api.GET("/orders/:id", s.GetOrder)
		api.GET("/orders/:id/refunds", s.ListOrderRefunds)
	}
}
