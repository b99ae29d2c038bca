package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/loadpass/internal/auth/domain"
	catalogdomain "github.com/smallbiznis/loadpass/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/loadpass/internal/checkout/domain"
	"github.com/smallbiznis/loadpass/internal/config"
	creditdomain "github.com/smallbiznis/loadpass/internal/credit/domain"
	customerdomain "github.com/smallbiznis/loadpass/internal/customer/domain"
	"github.com/smallbiznis/loadpass/internal/observability"
	obsmiddleware "github.com/smallbiznis/loadpass/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/loadpass/internal/observability/metrics"
	obstracing "github.com/smallbiznis/loadpass/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/loadpass/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

const shutdownTimeout = 10 * time.Second

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.OPTIONS("/*path", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	log = log.Named("http.server")
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	verifier    authdomain.Verifier
	catalogSvc  catalogdomain.Service
	checkoutSvc checkoutdomain.Service
	customerSvc customerdomain.Service
	creditSvc   creditdomain.Service
	paymentSvc  paymentdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Verifier    authdomain.Verifier
	CatalogSvc  catalogdomain.Service
	CheckoutSvc checkoutdomain.Service
	CustomerSvc customerdomain.Service
	CreditSvc   creditdomain.Service
	PaymentSvc  paymentdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.handlers"),
		verifier:    p.Verifier,
		catalogSvc:  p.CatalogSvc,
		checkoutSvc: p.CheckoutSvc,
		customerSvc: p.CustomerSvc,
		creditSvc:   p.CreditSvc,
		paymentSvc:  p.PaymentSvc,
	}

	s.registerFunctionRoutes()
	s.registerAPIRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerFunctionRoutes keeps the paths the storefront and database triggers already call.
func (s *Server) registerFunctionRoutes() {
	fn := s.engine.Group("/functions/v1")

	fn.POST("/create-checkout-link", s.AuthRequired(), s.CreateCheckoutLink)
	fn.POST("/create-squareup-customer", s.CreateSquareCustomer)
	fn.POST("/square-payment-callback", s.SquarePaymentCallback)
	fn.POST("/use-load", s.UseLoad)
	fn.GET("/packages", s.ListPackages)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}
