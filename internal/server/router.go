package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/open-apime/fleet/internal/api/handler"
	"github.com/open-apime/fleet/internal/api/middleware"
)

type Options struct {
	Env             string
	Auth            middleware.AuthOption
	HealthHandler   *handler.HealthHandler
	InstanceHandler *handler.InstanceHandler
	PairingHandler  *handler.PairingHandler
	WebhookHandler  *handler.WebhookHandler
	RateLimit       middleware.RateLimitOption
	IPRateLimit     middleware.IPRateLimitOption

	// Metrics expõe /metrics com o registry padrão do prometheus.
	Metrics bool
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		MaxAge:       12 * time.Hour,
	}))

	if opts.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	ingress := router.Group("")
	ingress.Use(middleware.IPRateLimit(opts.IPRateLimit))
	opts.WebhookHandler.RegisterIngress(ingress)

	api := router.Group("/api")
	opts.HealthHandler.Register(api)

	protected := api.Group("")
	protected.Use(middleware.RateLimit(opts.RateLimit))
	protected.Use(middleware.AuthWithOptions(opts.Auth))

	opts.InstanceHandler.Register(protected)
	opts.PairingHandler.Register(protected)
	opts.WebhookHandler.Register(protected)

	return router
}
