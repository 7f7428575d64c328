package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/open-apime/fleet/internal/api/handler"
	"github.com/open-apime/fleet/internal/api/middleware"
	"github.com/open-apime/fleet/internal/app"
	"github.com/open-apime/fleet/internal/classifier"
	"github.com/open-apime/fleet/internal/config"
	"github.com/open-apime/fleet/internal/logger"
	"github.com/open-apime/fleet/internal/metrics"
	"github.com/open-apime/fleet/internal/pairing"
	"github.com/open-apime/fleet/internal/provider/httpclient"
	"github.com/open-apime/fleet/internal/registry"
	"github.com/open-apime/fleet/internal/server"
	"github.com/open-apime/fleet/internal/storage"
	storage_redis "github.com/open-apime/fleet/internal/storage/redis"
	"github.com/open-apime/fleet/internal/webhook"
)

const monitorLockKey = "fleet:monitor:lock"

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	logr.Info("iniciando aplicação",
		zap.String("env", cfg.App.Env),
		zap.String("log_level", cfg.Log.Level),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Storage.Driver),
		zap.String("provider", cfg.Provider.BaseURL),
	)

	if cfg.Metrics.Enabled {
		metrics.Register(prometheus.DefaultRegisterer)
	}

	repos, err := storage.NewRepositories(cfg, logr)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := httpclient.New(httpclient.Options{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeouts: httpclient.Timeouts{
			List:       cfg.Provider.ListTimeout,
			Create:     cfg.Provider.CreateTimeout,
			Connect:    cfg.Provider.ConnectTimeout,
			Disconnect: cfg.Provider.DisconnectTimeout,
			Delete:     cfg.Provider.DeleteTimeout,
			Send:       cfg.Provider.SendTimeout,
			Webhook:    cfg.Provider.WebhookTimeout,
		},
		Logger: logr.Named("provider"),
	})

	reg := registry.New(prov, registry.Options{
		Repo:       repos.Instance,
		Logger:     logr,
		GroupSize:  cfg.Batch.CreateGroupSize,
		GroupPause: cfg.Batch.CreatePause,
	})
	if n, err := reg.Restore(ctx); err != nil {
		logr.Warn("erro ao restaurar instâncias", zap.Error(err))
	} else {
		logr.Info("instâncias restauradas", zap.Int("total", n))
	}

	var monitor *registry.Monitor
	if cfg.Monitor.Enabled {
		opts := registry.MonitorOptions{Interval: cfg.Monitor.Interval, Logger: logr}
		if repos.RedisClient != nil {
			opts.Lock = storage_redis.NewLock(repos.RedisClient, monitorLockKey, cfg.Monitor.LockTTL)
		}
		monitor = registry.NewMonitor(reg, opts)
		monitor.Start(ctx)
	} else {
		logr.Info("monitor desativado via configuração")
	}

	issuer := pairing.New(prov, reg, pairing.Options{
		TTL:           cfg.Pairing.TTL,
		RefreshLead:   cfg.Pairing.RefreshLead,
		SweepInterval: cfg.Pairing.SweepInterval,
		CreateDelay:   cfg.Pairing.CreateDelay,
		Logger:        logr,
	})
	issuer.Start(ctx)

	webhookRouter := webhook.NewRouter(prov, reg, webhook.Options{
		Classifier:  classifier.NewKeywords(),
		Seen:        repos.SeenMessages,
		EventLog:    repos.EventLog,
		Pairing:     issuer,
		Queue:       repos.WebhookQueue,
		CallbackURL: cfg.Webhook.CallbackOrDefault(cfg.App.BaseURL),
		Events:      cfg.Webhook.Events,
		PruneAfter:  cfg.Webhook.PruneAfter,
		Logger:      logr,
	})
	webhookRouter.Start(ctx)

	webhookPool := webhook.NewPool(repos.WebhookQueue, webhookRouter, logr, cfg.Webhook.Workers)
	webhookPool.Start(ctx)

	go func() {
		res := webhookRouter.ConfigureWebhooksAfterSync(ctx)
		if res.Failed > 0 {
			logr.Warn("webhooks não configurados em parte das instâncias", zap.Int("failed", res.Failed))
		}
	}()

	router := server.NewRouter(server.Options{
		Env:             cfg.App.Env,
		Auth:            middleware.AuthOption{JWTSecret: cfg.JWT.Secret, APIKey: cfg.JWT.APIKey},
		HealthHandler:   handler.NewHealthHandler(reg, 3*cfg.Monitor.Interval, nil),
		InstanceHandler: handler.NewInstanceHandler(reg, repos.EventLog, cfg.Monitor.SyncOnRead, logr),
		PairingHandler:  handler.NewPairingHandler(issuer, logr),
		WebhookHandler: handler.NewWebhookHandler(webhookRouter, repos.WebhookQueue, handler.WebhookHandlerOptions{
			Secret: cfg.Webhook.Secret,
			Logger: logr,
		}),
		RateLimit: middleware.RateLimitOption{
			Enabled:  cfg.RateLimit.Enabled,
			Requests: cfg.RateLimit.Requests,
			Window:   time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			Prefix:   cfg.RateLimit.Prefix,
			Limiter:  repos.RateLimiter,
			Logger:   logr,
		},
		IPRateLimit: middleware.IPRateLimitOption{
			Enabled:        cfg.IPRateLimit.Enabled,
			Requests:       cfg.IPRateLimit.Requests,
			Window:         time.Duration(cfg.IPRateLimit.WindowSeconds) * time.Second,
			Limiter:        repos.RateLimiter,
			Logger:         logr,
			SkipPrivateIPs: cfg.IPRateLimit.SkipPrivateIPs,
		},
		Metrics: cfg.Metrics.Enabled,
	})

	application := app.New(cfg, logr, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logr.Info("sinal de encerramento recebido")
	case err := <-errCh:
		if err != nil {
			logr.Error("servidor finalizado com erro", zap.Error(err))
		}
	}

	logr.Info("iniciando shutdown graceful")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logr.Error("erro ao encerrar servidor", zap.Error(err))
	}

	webhookPool.Stop()
	webhookRouter.Stop()
	issuer.Stop()
	if monitor != nil {
		monitor.Stop()
	}
	if err := reg.SaveSnapshot(shutdownCtx); err != nil {
		logr.Warn("erro ao gravar snapshot final", zap.Error(err))
	}
	repos.Close()
	logr.Info("aplicação encerrada")
}
