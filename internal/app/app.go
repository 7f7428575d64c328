// Package app controla o ciclo de vida do servidor HTTP.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/open-apime/fleet/internal/config"
)

type App struct {
	server *http.Server
	log    *zap.Logger
}

func New(cfg config.Config, log *zap.Logger, handler http.Handler) *App {
	return &App{
		server: &http.Server{
			Addr:              net.JoinHostPort("", cfg.App.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}
}

// Run bloqueia até o servidor parar. Shutdown faz Run devolver nil.
func (a *App) Run(ctx context.Context) error {
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }
	a.log.Info("servidor HTTP escutando", zap.String("addr", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
