package main

import (
	"context"
	"flag"
	"io/fs"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/open-apime/fleet/db"
	"github.com/open-apime/fleet/internal/config"
	"github.com/open-apime/fleet/internal/logger"
	"github.com/open-apime/fleet/internal/storage/migrate"
	"github.com/open-apime/fleet/internal/storage/postgres"
	"github.com/open-apime/fleet/internal/storage/sqlite"
)

func main() {
	// sem -dir as migrations embutidas no binário são usadas
	dir := flag.String("dir", "", "Diretório raiz com migrations/{sqlite,postgres} em disco")
	flag.Parse()

	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	var fsys fs.FS = db.Migrations
	if *dir != "" {
		fsys = os.DirFS(*dir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var applied []string
	switch cfg.Storage.Driver {
	case "sqlite", "":
		conn, err := sqlite.New(cfg.Storage.DataDir, logr)
		if err != nil {
			logr.Fatal("migrate: falha ao abrir SQLite", zap.Error(err))
		}
		defer conn.Close()
		applied, err = migrate.SQLite(ctx, conn.Conn, fsys, "migrations/sqlite", logr)
		if err != nil {
			logr.Fatal("migrate: erro ao aplicar migrations", zap.Error(err))
		}
	case "postgres":
		conn, err := postgres.New(cfg.DB, logr)
		if err != nil {
			logr.Fatal("migrate: falha ao conectar no PostgreSQL", zap.Error(err))
		}
		defer conn.Close()
		applied, err = migrate.Postgres(ctx, conn.Pool, fsys, "migrations/postgres", logr)
		if err != nil {
			logr.Fatal("migrate: erro ao aplicar migrations", zap.Error(err))
		}
	default:
		logr.Fatal("migrate: driver desconhecido", zap.String("driver", cfg.Storage.Driver))
	}

	logr.Info("migrate: concluído", zap.Strings("applied", applied))
}
