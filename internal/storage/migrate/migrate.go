// Package migrate aplica arquivos *.up.sql em ordem lexicográfica, registrando
// cada versão em schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SQLite aplica as migrations de dir (dentro de fsys) que ainda não rodaram.
func SQLite(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, log *zap.Logger) ([]string, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return nil, fmt.Errorf("preparar schema_migrations: %w", err)
	}

	return apply(ctx, fsys, dir, log, migrator{
		applied: func(ctx context.Context, version string) (bool, error) {
			var count int
			err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&count)
			return count > 0, err
		},
		exec: func(ctx context.Context, statements string) error {
			for _, stmt := range strings.Split(statements, ";") {
				stmt = strings.TrimSpace(stmt)
				if stmt == "" {
					continue
				}
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
		record: func(ctx context.Context, version string) error {
			_, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version)
			return err
		},
	})
}

func Postgres(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, log *zap.Logger) ([]string, error) {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("preparar schema_migrations: %w", err)
	}

	return apply(ctx, fsys, dir, log, migrator{
		applied: func(ctx context.Context, version string) (bool, error) {
			var exists bool
			err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists)
			return exists, err
		},
		exec: func(ctx context.Context, statements string) error {
			stmt := strings.TrimSpace(statements)
			if stmt == "" {
				return nil
			}
			ctxExec, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			_, err := pool.Exec(ctxExec, stmt)
			return err
		},
		record: func(ctx context.Context, version string) error {
			_, err := pool.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		},
	})
}

type migrator struct {
	applied func(ctx context.Context, version string) (bool, error)
	exec    func(ctx context.Context, statements string) error
	record  func(ctx context.Context, version string) error
}

func apply(ctx context.Context, fsys fs.FS, dir string, log *zap.Logger, m migrator) ([]string, error) {
	files, err := listSQLFiles(fsys, dir, ".up.sql")
	if err != nil {
		return nil, fmt.Errorf("listar migrations: %w", err)
	}
	if len(files) == 0 {
		log.Warn("migrate: nenhum arquivo .up.sql encontrado", zap.String("dir", dir))
		return nil, nil
	}

	var done []string
	for _, file := range files {
		version := path.Base(file)
		ok, err := m.applied(ctx, version)
		if err != nil {
			return done, fmt.Errorf("verificar %s: %w", version, err)
		}
		if ok {
			continue
		}

		log.Info("migrate: aplicando", zap.String("version", version))
		stmt, err := fs.ReadFile(fsys, file)
		if err != nil {
			return done, fmt.Errorf("ler %s: %w", version, err)
		}
		if err := m.exec(ctx, string(stmt)); err != nil {
			return done, fmt.Errorf("executar %s: %w", version, err)
		}
		if err := m.record(ctx, version); err != nil {
			return done, fmt.Errorf("registrar %s: %w", version, err)
		}
		done = append(done, version)
	}
	return done, nil
}

func listSQLFiles(fsys fs.FS, dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		files = append(files, path.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
