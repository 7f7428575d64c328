package postgres

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/open-apime/fleet/internal/storage/model"
)

var ErrNotFound = model.ErrNotFound

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nullIfZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
