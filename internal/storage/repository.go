package storage

import (
	"context"
	"time"

	"github.com/open-apime/fleet/internal/storage/model"
)

var ErrNotFound = model.ErrNotFound

type InstanceRepository interface {
	Upsert(ctx context.Context, instance model.Instance) error
	// ReplaceAll grava o snapshot completo e remove as linhas ausentes dele.
	ReplaceAll(ctx context.Context, instances []model.Instance) error
	List(ctx context.Context) ([]model.Instance, error)
	Delete(ctx context.Context, id string) error
}

type EventLogRepository interface {
	Create(ctx context.Context, eventLog model.EventLog) (model.EventLog, error)
	ListByInstance(ctx context.Context, instanceID string, limit int) ([]model.EventLog, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
