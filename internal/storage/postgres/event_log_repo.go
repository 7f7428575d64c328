package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-apime/fleet/internal/storage/model"
)

type eventLogRepo struct {
	db *DB
}

func NewEventLogRepository(db *DB) *eventLogRepo {
	return &eventLogRepo{db: db}
}

func (r *eventLogRepo) Create(ctx context.Context, eventLog model.EventLog) (model.EventLog, error) {
	if eventLog.ID == "" {
		eventLog.ID = uuid.New().String()
	}
	if eventLog.CreatedAt.IsZero() {
		eventLog.CreatedAt = time.Now()
	}
	if eventLog.ProcessedAt.IsZero() {
		eventLog.ProcessedAt = eventLog.CreatedAt
	}

	query := `
		INSERT INTO event_logs (id, instance_id, type, action, payload, processed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		eventLog.ID, eventLog.InstanceID, eventLog.Type, eventLog.Action, nullIfEmpty(eventLog.Payload),
		eventLog.ProcessedAt, eventLog.CreatedAt,
	)
	if err != nil {
		return model.EventLog{}, mapError(err)
	}
	return eventLog, nil
}

func (r *eventLogRepo) ListByInstance(ctx context.Context, instanceID string, limit int) ([]model.EventLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, instance_id, type, action, COALESCE(payload, ''), processed_at, created_at
		FROM event_logs
		WHERE instance_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eventLogs []model.EventLog
	for rows.Next() {
		var eventLog model.EventLog
		if err := rows.Scan(
			&eventLog.ID, &eventLog.InstanceID, &eventLog.Type, &eventLog.Action, &eventLog.Payload, &eventLog.ProcessedAt, &eventLog.CreatedAt,
		); err != nil {
			return nil, err
		}
		eventLogs = append(eventLogs, eventLog)
	}

	return eventLogs, rows.Err()
}

func (r *eventLogRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM event_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
