package sqlite

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
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Conn.ExecContext(ctx, query,
		eventLog.ID, eventLog.InstanceID, eventLog.Type, eventLog.Action, nullIfEmpty(eventLog.Payload),
		formatTime(eventLog.ProcessedAt), formatTime(eventLog.CreatedAt),
	)
	if err != nil {
		return model.EventLog{}, err
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
		WHERE instance_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.Conn.QueryContext(ctx, query, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eventLogs []model.EventLog
	for rows.Next() {
		var eventLog model.EventLog
		var processedAt, createdAt string

		if err := rows.Scan(
			&eventLog.ID, &eventLog.InstanceID, &eventLog.Type, &eventLog.Action, &eventLog.Payload, &processedAt, &createdAt,
		); err != nil {
			return nil, err
		}

		eventLog.ProcessedAt = parseTime(processedAt)
		eventLog.CreatedAt = parseTime(createdAt)
		eventLogs = append(eventLogs, eventLog)
	}

	return eventLogs, rows.Err()
}

func (r *eventLogRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Conn.ExecContext(ctx, `DELETE FROM event_logs WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
