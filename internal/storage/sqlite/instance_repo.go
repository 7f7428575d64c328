package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/open-apime/fleet/internal/storage/model"
)

type instanceRepo struct {
	db *DB
}

func NewInstanceRepository(db *DB) *instanceRepo {
	return &instanceRepo{db: db}
}

const upsertInstanceSQL = `
	INSERT INTO instances (id, connection_state, phone_number, display_name, messages_count, contacts_count, chats_count, health_score, created_at, last_seen, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		connection_state = excluded.connection_state,
		phone_number = excluded.phone_number,
		display_name = excluded.display_name,
		messages_count = excluded.messages_count,
		contacts_count = excluded.contacts_count,
		chats_count = excluded.chats_count,
		health_score = excluded.health_score,
		last_seen = excluded.last_seen,
		updated_at = excluded.updated_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertInstance(ctx context.Context, ex execer, inst model.Instance) error {
	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	_, err := ex.ExecContext(ctx, upsertInstanceSQL,
		inst.ID, inst.ConnectionState, nullIfEmpty(inst.PhoneNumber), nullIfEmpty(inst.DisplayName),
		inst.MessagesCount, inst.ContactsCount, inst.ChatsCount, inst.HealthScore,
		formatTime(inst.CreatedAt), formatTimeOrNil(inst.LastSeen), formatTime(now),
	)
	return err
}

func (r *instanceRepo) Upsert(ctx context.Context, inst model.Instance) error {
	return upsertInstance(ctx, r.db.Conn, inst)
}

func (r *instanceRepo) ReplaceAll(ctx context.Context, instances []model.Instance) error {
	tx, err := r.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: iniciar transação: %w", err)
	}
	defer tx.Rollback()

	if len(instances) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM instances`); err != nil {
			return err
		}
	} else {
		placeholders := make([]string, len(instances))
		args := make([]any, len(instances))
		for i, inst := range instances {
			placeholders[i] = "?"
			args[i] = inst.ID
		}
		query := `DELETE FROM instances WHERE id NOT IN (` + strings.Join(placeholders, ",") + `)`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	for _, inst := range instances {
		if err := upsertInstance(ctx, tx, inst); err != nil {
			return fmt.Errorf("sqlite: gravar %s: %w", inst.ID, err)
		}
	}

	return tx.Commit()
}

func (r *instanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	query := `
		SELECT id, connection_state, COALESCE(phone_number, ''), COALESCE(display_name, ''),
			messages_count, contacts_count, chats_count, health_score, created_at, last_seen, updated_at
		FROM instances
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []model.Instance
	for rows.Next() {
		var inst model.Instance
		var createdAt, updatedAt string
		var lastSeen sql.NullString

		if err := rows.Scan(
			&inst.ID, &inst.ConnectionState, &inst.PhoneNumber, &inst.DisplayName,
			&inst.MessagesCount, &inst.ContactsCount, &inst.ChatsCount, &inst.HealthScore,
			&createdAt, &lastSeen, &updatedAt,
		); err != nil {
			return nil, err
		}

		inst.CreatedAt = parseTime(createdAt)
		inst.UpdatedAt = parseTime(updatedAt)
		if lastSeen.Valid {
			inst.LastSeen = parseTime(lastSeen.String)
		}

		instances = append(instances, inst)
	}

	return instances, rows.Err()
}

func (r *instanceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}
