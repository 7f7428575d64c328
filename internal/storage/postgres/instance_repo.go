package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

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
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	ON CONFLICT (id) DO UPDATE SET
		connection_state = EXCLUDED.connection_state,
		phone_number = EXCLUDED.phone_number,
		display_name = EXCLUDED.display_name,
		messages_count = EXCLUDED.messages_count,
		contacts_count = EXCLUDED.contacts_count,
		chats_count = EXCLUDED.chats_count,
		health_score = EXCLUDED.health_score,
		last_seen = EXCLUDED.last_seen,
		updated_at = NOW()
`

func upsertArgs(inst model.Instance) []any {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}
	return []any{
		inst.ID, inst.ConnectionState, nullIfEmpty(inst.PhoneNumber), nullIfEmpty(inst.DisplayName),
		inst.MessagesCount, inst.ContactsCount, inst.ChatsCount, inst.HealthScore,
		inst.CreatedAt, nullIfZero(inst.LastSeen),
	}
}

func (r *instanceRepo) Upsert(ctx context.Context, inst model.Instance) error {
	_, err := r.db.Pool.Exec(ctx, upsertInstanceSQL, upsertArgs(inst)...)
	return err
}

// ReplaceAll usa um pgx.Batch dentro da transação para gravar o snapshot em
// uma única ida ao banco.
func (r *instanceRepo) ReplaceAll(ctx context.Context, instances []model.Instance) error {
	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}

	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM instances WHERE NOT (id = ANY($1))`, ids); err != nil {
			return fmt.Errorf("postgres: remover ausentes: %w", err)
		}

		batch := &pgx.Batch{}
		for _, inst := range instances {
			batch.Queue(upsertInstanceSQL, upsertArgs(inst)...)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (r *instanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	query := `
		SELECT id, connection_state, COALESCE(phone_number, ''), COALESCE(display_name, ''),
			messages_count, contacts_count, chats_count, health_score, created_at, last_seen, updated_at
		FROM instances
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []model.Instance
	for rows.Next() {
		var inst model.Instance
		var lastSeen *time.Time
		if err := rows.Scan(
			&inst.ID, &inst.ConnectionState, &inst.PhoneNumber, &inst.DisplayName,
			&inst.MessagesCount, &inst.ContactsCount, &inst.ChatsCount, &inst.HealthScore,
			&inst.CreatedAt, &lastSeen, &inst.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if lastSeen != nil {
			inst.LastSeen = *lastSeen
		}
		instances = append(instances, inst)
	}

	return instances, rows.Err()
}

func (r *instanceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
