package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a Postgres-backed append-only EventLog.
func NewEventRepository(pool *pgxpool.Pool) repository.EventLog {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) Append(ctx context.Context, event domain.RelationshipEvent) error {
	if event.ID == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO relationship_events (id, event_type, source_id, source_type, target_id, target_type, relationship_type, payload, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
	ON CONFLICT (id) DO NOTHING
	`

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, query,
		event.ID,
		string(event.EventType),
		event.SourceEntity.ID,
		string(event.SourceEntity.Type),
		event.TargetEntity.ID,
		string(event.TargetEntity.Type),
		string(event.RelationshipType),
		payload,
		nullTime(event.Timestamp),
	)
	return err
}

func (r *eventRepository) List(ctx context.Context, filter repository.EventFilter) ([]domain.RelationshipEvent, error) {
	const query = `
	SELECT payload
	FROM relationship_events
	WHERE ($1 = '' OR source_id = $1 OR target_id = $1)
	ORDER BY occurred_at ASC, seq ASC
	LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, filter.EntityID, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.RelationshipEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var event domain.RelationshipEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
