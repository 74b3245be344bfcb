package repository

import (
	"context"

	"github.com/fastygo/relational/domain"
)

type EventFilter struct {
	EntityID string
	Limit    int
	Offset   int
}

// EventLog retains relationship events indefinitely for audit.
type EventLog interface {
	Append(ctx context.Context, event domain.RelationshipEvent) error
	List(ctx context.Context, filter EventFilter) ([]domain.RelationshipEvent, error)
}

// CascadeJournal persists cascade lists so execution can resume after a failure.
type CascadeJournal interface {
	Save(ctx context.Context, batch *domain.CascadeBatch) error
	Get(ctx context.Context, id string) (*domain.CascadeBatch, error)
	ListPending(ctx context.Context, limit int) ([]domain.CascadeBatch, error)
}

// FrameworkRepository stores compliance frameworks keyed by entity id.
type FrameworkRepository interface {
	Get(ctx context.Context, entityID string) (*domain.AS9100DComplianceFramework, error)
	// Save writes framework only if the stored version equals expectedVersion
	// (0 for a framework that does not exist yet) and bumps framework.Version.
	// A mismatch returns domain.ErrVersionConflict.
	Save(ctx context.Context, framework *domain.AS9100DComplianceFramework, expectedVersion int64) error
}
