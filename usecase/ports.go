package usecase

import (
	"context"

	"github.com/fastygo/relational/domain"
)

// CascadeProcessor derives and applies the follow-up writes of a relationship event.
type CascadeProcessor interface {
	ProcessEvent(ctx context.Context, event domain.RelationshipEvent) ([]domain.CascadeUpdate, error)
	ExecuteCascades(ctx context.Context, cascades []domain.CascadeUpdate) error
	// Handle derives, journals and executes the cascades of one event.
	Handle(ctx context.Context, event domain.RelationshipEvent) (*domain.CascadeBatch, error)
}

// TraceabilityValidator scores the traceability chain of an entity.
type TraceabilityValidator interface {
	ValidateTraceability(ctx context.Context, entityID string, entityType domain.EntityType) (*domain.TraceabilityValidation, error)
}

// EventPublisher forwards recorded relationship events to other services.
type EventPublisher interface {
	PublishRelationshipEvent(ctx context.Context, event domain.RelationshipEvent) error
}

// RelationshipRepair describes a bidirectional create whose mirror write did
// not land and must be retried.
type RelationshipRepair struct {
	SourceID         string                  `json:"sourceId"`
	SourceType       domain.EntityType       `json:"sourceType"`
	TargetID         string                  `json:"targetId"`
	TargetType       domain.EntityType       `json:"targetType"`
	RelationshipType domain.RelationshipType `json:"relationshipType"`
	Reason           string                  `json:"reason,omitempty"`
}

// RepairQueue persists repairs until a background processor re-runs them.
type RepairQueue interface {
	EnqueueRepair(ctx context.Context, repair RelationshipRepair) error
}

// ReassignHook decides where back-references of a detached target go when a
// relationship is deleted with the reassign strategy.
type ReassignHook interface {
	Reassign(ctx context.Context, source domain.EntityKey, relType domain.RelationshipType, target *domain.Entity) error
}
