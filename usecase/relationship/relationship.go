// Package relationship mutates the entity graph. It keeps bidirectional
// references symmetric across two non-transactional document writes, emits a
// relationship event per mutation and hands events to the cascade processor.
package relationship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/relational/domain"
	appLogger "github.com/fastygo/relational/pkg/logger"
	"github.com/fastygo/relational/pkg/metrics"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/usecase"
)

const defaultMaxDepth = 10

type UseCase struct {
	store     repository.EntityStore
	cascades  usecase.CascadeProcessor
	events    repository.EventLog
	publisher usecase.EventPublisher
	repairs   usecase.RepairQueue
	reassign  usecase.ReassignHook
	retries   int
	maxDepth  int
	now       func() time.Time
	logger    *zap.Logger
}

// Option customizes a UseCase.
type Option func(*UseCase)

// WithEventLog records every emitted event.
func WithEventLog(events repository.EventLog) Option {
	return func(uc *UseCase) { uc.events = events }
}

// WithPublisher forwards every recorded event.
func WithPublisher(publisher usecase.EventPublisher) Option {
	return func(uc *UseCase) { uc.publisher = publisher }
}

// WithRepairQueue enqueues half-applied bidirectional creates for retry.
func WithRepairQueue(repairs usecase.RepairQueue) Option {
	return func(uc *UseCase) { uc.repairs = repairs }
}

// WithReassignHook enables the reassign cleanup strategy.
func WithReassignHook(hook usecase.ReassignHook) Option {
	return func(uc *UseCase) { uc.reassign = hook }
}

// WithConflictRetries bounds read-modify-write retries per document.
func WithConflictRetries(n int) Option {
	return func(uc *UseCase) { uc.retries = n }
}

// WithMaxDepth bounds cascade-delete recursion.
func WithMaxDepth(depth int) Option {
	return func(uc *UseCase) {
		if depth > 0 {
			uc.maxDepth = depth
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func New(store repository.EntityStore, cascades usecase.CascadeProcessor, logger *zap.Logger, opts ...Option) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	uc := &UseCase{
		store:    store,
		cascades: cascades,
		retries:  3,
		maxDepth: defaultMaxDepth,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Metadata overrides the display data of a new reference.
type Metadata struct {
	DisplayName string
	TriggeredBy string
	// Retrying marks a call made by the repair processor. A half-applied
	// write is then returned without being enqueued again.
	Retrying bool
}

// ReferenceUpdate is a partial update of a reference's metadata.
type ReferenceUpdate struct {
	DisplayName *string
	IsActive    *bool
	TriggeredBy string
}

// CreateRelationship appends source.relationships[relType] -> target and, for
// bidirectional types, the mirror reference on target. Re-running it after a
// partial failure only performs the missing half. DuplicateReference is
// returned only when both halves already exist.
func (uc *UseCase) CreateRelationship(ctx context.Context, source, target domain.EntityKey, relType domain.RelationshipType, meta *Metadata) error {
	spec, err := resolve(source.Type, relType, target.Type)
	if err != nil {
		return err
	}
	sourceCollection, err := source.Type.Collection()
	if err != nil {
		return err
	}
	targetCollection, err := target.Type.Collection()
	if err != nil {
		return err
	}

	src, err := uc.store.Get(ctx, sourceCollection, source.ID)
	if err != nil {
		return err
	}
	tgt, err := uc.store.Get(ctx, targetCollection, target.ID)
	if err != nil {
		return err
	}

	sourceHas := src.Relationships.Has(relType, tgt.ID)
	targetHas := spec.Bidirectional() && tgt.Relationships.Has(spec.Reverse, src.ID)
	if sourceHas && (!spec.Bidirectional() || targetHas) {
		return fmt.Errorf("%s.%s -> %s: %w", src.ID, relType, tgt.ID, domain.ErrDuplicateReference)
	}

	displayName := tgt.DisplayName()
	var triggeredBy string
	var retrying bool
	if meta != nil {
		if meta.DisplayName != "" {
			displayName = meta.DisplayName
		}
		triggeredBy = meta.TriggeredBy
		retrying = meta.Retrying
	}

	if !sourceHas {
		ref, err := spec.NewReference(tgt.ID, displayName, uc.now())
		if err != nil {
			return err
		}
		src, err = uc.mutate(ctx, sourceCollection, src.ID, triggeredBy, func(e *domain.Entity) (bool, error) {
			return ensureRelationships(e).Add(relType, ref.Clone()), nil
		})
		if err != nil {
			metrics.RelationshipMutations.WithLabelValues(string(domain.EventCreate), "failed").Inc()
			return err
		}
	}

	if spec.Bidirectional() && !targetHas {
		reverseSpec, ok := spec.ReverseSpec()
		if !ok {
			return fmt.Errorf("%s.%s has no mirror slot: %w", spec.Source, spec.Reverse, domain.ErrUnknownRelationship)
		}
		mirror, err := reverseSpec.NewReference(src.ID, src.DisplayName(), uc.now())
		if err != nil {
			return err
		}
		tgt, err = uc.mutate(ctx, targetCollection, tgt.ID, triggeredBy, func(e *domain.Entity) (bool, error) {
			return ensureRelationships(e).Add(spec.Reverse, mirror.Clone()), nil
		})
		if err != nil {
			uc.halfApplied(ctx, source, target, relType, err, !retrying)
			return err
		}
	}

	ref, _, _ := src.Relationships.Find(relType, tgt.ID)
	event := uc.newEvent(domain.EventCreate, src, tgt, relType, ref, triggeredBy)
	event.CascadeRules = ref.Cascade
	metrics.RelationshipMutations.WithLabelValues(string(domain.EventCreate), "ok").Inc()
	uc.logger.Debug("relationship created",
		zap.String("source_id", src.ID),
		zap.String("relationship_type", string(relType)),
		zap.String("target_id", tgt.ID),
		zap.Bool("repaired", sourceHas || targetHas),
	)
	return uc.emit(ctx, event, true)
}

// UpdateRelationship merges updates into the reference stored under
// source.relationships[relType] for targetID. When cascadeRules is supplied
// the reference adopts them and the update event is handed to the cascade
// processor.
func (uc *UseCase) UpdateRelationship(ctx context.Context, source domain.EntityKey, relType domain.RelationshipType, targetID string, updates ReferenceUpdate, cascadeRules *domain.CascadeRules) error {
	if _, err := domain.LookupRelationship(source.Type, relType); err != nil {
		return err
	}
	sourceCollection, err := source.Type.Collection()
	if err != nil {
		return err
	}

	var updated domain.Reference
	src, err := uc.mutate(ctx, sourceCollection, source.ID, updates.TriggeredBy, func(e *domain.Entity) (bool, error) {
		ref, _, ok := e.Relationships.Find(relType, targetID)
		if !ok {
			return false, fmt.Errorf("%s.%s -> %s: %w", e.ID, relType, targetID, domain.ErrRelationshipNotFound)
		}
		if updates.DisplayName != nil {
			ref.Metadata.DisplayName = *updates.DisplayName
		}
		if updates.IsActive != nil {
			ref.Metadata.IsActive = *updates.IsActive
		}
		if cascadeRules != nil {
			rules := *cascadeRules
			ref.Cascade = &rules
		}
		ref.Metadata.LastUpdated = uc.now()
		e.Relationships.Replace(relType, ref)
		updated = ref.Clone()
		return true, nil
	})
	if err != nil {
		return err
	}

	targetType, err := domain.EntityTypeForCollection(updated.Collection)
	if err != nil {
		return err
	}
	target := domain.EventEntity{
		ID:          updated.ID,
		Type:        targetType,
		Collection:  updated.Collection,
		DisplayName: updated.Metadata.DisplayName,
	}
	event := domain.RelationshipEvent{
		ID:               uuid.NewString(),
		EventType:        domain.EventUpdate,
		SourceEntity:     domain.EventEntityOf(src),
		TargetEntity:     target,
		RelationshipType: relType,
		Relationship:     updated,
		Timestamp:        uc.now(),
		TriggeredBy:      updates.TriggeredBy,
		CascadeRules:     cascadeRules,
	}
	metrics.RelationshipMutations.WithLabelValues(string(domain.EventUpdate), "ok").Inc()
	return uc.emit(ctx, event, cascadeRules != nil)
}

// DeleteRelationship removes source.relationships[relType] -> targetID and
// then applies the cleanup strategy to the detached target: orphan leaves its
// mirror for the next integrity pass, cascade deletes it along its configured
// cascade rules, reassign hands it to the reassign hook.
func (uc *UseCase) DeleteRelationship(ctx context.Context, source domain.EntityKey, relType domain.RelationshipType, targetID string, strategy domain.CleanupStrategy, triggeredBy string) error {
	strategy, err := domain.ParseCleanupStrategy(string(strategy))
	if err != nil {
		return err
	}
	if strategy == domain.CleanupReassign && uc.reassign == nil {
		return domain.ErrReassignUnavailable
	}
	spec, err := domain.LookupRelationship(source.Type, relType)
	if err != nil {
		return err
	}
	sourceCollection, err := source.Type.Collection()
	if err != nil {
		return err
	}
	targetCollection, err := spec.Target.Collection()
	if err != nil {
		return err
	}

	var removed domain.Reference
	src, err := uc.mutate(ctx, sourceCollection, source.ID, triggeredBy, func(e *domain.Entity) (bool, error) {
		ref, ok := e.Relationships.Remove(relType, targetID)
		if !ok {
			return false, fmt.Errorf("%s.%s -> %s: %w", e.ID, relType, targetID, domain.ErrRelationshipNotFound)
		}
		removed = ref
		return true, nil
	})
	if err != nil {
		return err
	}

	target := domain.EventEntity{
		ID:          targetID,
		Type:        spec.Target,
		Collection:  targetCollection,
		DisplayName: removed.Metadata.DisplayName,
	}

	switch strategy {
	case domain.CleanupCascade:
		visited := map[string]bool{src.ID: true}
		if err := uc.cascadeDelete(ctx, domain.EntityKey{ID: targetID, Type: spec.Target}, visited, 1, triggeredBy); err != nil {
			return err
		}
	case domain.CleanupReassign:
		tgt, err := uc.store.Get(ctx, targetCollection, targetID)
		if err != nil {
			return err
		}
		if err := uc.reassign.Reassign(ctx, source, relType, tgt); err != nil {
			return err
		}
	case domain.CleanupOrphan:
		if spec.Bidirectional() {
			uc.logger.Debug("mirror reference left for integrity pass",
				zap.String("target_id", targetID),
				zap.String("field", string(spec.Reverse)),
			)
		}
	default:
		return fmt.Errorf("cleanup strategy %q: %w", strategy, domain.ErrInvalidPayload)
	}

	rules := spec.CascadeRules()
	event := domain.RelationshipEvent{
		ID:               uuid.NewString(),
		EventType:        domain.EventDelete,
		SourceEntity:     domain.EventEntityOf(src),
		TargetEntity:     target,
		RelationshipType: relType,
		Relationship:     removed,
		Timestamp:        uc.now(),
		TriggeredBy:      triggeredBy,
		CascadeRules:     &rules,
		Strategy:         strategy,
	}
	metrics.RelationshipMutations.WithLabelValues(string(domain.EventDelete), "ok").Inc()
	return uc.emit(ctx, event, true)
}

// cascadeDelete removes an entity and applies the cascade rules of each of its
// references. visited guards against cycles; depth is bounded by maxDepth.
func (uc *UseCase) cascadeDelete(ctx context.Context, key domain.EntityKey, visited map[string]bool, depth int, triggeredBy string) error {
	if visited[key.ID] {
		return nil
	}
	visited[key.ID] = true
	if depth > uc.maxDepth {
		appLogger.WithRequestID(ctx, uc.logger).Warn("cascade delete stopped at depth limit", appLogger.Entity("entity", key), zap.Int("depth", depth))
		return nil
	}

	collection, err := key.Type.Collection()
	if err != nil {
		return err
	}
	entity, err := uc.store.Get(ctx, collection, key.ID)
	if err != nil {
		if errors.Is(err, domain.ErrEntityNotFound) {
			return nil
		}
		return err
	}

	for _, relType := range entity.Relationships.Types() {
		spec, err := domain.LookupRelationship(entity.EntityType, relType)
		if err != nil {
			uc.logger.Warn("skipping unconfigured relationship during cascade delete",
				zap.String("entity_id", entity.ID),
				zap.String("relationship_type", string(relType)),
			)
			continue
		}
		policy := deletePolicy(spec)
		for _, ref := range entity.Relationships[relType] {
			if visited[ref.ID] {
				continue
			}
			other := domain.EntityKey{ID: ref.ID, Type: spec.Target}
			switch policy {
			case domain.CascadeDelete:
				if err := uc.cascadeDelete(ctx, other, visited, depth+1, triggeredBy); err != nil {
					return err
				}
			case domain.CascadeUpdateParent:
				if err := uc.detach(ctx, other, spec.Reverse, entity.ID, triggeredBy); err != nil {
					return err
				}
			}
		}
	}

	for attempt := 0; ; attempt++ {
		err = uc.store.Delete(ctx, collection, entity.ID, entity.Metadata.Version)
		if err == nil || errors.Is(err, domain.ErrEntityNotFound) {
			break
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= uc.retries {
			return err
		}
		metrics.VersionConflicts.Inc()
		if entity, err = uc.store.Get(ctx, collection, entity.ID); err != nil {
			if errors.Is(err, domain.ErrEntityNotFound) {
				break
			}
			return err
		}
	}
	uc.logger.Debug("entity deleted by cascade", appLogger.Entity("entity", key), zap.Int("depth", depth))
	return nil
}

// detach removes other.relationships[field] -> id if present.
func (uc *UseCase) detach(ctx context.Context, other domain.EntityKey, field domain.RelationshipType, id, triggeredBy string) error {
	if field == "" {
		return nil
	}
	collection, err := other.Type.Collection()
	if err != nil {
		return err
	}
	_, err = uc.mutate(ctx, collection, other.ID, triggeredBy, func(e *domain.Entity) (bool, error) {
		_, ok := e.Relationships.Remove(field, id)
		return ok, nil
	})
	if errors.Is(err, domain.ErrEntityNotFound) {
		return nil
	}
	return err
}

// deletePolicy is the policy applied to the other end of spec when the source
// entity is deleted. Child references follow their own onParentDelete; parent
// and peer references follow the mirror slot's onChildDelete.
func deletePolicy(spec domain.RelationshipSpec) domain.CascadePolicy {
	if spec.Direction == domain.DirectionChild {
		return spec.CascadeRules().OnParentDelete
	}
	reverse, ok := spec.ReverseSpec()
	if !ok {
		return domain.CascadeOrphan
	}
	return reverse.CascadeRules().OnChildDelete
}

func (uc *UseCase) mutate(ctx context.Context, collection, id, triggeredBy string, fn usecase.MutateFunc) (*domain.Entity, error) {
	return usecase.Mutate(ctx, uc.store, collection, id, uc.retries, func(e *domain.Entity) (bool, error) {
		changed, err := fn(e)
		if err != nil || !changed {
			return changed, err
		}
		e.Touch(uc.now())
		e.Metadata.UpdatedBy = triggeredBy
		return true, nil
	})
}

func (uc *UseCase) halfApplied(ctx context.Context, source, target domain.EntityKey, relType domain.RelationshipType, cause error, enqueue bool) {
	metrics.HalfAppliedWrites.Inc()
	appLogger.WithRequestID(ctx, uc.logger).Warn("bidirectional create half applied",
		appLogger.Entity("source", source),
		zap.String("relationship_type", string(relType)),
		appLogger.Entity("target", target),
		zap.Error(cause),
	)
	if uc.repairs == nil || !enqueue {
		return
	}
	repair := usecase.RelationshipRepair{
		SourceID:         source.ID,
		SourceType:       source.Type,
		TargetID:         target.ID,
		TargetType:       target.Type,
		RelationshipType: relType,
		Reason:           cause.Error(),
	}
	if err := uc.repairs.EnqueueRepair(ctx, repair); err != nil {
		uc.logger.Error("failed to enqueue relationship repair", zap.Error(err))
	}
}

func (uc *UseCase) newEvent(eventType domain.EventType, src, tgt *domain.Entity, relType domain.RelationshipType, ref domain.Reference, triggeredBy string) domain.RelationshipEvent {
	return domain.RelationshipEvent{
		ID:               uuid.NewString(),
		EventType:        eventType,
		SourceEntity:     domain.EventEntityOf(src),
		TargetEntity:     domain.EventEntityOf(tgt),
		RelationshipType: relType,
		Relationship:     ref.Clone(),
		Timestamp:        uc.now(),
		TriggeredBy:      triggeredBy,
	}
}

// emit records the event, publishes it and optionally runs its cascades.
// Publication is best effort; recording and cascade failures propagate.
func (uc *UseCase) emit(ctx context.Context, event domain.RelationshipEvent, runCascades bool) error {
	if uc.events != nil {
		if err := uc.events.Append(ctx, event); err != nil {
			return fmt.Errorf("record event %s: %w", event.ID, err)
		}
	}
	if uc.publisher != nil {
		if err := uc.publisher.PublishRelationshipEvent(ctx, event); err != nil {
			uc.logger.Warn("relationship event not published", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	if !runCascades || uc.cascades == nil {
		return nil
	}
	if _, err := uc.cascades.Handle(ctx, event); err != nil {
		return err
	}
	return nil
}

func resolve(sourceType domain.EntityType, relType domain.RelationshipType, targetType domain.EntityType) (domain.RelationshipSpec, error) {
	spec, err := domain.LookupRelationship(sourceType, relType)
	if err != nil {
		return domain.RelationshipSpec{}, err
	}
	if spec.Target != targetType {
		return domain.RelationshipSpec{}, fmt.Errorf("%s.%s points at %s, not %s: %w", sourceType, relType, spec.Target, targetType, domain.ErrUnknownRelationship)
	}
	return spec, nil
}

func ensureRelationships(e *domain.Entity) domain.Relationships {
	if e.Relationships == nil {
		e.Relationships = make(domain.Relationships)
	}
	return e.Relationships
}
