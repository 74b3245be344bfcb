// Package event derives cascade updates from relationship events and applies
// them in order against the entity store.
package event

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/pkg/metrics"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/usecase"
)

// UpdatedByCascade marks entity writes made by cascade execution.
const UpdatedByCascade = "cascade"

type UseCase struct {
	store   repository.EntityStore
	journal repository.CascadeJournal
	actions *Registry
	retries int
	now     func() time.Time
	logger  *zap.Logger
}

// Option customizes a UseCase.
type Option func(*UseCase)

// WithJournal persists cascade batches so failed executions can resume.
func WithJournal(journal repository.CascadeJournal) Option {
	return func(uc *UseCase) { uc.journal = journal }
}

// WithRegistry replaces the built-in action registry.
func WithRegistry(registry *Registry) Option {
	return func(uc *UseCase) {
		if registry != nil {
			uc.actions = registry
		}
	}
}

// WithConflictRetries bounds read-modify-write retries per cascade target.
func WithConflictRetries(n int) Option {
	return func(uc *UseCase) { uc.retries = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func New(store repository.EntityStore, logger *zap.Logger, opts ...Option) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	uc := &UseCase{
		store:   store,
		actions: NewRegistry(),
		retries: 3,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessEvent derives the cascades of an event without applying them.
// The result is ordered by executionOrder and every cascade is pending.
func (uc *UseCase) ProcessEvent(ctx context.Context, event domain.RelationshipEvent) ([]domain.CascadeUpdate, error) {
	switch event.EventType {
	case domain.EventCreate, domain.EventUpdate, domain.EventDelete:
	default:
		return nil, fmt.Errorf("event type %q: %w", event.EventType, domain.ErrInvalidPayload)
	}

	ac, triggers, err := orient(event)
	if err != nil {
		return nil, err
	}

	var derived []Derived
	for _, action := range triggers.For(event.EventType) {
		out, err := uc.actions.Derive(action, ac)
		if err != nil {
			return nil, err
		}
		derived = append(derived, out...)
	}

	deleted := make(map[string]bool)
	if event.EventType == domain.EventDelete && event.Strategy == domain.CleanupCascade {
		deleted[event.TargetEntity.ID] = true
	}
	return group(derived, deleted), nil
}

// ExecuteCascades applies cascades sequentially in executionOrder. The slice is
// sorted in place and statuses are updated as execution advances. The first
// failure stops execution, leaving later cascades pending.
func (uc *UseCase) ExecuteCascades(ctx context.Context, cascades []domain.CascadeUpdate) error {
	return uc.execute(ctx, cascades, nil)
}

// Handle derives the cascades of an event, journals them and executes them.
// A nil batch means the event produced no cascades.
func (uc *UseCase) Handle(ctx context.Context, event domain.RelationshipEvent) (*domain.CascadeBatch, error) {
	cascades, err := uc.ProcessEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if len(cascades) == 0 {
		return nil, nil
	}

	now := uc.now()
	batch := &domain.CascadeBatch{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		Cascades:  cascades,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.checkpoint(ctx, batch); err != nil {
		return nil, err
	}
	return batch, uc.execute(ctx, batch.Cascades, func() error { return uc.checkpoint(ctx, batch) })
}

// ResumeCascades re-runs the non-completed cascades of a journaled batch.
func (uc *UseCase) ResumeCascades(ctx context.Context, batchID string) (*domain.CascadeBatch, error) {
	if uc.journal == nil {
		return nil, fmt.Errorf("no cascade journal configured: %w", domain.ErrCascadeBatchNotFound)
	}
	batch, err := uc.journal.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Remaining() {
		return batch, nil
	}

	uc.logger.Info("resuming cascade batch",
		zap.String("batch_id", batch.ID),
		zap.String("event_id", batch.EventID),
	)
	return batch, uc.execute(ctx, batch.Cascades, func() error { return uc.checkpoint(ctx, batch) })
}

// ResumePending resumes up to limit journaled batches that still have work.
func (uc *UseCase) ResumePending(ctx context.Context, limit int) (int, error) {
	if uc.journal == nil {
		return 0, nil
	}
	batches, err := uc.journal.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	var (
		resumed int
		result  error
	)
	for _, batch := range batches {
		if _, err := uc.ResumeCascades(ctx, batch.ID); err != nil {
			result = errors.Join(result, fmt.Errorf("batch %s: %w", batch.ID, err))
			continue
		}
		resumed++
	}
	return resumed, result
}

func (uc *UseCase) execute(ctx context.Context, cascades []domain.CascadeUpdate, checkpoint func() error) error {
	if checkpoint == nil {
		checkpoint = func() error { return nil }
	}
	domain.SortCascades(cascades)

	started := time.Now()
	defer func() { metrics.CascadeDuration.Observe(time.Since(started).Seconds()) }()

	for i := range cascades {
		c := &cascades[i]
		if c.Status == domain.CascadeCompleted {
			continue
		}

		c.Status = domain.CascadeExecuting
		c.Error = ""
		if err := checkpoint(); err != nil {
			return err
		}

		if err := uc.apply(ctx, c.CascadeTargets); err != nil {
			c.Status = domain.CascadeFailed
			c.Error = err.Error()
			metrics.CascadesExecuted.WithLabelValues(string(domain.CascadeFailed)).Inc()
			uc.logger.Error("cascade failed",
				zap.Int("execution_order", c.ExecutionOrder),
				zap.Error(err),
			)
			if cpErr := checkpoint(); cpErr != nil {
				uc.logger.Error("failed to journal cascade failure", zap.Error(cpErr))
			}
			return fmt.Errorf("cascade %d: %w: %w", c.ExecutionOrder, domain.ErrCascadeExecutionFailure, err)
		}

		c.Status = domain.CascadeCompleted
		metrics.CascadesExecuted.WithLabelValues(string(domain.CascadeCompleted)).Inc()
		if err := checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

func (uc *UseCase) apply(ctx context.Context, targets []domain.CascadeTarget) error {
	for _, target := range targets {
		if target.Updates.Empty() {
			continue
		}
		updates := target.Updates
		_, err := usecase.Mutate(ctx, uc.store, target.Collection, target.EntityID, uc.retries, func(e *domain.Entity) (bool, error) {
			updates.Apply(e)
			e.Touch(uc.now())
			e.Metadata.UpdatedBy = UpdatedByCascade
			return true, nil
		})
		if err != nil {
			return fmt.Errorf("%s/%s: %w", target.Collection, target.EntityID, err)
		}
	}
	return nil
}

func (uc *UseCase) checkpoint(ctx context.Context, batch *domain.CascadeBatch) error {
	if uc.journal == nil {
		return nil
	}
	batch.UpdatedAt = uc.now()
	return uc.journal.Save(ctx, batch)
}

// orient finds the endpoint whose slot carries triggers. Events raised from the
// mirror side are turned around so actions always see the owner first.
func orient(event domain.RelationshipEvent) (ActionContext, *domain.EventTriggers, error) {
	spec, err := domain.LookupRelationship(event.SourceEntity.Type, event.RelationshipType)
	if err != nil {
		return ActionContext{}, nil, err
	}

	ac := ActionContext{
		EventType: event.EventType,
		Timestamp: event.Timestamp,
	}
	if spec.Triggers != nil {
		ac.Owner, ac.Other = event.SourceEntity, event.TargetEntity
		ac.OwnerSlot, ac.OtherSlot = spec.Type, spec.Reverse
		ac.Direction = spec.Direction
		return ac, spec.Triggers, nil
	}
	if reverse, ok := spec.ReverseSpec(); ok && reverse.Triggers != nil {
		ac.Owner, ac.Other = event.TargetEntity, event.SourceEntity
		ac.OwnerSlot, ac.OtherSlot = reverse.Type, reverse.Reverse
		ac.Direction = reverse.Direction
		return ac, reverse.Triggers, nil
	}
	return ac, nil, nil
}

// group folds derived patches into one cascade per execution order, merging
// patches that address the same document.
func group(derived []Derived, skip map[string]bool) []domain.CascadeUpdate {
	type slot struct {
		targets []domain.CascadeTarget
		index   map[string]int
	}
	byOrder := make(map[int]*slot)
	for _, d := range derived {
		if skip[d.Target.EntityID] || d.Target.Updates.Empty() {
			continue
		}
		s, ok := byOrder[d.Order]
		if !ok {
			s = &slot{index: make(map[string]int)}
			byOrder[d.Order] = s
		}
		key := d.Target.Collection + "/" + d.Target.EntityID
		if i, seen := s.index[key]; seen {
			s.targets[i].Updates = s.targets[i].Updates.Merge(d.Target.Updates)
			continue
		}
		s.index[key] = len(s.targets)
		s.targets = append(s.targets, d.Target)
	}

	orders := make([]int, 0, len(byOrder))
	for order := range byOrder {
		orders = append(orders, order)
	}
	sort.Ints(orders)

	cascades := make([]domain.CascadeUpdate, 0, len(orders))
	for _, order := range orders {
		cascades = append(cascades, domain.CascadeUpdate{
			ExecutionOrder: order,
			CascadeTargets: byOrder[order].targets,
			Status:         domain.CascadePending,
		})
	}
	return cascades
}

var _ usecase.CascadeProcessor = (*UseCase)(nil)
