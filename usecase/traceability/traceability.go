// Package traceability walks the relationship graph from a root entity to build
// audit chains and score their coverage of the required link types.
package traceability

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/pkg/metrics"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/usecase"
)

const (
	DefaultMaxDepth       = 10
	DefaultRetentionYears = 10
)

// DefaultRequiredLinks is the link checklist a complete chain must cover.
var DefaultRequiredLinks = []domain.EntityType{
	domain.EntityMaterialLot,
	domain.EntityJob,
	domain.EntityOrder,
	domain.EntityCustomer,
	domain.EntityOperator,
	domain.EntityMachine,
	domain.EntityQualityRecord,
}

// ChainClauses are the AS9100D clauses a traceability chain documents.
var ChainClauses = []string{"7.5.3", domain.ClauseTraceability}

type UseCase struct {
	store     repository.EntityStore
	events    repository.EventLog
	maxDepth  int
	retention int
	required  []domain.EntityType
	now       func() time.Time
	logger    *zap.Logger
}

// Option customizes a UseCase.
type Option func(*UseCase)

// WithEventLog attaches the audit log used to fill chain audit trails.
func WithEventLog(events repository.EventLog) Option {
	return func(uc *UseCase) { uc.events = events }
}

// WithMaxDepth bounds traversal depth in hops from the root.
func WithMaxDepth(depth int) Option {
	return func(uc *UseCase) {
		if depth > 0 {
			uc.maxDepth = depth
		}
	}
}

// WithRetentionYears sets the retention period stamped on chains.
func WithRetentionYears(years int) Option {
	return func(uc *UseCase) {
		if years > 0 {
			uc.retention = years
		}
	}
}

// WithRequiredLinks replaces the required link checklist. An empty list is allowed.
func WithRequiredLinks(types []domain.EntityType) Option {
	return func(uc *UseCase) { uc.required = append([]domain.EntityType{}, types...) }
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
		store:     store,
		maxDepth:  DefaultMaxDepth,
		retention: DefaultRetentionYears,
		required:  DefaultRequiredLinks,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type queued struct {
	entity *domain.Entity
	depth  int
}

// BuildTraceabilityChain walks every relationship breadth-first from the root.
// Each entity is visited once, so cycles terminate; links beyond the depth
// limit are dropped and the chain is marked truncated.
func (uc *UseCase) BuildTraceabilityChain(ctx context.Context, entityID string, entityType domain.EntityType) (*domain.TraceabilityChain, error) {
	collection, err := entityType.Collection()
	if err != nil {
		return nil, err
	}
	root, err := uc.store.Get(ctx, collection, entityID)
	if err != nil {
		return nil, err
	}

	chain := &domain.TraceabilityChain{
		RootEntity: domain.Reference{
			ID:         root.ID,
			Collection: collection,
			Metadata: domain.ReferenceMetadata{
				DisplayName: root.DisplayName(),
				LastUpdated: root.Metadata.UpdatedAt,
				IsActive:    true,
			},
		},
		Chain:       []domain.ChainLink{},
		GeneratedAt: uc.now(),
	}

	visited := map[string]bool{root.ID: true}
	queue := []queued{{entity: root}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, relType := range current.entity.Relationships.Types() {
			for _, ref := range current.entity.Relationships[relType] {
				if visited[ref.ID] {
					continue
				}
				if current.depth+1 > uc.maxDepth {
					chain.Truncated = true
					continue
				}
				visited[ref.ID] = true

				target, err := uc.store.Get(ctx, ref.Collection, ref.ID)
				if err != nil {
					if errors.Is(err, domain.ErrEntityNotFound) {
						uc.logger.Debug("skipping dangling reference in chain",
							zap.String("from", current.entity.ID),
							zap.String("to", ref.ID),
						)
						continue
					}
					return nil, err
				}

				chain.Chain = append(chain.Chain, domain.ChainLink{
					EntityID:      target.ID,
					EntityType:    target.EntityType,
					Depth:         current.depth + 1,
					Relationships: []domain.Reference{ref.Clone()},
					Timestamp:     linkTimestamp(ref, target),
					Operator:      operatorOf(target),
				})
				queue = append(queue, queued{entity: target, depth: current.depth + 1})
			}
		}
	}

	trail, err := uc.auditTrail(ctx, root.ID)
	if err != nil {
		return nil, err
	}
	chain.Compliance = domain.ChainCompliance{
		AS9100DClauses:  append([]string(nil), ChainClauses...),
		AuditTrail:      trail,
		RetentionPeriod: uc.retention,
	}

	metrics.TraceabilityChainLength.Observe(float64(len(chain.Chain)))
	if chain.Truncated {
		uc.logger.Warn("traceability chain truncated at depth limit",
			zap.String("entity_id", root.ID),
			zap.Int("max_depth", uc.maxDepth),
		)
	}
	return chain, nil
}

// ValidateTraceability scores chain coverage of the required link types. The
// root entity does not count towards coverage.
func (uc *UseCase) ValidateTraceability(ctx context.Context, entityID string, entityType domain.EntityType) (*domain.TraceabilityValidation, error) {
	chain, err := uc.BuildTraceabilityChain(ctx, entityID, entityType)
	if err != nil {
		return nil, err
	}
	return Score(chain, uc.required), nil
}

// Score diffs the chain's present types against required.
func Score(chain *domain.TraceabilityChain, required []domain.EntityType) *domain.TraceabilityValidation {
	result := &domain.TraceabilityValidation{MissingLinks: []string{}}
	if len(required) == 0 {
		result.IsComplete = true
		result.ComplianceLevel = 100
		return result
	}

	present := chain.PresentTypes()
	for _, t := range required {
		if _, ok := present[t]; !ok {
			result.MissingLinks = append(result.MissingLinks, string(t))
		}
	}
	covered := len(required) - len(result.MissingLinks)
	result.ComplianceLevel = int(math.Round(100 * float64(covered) / float64(len(required))))
	result.IsComplete = len(result.MissingLinks) == 0
	return result
}

func (uc *UseCase) auditTrail(ctx context.Context, entityID string) ([]domain.AuditEntry, error) {
	trail := []domain.AuditEntry{}
	if uc.events == nil {
		return trail, nil
	}
	events, err := uc.events.List(ctx, repository.EventFilter{EntityID: entityID})
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		trail = append(trail, domain.AuditEntryOf(e))
	}
	return trail, nil
}

func linkTimestamp(ref domain.Reference, target *domain.Entity) time.Time {
	if !ref.Metadata.LastUpdated.IsZero() {
		return ref.Metadata.LastUpdated
	}
	return target.Metadata.UpdatedAt
}

// operatorOf is best effort: operators name themselves, other entities name
// the operator they point at, everything else is unknown.
func operatorOf(e *domain.Entity) string {
	if e.EntityType == domain.EntityOperator {
		return e.DisplayName()
	}
	for _, ref := range e.Relationships[domain.RelOperator] {
		if ref.Metadata.DisplayName != "" {
			return ref.Metadata.DisplayName
		}
		return ref.ID
	}
	return domain.OperatorUnknown
}

var _ usecase.TraceabilityValidator = (*UseCase)(nil)
