package traceability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/repository/memory"
)

var fixedNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

type graph struct {
	t     *testing.T
	store repository.EntityStore
}

func newGraph(t *testing.T) *graph {
	return &graph{t: t, store: memory.NewEntityStore()}
}

func (g *graph) add(id string, entityType domain.EntityType, name string, links map[domain.RelationshipType][]string) {
	g.t.Helper()
	e := &domain.Entity{ID: id, EntityType: entityType, Name: name, Relationships: domain.Relationships{}}
	for relType, targets := range links {
		for _, target := range targets {
			e.Relationships.Add(relType, domain.Reference{
				ID:         target,
				Collection: collectionOf(g.t, target),
				Metadata: domain.ReferenceMetadata{
					DisplayName:      target,
					LastUpdated:      fixedNow,
					IsActive:         true,
					RelationshipType: relType,
				},
			})
		}
	}
	collection, err := entityType.Collection()
	require.NoError(g.t, err)
	require.NoError(g.t, g.store.Put(context.Background(), collection, e, 0))
}

// collectionOf derives the collection from the id prefix used in these fixtures.
func collectionOf(t *testing.T, id string) string {
	prefixes := map[string]domain.EntityType{
		"job":      domain.EntityJob,
		"order":    domain.EntityOrder,
		"customer": domain.EntityCustomer,
		"machine":  domain.EntityMachine,
		"operator": domain.EntityOperator,
		"lot":      domain.EntityMaterialLot,
		"qr":       domain.EntityQualityRecord,
		"task":     domain.EntityTask,
	}
	for prefix, entityType := range prefixes {
		if len(id) > len(prefix) && id[:len(prefix)+1] == prefix+"_" {
			collection, err := entityType.Collection()
			require.NoError(t, err)
			return collection
		}
	}
	t.Fatalf("no collection for fixture id %q", id)
	return ""
}

func (g *graph) useCase(opts ...Option) *UseCase {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(g.store, nil, opts...)
}

func TestValidateTraceability_LiteralExample(t *testing.T) {
	g := newGraph(t)
	g.add("job_1", domain.EntityJob, "Bracket", map[domain.RelationshipType][]string{
		domain.RelOrder:    {"order_1"},
		domain.RelCustomer: {"customer_1"},
		domain.RelJobs:     {"job_1"},
	})
	g.add("order_1", domain.EntityOrder, "PO-7", nil)
	g.add("customer_1", domain.EntityCustomer, "ACME", nil)

	result, err := g.useCase().ValidateTraceability(context.Background(), "job_1", domain.EntityJob)
	require.NoError(t, err)
	assert.False(t, result.IsComplete)
	assert.Equal(t, 29, result.ComplianceLevel)
	assert.ElementsMatch(t, []string{"material_lot", "job", "operator", "machine", "quality_record"}, result.MissingLinks)
}

func TestBuildTraceabilityChain_CycleSafety(t *testing.T) {
	g := newGraph(t)
	g.add("job_a", domain.EntityJob, "A", map[domain.RelationshipType][]string{domain.RelMachine: {"machine_b"}})
	g.add("machine_b", domain.EntityMachine, "B", map[domain.RelationshipType][]string{domain.RelJobs: {"job_a"}})

	chain, err := g.useCase().BuildTraceabilityChain(context.Background(), "job_a", domain.EntityJob)
	require.NoError(t, err)
	require.Len(t, chain.Chain, 1)
	assert.Equal(t, "machine_b", chain.Chain[0].EntityID)
	assert.Equal(t, 1, chain.Chain[0].Depth)
	assert.False(t, chain.Truncated)
	assert.Equal(t, "job_a", chain.RootEntity.ID)
	assert.Equal(t, "jobs", chain.RootEntity.Collection)
}

func TestBuildTraceabilityChain_DepthLimit(t *testing.T) {
	g := newGraph(t)
	g.add("task_1", domain.EntityTask, "", map[domain.RelationshipType][]string{domain.RelSubtasks: {"task_2"}})
	g.add("task_2", domain.EntityTask, "", map[domain.RelationshipType][]string{domain.RelSubtasks: {"task_3"}})
	g.add("task_3", domain.EntityTask, "", map[domain.RelationshipType][]string{domain.RelSubtasks: {"task_4"}})
	g.add("task_4", domain.EntityTask, "", nil)

	chain, err := g.useCase(WithMaxDepth(2)).BuildTraceabilityChain(context.Background(), "task_1", domain.EntityTask)
	require.NoError(t, err)
	require.Len(t, chain.Chain, 2)
	assert.Equal(t, "task_2", chain.Chain[0].EntityID)
	assert.Equal(t, "task_3", chain.Chain[1].EntityID)
	assert.Equal(t, 2, chain.Chain[1].Depth)
	assert.True(t, chain.Truncated)
}

func TestBuildTraceabilityChain_LinkDetails(t *testing.T) {
	g := newGraph(t)
	g.add("qr_1", domain.EntityQualityRecord, "FAI", map[domain.RelationshipType][]string{domain.RelJob: {"job_1"}})
	g.add("job_1", domain.EntityJob, "Bracket", map[domain.RelationshipType][]string{
		domain.RelOperator:     {"operator_1"},
		domain.RelMaterialLots: {"lot_missing"},
	})
	g.add("operator_1", domain.EntityOperator, "Dana", nil)

	events := memory.NewEventLog()
	require.NoError(t, events.Append(context.Background(), domain.RelationshipEvent{
		ID:               "evt_1",
		EventType:        domain.EventCreate,
		SourceEntity:     domain.EventEntity{ID: "job_1"},
		TargetEntity:     domain.EventEntity{ID: "qr_1"},
		RelationshipType: domain.RelQualityRecords,
		Timestamp:        fixedNow,
	}))

	chain, err := g.useCase(WithEventLog(events), WithRetentionYears(15)).BuildTraceabilityChain(context.Background(), "qr_1", domain.EntityQualityRecord)
	require.NoError(t, err)

	require.Len(t, chain.Chain, 2)
	job := chain.Chain[0]
	assert.Equal(t, domain.EntityJob, job.EntityType)
	assert.Equal(t, "operator_1", job.Operator)
	require.Len(t, job.Relationships, 1)
	assert.Equal(t, domain.RelJob, job.Relationships[0].Metadata.RelationshipType)
	assert.Equal(t, fixedNow, job.Timestamp)

	operator := chain.Chain[1]
	assert.Equal(t, "Dana", operator.Operator)

	assert.Equal(t, 15, chain.Compliance.RetentionPeriod)
	assert.Contains(t, chain.Compliance.AS9100DClauses, domain.ClauseTraceability)
	require.Len(t, chain.Compliance.AuditTrail, 1)
	assert.Equal(t, "evt_1", chain.Compliance.AuditTrail[0].EventID)
	assert.Equal(t, fixedNow, chain.GeneratedAt)
}

func TestValidateTraceability_EmptyGraph(t *testing.T) {
	g := newGraph(t)
	g.add("job_1", domain.EntityJob, "Bracket", nil)

	result, err := g.useCase().ValidateTraceability(context.Background(), "job_1", domain.EntityJob)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ComplianceLevel)
	assert.Len(t, result.MissingLinks, len(DefaultRequiredLinks))

	result, err = g.useCase(WithRequiredLinks(nil)).ValidateTraceability(context.Background(), "job_1", domain.EntityJob)
	require.NoError(t, err)
	assert.Equal(t, 100, result.ComplianceLevel)
	assert.True(t, result.IsComplete)
}

func TestValidateTraceability_Complete(t *testing.T) {
	g := newGraph(t)
	g.add("qr_1", domain.EntityQualityRecord, "", map[domain.RelationshipType][]string{domain.RelJob: {"job_1"}})
	g.add("job_1", domain.EntityJob, "", map[domain.RelationshipType][]string{
		domain.RelOrder:          {"order_1"},
		domain.RelMachine:        {"machine_1"},
		domain.RelOperator:       {"operator_1"},
		domain.RelMaterialLots:   {"lot_1"},
		domain.RelQualityRecords: {"qr_1"},
	})
	g.add("order_1", domain.EntityOrder, "", map[domain.RelationshipType][]string{domain.RelCustomer: {"customer_1"}})
	g.add("customer_1", domain.EntityCustomer, "", nil)
	g.add("machine_1", domain.EntityMachine, "", nil)
	g.add("operator_1", domain.EntityOperator, "", nil)
	g.add("lot_1", domain.EntityMaterialLot, "", map[domain.RelationshipType][]string{domain.RelJobs: {"job_1"}})

	result, err := g.useCase().ValidateTraceability(context.Background(), "lot_1", domain.EntityMaterialLot)
	require.NoError(t, err)
	assert.Equal(t, 86, result.ComplianceLevel)
	assert.Equal(t, []string{"material_lot"}, result.MissingLinks)

	result, err = g.useCase().ValidateTraceability(context.Background(), "qr_1", domain.EntityQualityRecord)
	require.NoError(t, err)
	assert.Equal(t, 86, result.ComplianceLevel)
	assert.Equal(t, []string{"quality_record"}, result.MissingLinks)
}

func TestBuildTraceabilityChain_Errors(t *testing.T) {
	g := newGraph(t)

	_, err := g.useCase().BuildTraceabilityChain(context.Background(), "job_404", domain.EntityJob)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	_, err = g.useCase().BuildTraceabilityChain(context.Background(), "x", domain.EntityType("widget"))
	assert.ErrorIs(t, err, domain.ErrUnknownEntityType)
}
