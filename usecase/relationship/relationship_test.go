package relationship

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/internal/storetest"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/repository/memory"
	"github.com/fastygo/relational/usecase"
	"github.com/fastygo/relational/usecase/event"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type recordingRepairs struct {
	repairs []usecase.RelationshipRepair
}

func (r *recordingRepairs) EnqueueRepair(_ context.Context, repair usecase.RelationshipRepair) error {
	r.repairs = append(r.repairs, repair)
	return nil
}

type recordingHook struct {
	calls []string
}

func (h *recordingHook) Reassign(_ context.Context, source domain.EntityKey, relType domain.RelationshipType, target *domain.Entity) error {
	h.calls = append(h.calls, source.ID+"."+string(relType)+"->"+target.ID)
	return nil
}

type fixture struct {
	uc      *UseCase
	store   *storetest.FaultyStore
	events  repository.EventLog
	repairs *recordingRepairs
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := storetest.NewFaultyStore(memory.NewEntityStore())
	events := memory.NewEventLog()
	repairs := &recordingRepairs{}
	clock := func() time.Time { return fixedNow }
	cascades := event.New(store, nil, event.WithClock(clock))
	opts = append([]Option{
		WithClock(clock),
		WithEventLog(events),
		WithRepairQueue(repairs),
	}, opts...)
	return &fixture{
		uc:      New(store, cascades, nil, opts...),
		store:   store,
		events:  events,
		repairs: repairs,
	}
}

func (f *fixture) seed(t *testing.T, id string, entityType domain.EntityType, name string) domain.EntityKey {
	t.Helper()
	collection, err := entityType.Collection()
	require.NoError(t, err)
	e := &domain.Entity{ID: id, EntityType: entityType, Name: name}
	require.NoError(t, f.store.Put(context.Background(), collection, e, 0))
	return domain.EntityKey{ID: id, Type: entityType}
}

func (f *fixture) get(t *testing.T, key domain.EntityKey) *domain.Entity {
	t.Helper()
	collection, err := key.Type.Collection()
	require.NoError(t, err)
	e, err := f.store.Get(context.Background(), collection, key.ID)
	require.NoError(t, err)
	return e
}

func (f *fixture) exists(t *testing.T, key domain.EntityKey) bool {
	t.Helper()
	collection, err := key.Type.Collection()
	require.NoError(t, err)
	_, err = f.store.Get(context.Background(), collection, key.ID)
	if errors.Is(err, domain.ErrEntityNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func (f *fixture) link(t *testing.T, source, target domain.EntityKey, relType domain.RelationshipType) {
	t.Helper()
	require.NoError(t, f.uc.CreateRelationship(context.Background(), source, target, relType, nil))
}

func TestCreateRelationship_WritesBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")

	f.link(t, customer, order, domain.RelOrders)

	c := f.get(t, customer)
	o := f.get(t, order)
	ref, _, ok := c.Relationships.Find(domain.RelOrders, "order_1")
	require.True(t, ok)
	assert.Equal(t, "orders", ref.Collection)
	assert.Equal(t, "PO-7", ref.Metadata.DisplayName)
	assert.Equal(t, fixedNow, ref.Metadata.LastUpdated)
	assert.Equal(t, domain.VariantEventDriven, ref.Variant())
	assert.True(t, o.Relationships.Has(domain.RelCustomer, "customer_1"))

	assert.Equal(t, int64(1), c.Counters["ordersCount"])
	assert.Equal(t, "ACME", o.Fields["customerName"])

	for _, key := range []domain.EntityKey{customer, order} {
		report, err := f.uc.ValidateIntegrity(ctx, key)
		require.NoError(t, err)
		assert.True(t, report.IsValid, report.Issues)
		assert.Empty(t, report.Issues)
	}

	events, err := f.events.List(ctx, repository.EventFilter{EntityID: "order_1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCreate, events[0].EventType)
	assert.Equal(t, domain.RelOrders, events[0].RelationshipType)
}

func TestCreateRelationship_DuplicateLeavesGraphUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")
	f.link(t, customer, order, domain.RelOrders)

	before := []*domain.Entity{f.get(t, customer), f.get(t, order)}

	err := f.uc.CreateRelationship(ctx, customer, order, domain.RelOrders, nil)
	assert.ErrorIs(t, err, domain.ErrDuplicateReference)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeConflict))

	assert.Equal(t, before[0], f.get(t, customer))
	assert.Equal(t, before[1], f.get(t, order))

	events, err := f.events.List(ctx, repository.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCreateRelationship_RepairsHalfAppliedWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")

	boom := errors.New("store unavailable")
	f.store.FailPuts("orders", "order_1", boom)

	err := f.uc.CreateRelationship(ctx, customer, order, domain.RelOrders, nil)
	require.ErrorIs(t, err, boom)

	require.Len(t, f.repairs.repairs, 1)
	repair := f.repairs.repairs[0]
	assert.Equal(t, "customer_1", repair.SourceID)
	assert.Equal(t, domain.EntityOrder, repair.TargetType)
	assert.Equal(t, domain.RelOrders, repair.RelationshipType)

	report, err := f.uc.ValidateIntegrity(ctx, customer)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0], "missing reverse relationship")

	f.store.Heal()
	require.NoError(t, f.uc.CreateRelationship(ctx, customer, order, domain.RelOrders, nil))

	report, err = f.uc.ValidateIntegrity(ctx, customer)
	require.NoError(t, err)
	assert.True(t, report.IsValid)

	c := f.get(t, customer)
	assert.Len(t, c.Relationships[domain.RelOrders], 1)
	assert.Equal(t, int64(1), c.Counters["ordersCount"])

	events, err := f.events.List(ctx, repository.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCreateRelationship_RetriesVersionConflicts(t *testing.T) {
	f := newFixture(t)
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")

	f.store.RaceNextPuts("customers", "customer_1", 2)
	f.link(t, customer, order, domain.RelOrders)

	c := f.get(t, customer)
	assert.True(t, c.Relationships.Has(domain.RelOrders, "order_1"))
	// seed, two concurrent writes, reference, counter cascade
	assert.Equal(t, int64(5), c.Metadata.Version)
}

func TestCreateRelationship_GivesUpAfterRetries(t *testing.T) {
	f := newFixture(t, WithConflictRetries(1))
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")

	f.store.RaceNextPuts("customers", "customer_1", 5)
	err := f.uc.CreateRelationship(context.Background(), customer, order, domain.RelOrders, nil)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.False(t, f.get(t, order).Relationships.Has(domain.RelCustomer, "customer_1"))
}

func TestCreateRelationship_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	job := f.seed(t, "job_1", domain.EntityJob, "Run")

	tests := []struct {
		name    string
		source  domain.EntityKey
		target  domain.EntityKey
		relType domain.RelationshipType
		want    error
	}{
		{name: "wrong target type", source: customer, target: job, relType: domain.RelOrders, want: domain.ErrUnknownRelationship},
		{name: "unconfigured slot", source: customer, target: job, relType: domain.RelTasks, want: domain.ErrUnknownRelationship},
		{name: "missing target", source: customer, target: domain.EntityKey{ID: "order_9", Type: domain.EntityOrder}, relType: domain.RelOrders, want: domain.ErrEntityNotFound},
		{name: "unknown type", source: domain.EntityKey{ID: "x", Type: "widget"}, target: job, relType: domain.RelTasks, want: domain.ErrUnknownRelationship},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.uc.CreateRelationship(ctx, tt.source, tt.target, tt.relType, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateRelationship_PlainReferenceHasNoMirror(t *testing.T) {
	f := newFixture(t)
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	supplier := f.seed(t, "supplier_1", domain.EntitySupplier, "Alloys")

	require.NoError(t, f.uc.CreateRelationship(context.Background(), customer, supplier, domain.RelPreferredSuppliers, &Metadata{DisplayName: "Preferred", TriggeredBy: "planner"}))

	c := f.get(t, customer)
	ref, _, ok := c.Relationships.Find(domain.RelPreferredSuppliers, "supplier_1")
	require.True(t, ok)
	assert.Equal(t, "Preferred", ref.Metadata.DisplayName)
	assert.Equal(t, domain.VariantPlain, ref.Variant())
	assert.Equal(t, "planner", c.Metadata.UpdatedBy)
	assert.Empty(t, f.get(t, supplier).Relationships)
}

func TestUpdateRelationship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")
	f.link(t, customer, order, domain.RelOrders)

	later := fixedNow.Add(time.Hour)
	f.uc.now = func() time.Time { return later }

	name := "PO-7 rev B"
	inactive := false
	require.NoError(t, f.uc.UpdateRelationship(ctx, customer, domain.RelOrders, "order_1", ReferenceUpdate{DisplayName: &name, IsActive: &inactive}, nil))

	ref, _, ok := f.get(t, customer).Relationships.Find(domain.RelOrders, "order_1")
	require.True(t, ok)
	assert.Equal(t, name, ref.Metadata.DisplayName)
	assert.False(t, ref.Metadata.IsActive)
	assert.Equal(t, later, ref.Metadata.LastUpdated)

	events, err := f.events.List(ctx, repository.EventFilter{EntityID: "customer_1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventUpdate, events[1].EventType)
	_, hasTouch := f.get(t, customer).Fields[event.LastChildUpdateField]
	assert.False(t, hasTouch)

	err = f.uc.UpdateRelationship(ctx, customer, domain.RelOrders, "order_9", ReferenceUpdate{DisplayName: &name}, nil)
	assert.ErrorIs(t, err, domain.ErrRelationshipNotFound)
}

func TestUpdateRelationship_WithCascadeRulesRunsCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")
	f.link(t, customer, order, domain.RelOrders)

	rules := &domain.CascadeRules{OnParentDelete: domain.CascadeDelete, OnChildDelete: domain.CascadeUpdateParent}
	require.NoError(t, f.uc.UpdateRelationship(ctx, customer, domain.RelOrders, "order_1", ReferenceUpdate{}, rules))

	c := f.get(t, customer)
	ref, _, ok := c.Relationships.Find(domain.RelOrders, "order_1")
	require.True(t, ok)
	require.NotNil(t, ref.Cascade)
	assert.Equal(t, domain.CascadeDelete, ref.Cascade.OnParentDelete)
	assert.Equal(t, fixedNow.Format(time.RFC3339), c.Fields[event.LastChildUpdateField])
}

func TestDeleteRelationship_OrphanLeavesMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")
	f.link(t, customer, order, domain.RelOrders)

	require.NoError(t, f.uc.DeleteRelationship(ctx, customer, domain.RelOrders, "order_1", "", "planner"))

	c := f.get(t, customer)
	assert.False(t, c.Relationships.Has(domain.RelOrders, "order_1"))
	assert.Equal(t, int64(0), c.Counters["ordersCount"])
	assert.True(t, f.get(t, order).Relationships.Has(domain.RelCustomer, "customer_1"))

	report, err := f.uc.ValidateIntegrity(ctx, order)
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0], "missing reverse relationship")

	events, err := f.events.List(ctx, repository.EventFilter{EntityID: "order_1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventDelete, events[1].EventType)
	assert.Equal(t, domain.CleanupOrphan, events[1].Strategy)
	assert.Equal(t, "planner", events[1].TriggeredBy)
}

func TestDeleteRelationship_MirrorCleanupKeepsCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	first := f.seed(t, "order_1", domain.EntityOrder, "PO-7")
	second := f.seed(t, "order_2", domain.EntityOrder, "PO-8")
	f.link(t, customer, first, domain.RelOrders)
	f.link(t, customer, second, domain.RelOrders)
	require.Equal(t, int64(2), f.get(t, customer).Counters["ordersCount"])

	require.NoError(t, f.uc.DeleteRelationship(ctx, customer, domain.RelOrders, "order_1", domain.CleanupOrphan, ""))
	assert.Equal(t, int64(1), f.get(t, customer).Counters["ordersCount"])

	require.NoError(t, f.uc.DeleteRelationship(ctx, first, domain.RelCustomer, "customer_1", domain.CleanupOrphan, ""))

	c := f.get(t, customer)
	assert.Len(t, c.Relationships[domain.RelOrders], 1)
	assert.Equal(t, int64(1), c.Counters["ordersCount"])
	assert.False(t, f.get(t, first).Relationships.Has(domain.RelCustomer, "customer_1"))
}

func TestDeleteRelationship_CascadeFollowsRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")
	job := f.seed(t, "job_1", domain.EntityJob, "Bracket run")
	task := f.seed(t, "task_1", domain.EntityTask, "Deburr")
	machine := f.seed(t, "machine_1", domain.EntityMachine, "Mill 3")

	f.link(t, customer, order, domain.RelOrders)
	f.link(t, order, job, domain.RelJobs)
	f.link(t, job, task, domain.RelTasks)
	f.link(t, job, machine, domain.RelMachine)

	require.NoError(t, f.uc.DeleteRelationship(ctx, customer, domain.RelOrders, "order_1", domain.CleanupCascade, ""))

	assert.False(t, f.exists(t, order))
	assert.False(t, f.exists(t, job))
	assert.False(t, f.exists(t, task))

	m := f.get(t, machine)
	assert.False(t, m.Relationships.Has(domain.RelJobs, "job_1"))

	c := f.get(t, customer)
	assert.Empty(t, c.Relationships[domain.RelOrders])
	assert.Equal(t, int64(0), c.Counters["ordersCount"])

	report, err := f.uc.ValidateIntegrity(ctx, machine)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
}

func TestDeleteRelationship_CascadeStopsAtDepthLimit(t *testing.T) {
	f := newFixture(t, WithMaxDepth(1))
	ctx := context.Background()
	order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")
	job := f.seed(t, "job_1", domain.EntityJob, "Run")
	task := f.seed(t, "task_1", domain.EntityTask, "Deburr")
	f.link(t, order, job, domain.RelJobs)
	f.link(t, job, task, domain.RelTasks)

	require.NoError(t, f.uc.DeleteRelationship(ctx, order, domain.RelJobs, "job_1", domain.CleanupCascade, ""))

	assert.False(t, f.exists(t, job))
	assert.True(t, f.exists(t, task))
}

func TestDeleteRelationship_Reassign(t *testing.T) {
	ctx := context.Background()

	t.Run("without hook", func(t *testing.T) {
		f := newFixture(t)
		customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
		order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")
		f.link(t, customer, order, domain.RelOrders)

		err := f.uc.DeleteRelationship(ctx, customer, domain.RelOrders, "order_1", domain.CleanupReassign, "")
		assert.ErrorIs(t, err, domain.ErrReassignUnavailable)
		assert.True(t, f.get(t, customer).Relationships.Has(domain.RelOrders, "order_1"))
	})

	t.Run("with hook", func(t *testing.T) {
		hook := &recordingHook{}
		f := newFixture(t, WithReassignHook(hook))
		customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")
		order := f.seed(t, "order_1", domain.EntityOrder, "PO-7")
		f.link(t, customer, order, domain.RelOrders)

		require.NoError(t, f.uc.DeleteRelationship(ctx, customer, domain.RelOrders, "order_1", domain.CleanupReassign, ""))
		assert.Equal(t, []string{"customer_1.orders->order_1"}, hook.calls)
		assert.False(t, f.get(t, customer).Relationships.Has(domain.RelOrders, "order_1"))
	})
}

func TestDeleteRelationship_NotFound(t *testing.T) {
	f := newFixture(t)
	customer := f.seed(t, "customer_1", domain.EntityCustomer, "ACME")

	err := f.uc.DeleteRelationship(context.Background(), customer, domain.RelOrders, "order_1", domain.CleanupOrphan, "")
	assert.ErrorIs(t, err, domain.ErrRelationshipNotFound)
}

func TestValidateIntegrity_ReportsIssues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	customer := &domain.Entity{
		ID:         "customer_1",
		EntityType: domain.EntityCustomer,
		Relationships: domain.Relationships{
			domain.RelOrders: {
				{ID: "order_9", Collection: "orders", Metadata: domain.ReferenceMetadata{LastUpdated: fixedNow}},
				{ID: "order_2", Collection: "orders"},
			},
			domain.RelPreferredSuppliers: {
				{ID: "s_1", Collection: "vendors", Metadata: domain.ReferenceMetadata{LastUpdated: fixedNow}},
			},
		},
	}
	require.NoError(t, f.store.Put(ctx, "customers", customer, 0))
	f.seed(t, "order_2", domain.EntityOrder, "PO-2")

	report, err := f.uc.ValidateIntegrity(ctx, domain.EntityKey{ID: "customer_1", Type: domain.EntityCustomer})
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.Issues, 4)
	assert.Len(t, report.Recommendations, 4)
	assert.Contains(t, report.Issues[0], "orphaned reference")
	assert.Contains(t, report.Recommendations[0], "prune")
	assert.Contains(t, report.Issues[1], "no lastUpdated")
	assert.Contains(t, report.Issues[2], "missing reverse relationship")
	assert.Contains(t, report.Issues[3], "unknown collection")

	after, err := f.store.Get(ctx, "customers", "customer_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.Metadata.Version)
}

func TestValidateIntegrity_MissingRoot(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.ValidateIntegrity(context.Background(), domain.EntityKey{ID: "job_9", Type: domain.EntityJob})
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}
