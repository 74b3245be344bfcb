package services

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/internal/infrastructure/buffer"
	"github.com/fastygo/relational/internal/storetest"
	"github.com/fastygo/relational/repository/memory"
	"github.com/fastygo/relational/usecase"
	"github.com/fastygo/relational/usecase/event"
	"github.com/fastygo/relational/usecase/relationship"
)

type offline struct{}

func (offline) IsOnline() bool { return false }

type harness struct {
	queue     *buffer.Queue
	store     *storetest.FaultyStore
	rel       *relationship.UseCase
	processor *RepairProcessor
}

func newHarness(t *testing.T, cfg ProcessorConfig) *harness {
	t.Helper()
	queue, err := buffer.Open(filepath.Join(t.TempDir(), "repairs.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	store := storetest.NewFaultyStore(memory.NewEntityStore())
	cascades := event.New(store, nil, event.WithJournal(memory.NewCascadeJournal()))
	rel := relationship.New(store, cascades, nil, relationship.WithRepairQueue(NewRepairBridge(queue, nil)))

	processor, err := NewRepairProcessor(queue, nil, rel, cascades, store, nil, cfg)
	require.NoError(t, err)
	return &harness{queue: queue, store: store, rel: rel, processor: processor}
}

func (h *harness) seed(t *testing.T, id string, entityType domain.EntityType) domain.EntityKey {
	t.Helper()
	collection, err := entityType.Collection()
	require.NoError(t, err)
	require.NoError(t, h.store.Put(context.Background(), collection, &domain.Entity{ID: id, EntityType: entityType, Name: id}, 0))
	return domain.EntityKey{ID: id, Type: entityType}
}

func TestRepairProcessor_DrainCompletesHalfAppliedCreate(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	ctx := context.Background()
	job := h.seed(t, "job_1", domain.EntityJob)
	machine := h.seed(t, "machine_1", domain.EntityMachine)

	h.store.FailPuts("machines", "machine_1", errors.New("store unavailable"))
	require.Error(t, h.rel.CreateRelationship(ctx, job, machine, domain.RelMachine, nil))
	assert.Equal(t, 1, h.processor.Size())

	h.store.Heal()
	require.NoError(t, h.processor.RunOnce(ctx))
	assert.Zero(t, h.processor.Size())

	for _, key := range []domain.EntityKey{job, machine} {
		report, err := h.rel.ValidateIntegrity(ctx, key)
		require.NoError(t, err)
		assert.True(t, report.IsValid, report.Issues)
	}
	m, err := h.store.Get(ctx, "machines", "machine_1")
	require.NoError(t, err)
	assert.Equal(t, "repair", m.Metadata.UpdatedBy)
}

func TestRepairProcessor_RequeuesThenDrops(t *testing.T) {
	h := newHarness(t, ProcessorConfig{MaxRetries: 2})
	ctx := context.Background()
	job := h.seed(t, "job_1", domain.EntityJob)
	machine := h.seed(t, "machine_1", domain.EntityMachine)

	h.store.FailPuts("machines", "machine_1", errors.New("store unavailable"))
	require.Error(t, h.rel.CreateRelationship(ctx, job, machine, domain.RelMachine, nil))

	require.NoError(t, h.processor.Drain(ctx))
	items, err := h.queue.Peek(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Retries)
	assert.Equal(t, "store unavailable", items[0].LastError)

	require.NoError(t, h.processor.Drain(ctx))
	assert.Zero(t, h.processor.Size())
}

func TestRepairProcessor_DropsPermanentFailures(t *testing.T) {
	h := newHarness(t, ProcessorConfig{MaxRetries: 5})
	ctx := context.Background()

	payload, err := json.Marshal(usecase.RelationshipRepair{
		SourceID:         "job_1",
		SourceType:       domain.EntityJob,
		TargetID:         "machine_9",
		TargetType:       domain.EntityMachine,
		RelationshipType: domain.RelMachine,
	})
	require.NoError(t, err)
	require.NoError(t, h.queue.Enqueue(buffer.Item{Kind: buffer.KindRelationshipRepair, Data: payload}))
	require.NoError(t, h.queue.Enqueue(buffer.Item{Kind: "unknown"}))

	require.NoError(t, h.processor.Drain(ctx))
	assert.Zero(t, h.processor.Size())
}

func TestRepairProcessor_SkipsWhenOffline(t *testing.T) {
	h := newHarness(t, ProcessorConfig{})
	h.processor.monitor = offline{}
	require.NoError(t, h.queue.Enqueue(buffer.Item{Kind: "unknown"}))

	require.NoError(t, h.processor.RunOnce(context.Background()))
	assert.Equal(t, 1, h.processor.Size())
}

func TestRepairProcessor_Sweep(t *testing.T) {
	h := newHarness(t, ProcessorConfig{SweepTypes: []domain.EntityType{domain.EntityJob, domain.EntityMachine}})
	ctx := context.Background()
	job := h.seed(t, "job_1", domain.EntityJob)
	machine := h.seed(t, "machine_1", domain.EntityMachine)
	h.seed(t, "job_2", domain.EntityJob)

	h.store.FailPuts("machines", "machine_1", errors.New("store unavailable"))
	require.Error(t, h.rel.CreateRelationship(ctx, job, machine, domain.RelMachine, nil))

	result, err := h.processor.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Entities)
	assert.Equal(t, 1, result.Invalid)
	assert.Equal(t, 1, result.Issues)
}

func TestNewRepairProcessor_RejectsBadSchedule(t *testing.T) {
	_, err := NewRepairProcessor(nil, nil, nil, nil, nil, nil, ProcessorConfig{Schedule: "every now and then"})
	assert.Error(t, err)
}
