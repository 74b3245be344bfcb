package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

func TestEntityStore_VersionCountsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore()

	job := &domain.Entity{ID: "job_1", EntityType: domain.EntityJob, Name: "Bracket"}
	for i := int64(0); i < 3; i++ {
		require.NoError(t, store.Put(ctx, "jobs", job, i))
	}
	assert.Equal(t, int64(3), job.Metadata.Version)

	stored, err := store.Get(ctx, "jobs", "job_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Metadata.Version)

	stale := stored.Clone()
	stale.Name = "changed"
	err = store.Put(ctx, "jobs", stale, 1)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	unchanged, err := store.Get(ctx, "jobs", "job_1")
	require.NoError(t, err)
	assert.Equal(t, "Bracket", unchanged.Name)
	assert.Equal(t, int64(3), unchanged.Metadata.Version)
}

func TestEntityStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore()
	require.NoError(t, store.Put(ctx, "jobs", &domain.Entity{ID: "job_1", EntityType: domain.EntityJob}, 0))

	first, err := store.Get(ctx, "jobs", "job_1")
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := store.Get(ctx, "jobs", "job_1")
	require.NoError(t, err)
	assert.Empty(t, second.Name)
}

func TestEntityStore_CreateOverExistingConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore()
	require.NoError(t, store.Put(ctx, "jobs", &domain.Entity{ID: "job_1", EntityType: domain.EntityJob}, 0))

	err := store.Put(ctx, "jobs", &domain.Entity{ID: "job_1", EntityType: domain.EntityJob}, 0)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestEntityStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore()
	require.NoError(t, store.Put(ctx, "jobs", &domain.Entity{ID: "job_1", EntityType: domain.EntityJob}, 0))

	assert.ErrorIs(t, store.Delete(ctx, "jobs", "job_1", 0), domain.ErrVersionConflict)
	require.NoError(t, store.Delete(ctx, "jobs", "job_1", 1))

	_, err := store.Get(ctx, "jobs", "job_1")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "jobs", "job_1", 1), domain.ErrEntityNotFound)
}

func TestEntityStore_Query(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore()
	for _, e := range []*domain.Entity{
		{ID: "job_2", EntityType: domain.EntityJob, Status: "open"},
		{ID: "job_1", EntityType: domain.EntityJob, Status: "open"},
		{ID: "job_3", EntityType: domain.EntityJob, Status: "closed"},
	} {
		require.NoError(t, store.Put(ctx, "jobs", e, 0))
	}

	open, err := store.Query(ctx, "jobs", "status", repository.OpEqual, "open")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "job_1", open[0].ID)
	assert.Equal(t, "job_2", open[1].ID)

	none, err := store.Query(ctx, "machines", "status", repository.OpEqual, "open")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEventLog_ListByEntity(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	now := time.Now()

	events := []domain.RelationshipEvent{
		{ID: "e1", EventType: domain.EventCreate, SourceEntity: domain.EventEntity{ID: "job_1"}, TargetEntity: domain.EventEntity{ID: "order_1"}, Timestamp: now},
		{ID: "e2", EventType: domain.EventCreate, SourceEntity: domain.EventEntity{ID: "job_2"}, TargetEntity: domain.EventEntity{ID: "machine_1"}, Timestamp: now},
		{ID: "e3", EventType: domain.EventDelete, SourceEntity: domain.EventEntity{ID: "customer_1"}, TargetEntity: domain.EventEntity{ID: "job_1"}, Timestamp: now},
	}
	for _, e := range events {
		require.NoError(t, log.Append(ctx, e))
	}

	got, err := log.List(ctx, repository.EventFilter{EntityID: "job_1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, "e3", got[1].ID)

	page, err := log.List(ctx, repository.EventFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "e2", page[0].ID)
}

func TestCascadeJournal_ListPending(t *testing.T) {
	ctx := context.Background()
	journal := NewCascadeJournal()
	base := time.Now()

	done := &domain.CascadeBatch{ID: "b1", CreatedAt: base, Cascades: []domain.CascadeUpdate{{Status: domain.CascadeCompleted}}}
	open := &domain.CascadeBatch{ID: "b2", CreatedAt: base.Add(time.Second), Cascades: []domain.CascadeUpdate{
		{Status: domain.CascadeCompleted},
		{Status: domain.CascadeFailed},
	}}
	require.NoError(t, journal.Save(ctx, done))
	require.NoError(t, journal.Save(ctx, open))

	pending, err := journal.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b2", pending[0].ID)

	_, err = journal.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCascadeBatchNotFound)
}

func TestFrameworkRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewFrameworkRepository()

	_, err := repo.Get(ctx, "job_1")
	require.ErrorIs(t, err, domain.ErrFrameworkNotFound)

	fw := &domain.AS9100DComplianceFramework{EntityID: "job_1", EntityType: domain.EntityJob}
	require.NoError(t, repo.Save(ctx, fw, 0))

	got, err := repo.Get(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntityJob, got.EntityType)
	assert.Equal(t, int64(1), got.Version)

	assert.ErrorIs(t, repo.Save(ctx, &domain.AS9100DComplianceFramework{EntityID: "job_1"}, 0), domain.ErrVersionConflict)

	got.NonCompliances = append(got.NonCompliances, domain.NonCompliance{ClauseNumber: domain.ClauseTraceability})
	require.NoError(t, repo.Save(ctx, got, 1))
	assert.Equal(t, int64(2), got.Version)
	assert.ErrorIs(t, repo.Save(ctx, fw, 1), domain.ErrVersionConflict)
}
