package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/internal/storetest"
	"github.com/fastygo/relational/repository/memory"
	"github.com/fastygo/relational/usecase"
)

func seed(t *testing.T, store *storetest.FaultyStore, e *domain.Entity) {
	t.Helper()
	collection, err := e.Collection()
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), collection, e, 0))
}

func rename(name string) usecase.MutateFunc {
	return func(e *domain.Entity) (bool, error) {
		if e.Name == name {
			return false, nil
		}
		e.Name = name
		return true, nil
	}
}

func TestMutate_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	store := storetest.NewFaultyStore(memory.NewEntityStore())
	seed(t, store, &domain.Entity{ID: "job_1", EntityType: domain.EntityJob})
	store.RaceNextPuts("jobs", "job_1", 2)

	got, err := usecase.Mutate(ctx, store, "jobs", "job_1", 3, rename("Bracket"))
	require.NoError(t, err)
	assert.Equal(t, "Bracket", got.Name)
	assert.Equal(t, int64(4), got.Metadata.Version)
}

func TestMutate_GivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	store := storetest.NewFaultyStore(memory.NewEntityStore())
	seed(t, store, &domain.Entity{ID: "job_1", EntityType: domain.EntityJob})
	store.RaceNextPuts("jobs", "job_1", 5)

	_, err := usecase.Mutate(ctx, store, "jobs", "job_1", 1, rename("Bracket"))
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestMutate_SkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	store := storetest.NewFaultyStore(memory.NewEntityStore())
	seed(t, store, &domain.Entity{ID: "job_1", EntityType: domain.EntityJob, Name: "Bracket"})

	got, err := usecase.Mutate(ctx, store, "jobs", "job_1", 3, rename("Bracket"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Metadata.Version)
	assert.Len(t, store.Puts(), 1)
}

func TestMutate_PropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := storetest.NewFaultyStore(memory.NewEntityStore())
	seed(t, store, &domain.Entity{ID: "job_1", EntityType: domain.EntityJob})
	boom := errors.New("disk full")
	store.FailPuts("jobs", "job_1", boom)

	_, err := usecase.Mutate(ctx, store, "jobs", "job_1", 3, rename("Bracket"))
	assert.ErrorIs(t, err, boom)

	_, err = usecase.Mutate(ctx, store, "jobs", "job_404", 3, rename("Bracket"))
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}
