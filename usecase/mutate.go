package usecase

import (
	"context"
	"errors"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/pkg/metrics"
	"github.com/fastygo/relational/repository"
)

// MutateFunc edits a freshly read entity and reports whether it changed.
type MutateFunc func(entity *domain.Entity) (bool, error)

// Mutate runs a read-modify-write cycle against one document, re-reading and
// retrying up to retries times when the stored version moved on.
// An unchanged entity is returned without writing.
func Mutate(ctx context.Context, store repository.EntityStore, collection, id string, retries int, fn MutateFunc) (*domain.Entity, error) {
	if retries < 0 {
		retries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		entity, err := store.Get(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(entity)
		if err != nil {
			return nil, err
		}
		if !changed {
			return entity, nil
		}
		err = store.Put(ctx, collection, entity, entity.Metadata.Version)
		if err == nil {
			return entity, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		metrics.VersionConflicts.Inc()
		lastErr = err
	}
	return nil, lastErr
}
