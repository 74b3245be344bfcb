// Package memory provides in-process implementations of the repository ports.
// They hold deep copies so callers never alias stored state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/repository/docquery"
)

type entityStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*domain.Entity
}

// NewEntityStore creates an empty in-memory EntityStore.
func NewEntityStore() repository.EntityStore {
	return &entityStore{collections: make(map[string]map[string]*domain.Entity)}
}

func (s *entityStore) Get(ctx context.Context, collection, id string) (*domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrEntityNotFound)
	}
	return e.Clone(), nil
}

func (s *entityStore) Put(ctx context.Context, collection string, entity *domain.Entity, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entity == nil || entity.ID == "" || collection == "" {
		return domain.ErrInvalidPayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	if docs == nil {
		docs = make(map[string]*domain.Entity)
		s.collections[collection] = docs
	}
	var current int64
	if existing, ok := docs[entity.ID]; ok {
		current = existing.Metadata.Version
	}
	if current != expectedVersion {
		return fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, entity.ID, current, expectedVersion, domain.ErrVersionConflict)
	}

	entity.Metadata.Version = expectedVersion + 1
	docs[entity.ID] = entity.Clone()
	return nil
}

func (s *entityStore) Delete(ctx context.Context, collection, id string, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrEntityNotFound)
	}
	if existing.Metadata.Version != expectedVersion {
		return fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, existing.Metadata.Version, expectedVersion, domain.ErrVersionConflict)
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *entityStore) Query(ctx context.Context, collection, fieldPath string, op repository.QueryOp, value any) ([]domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	docs := s.collections[collection]
	all := make([]domain.Entity, 0, len(docs))
	for _, e := range docs {
		all = append(all, *e.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return docquery.Filter(all, fieldPath, op, value)
}
