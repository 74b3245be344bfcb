// Package storetest provides EntityStore wrappers that inject failures.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

// FaultyStore wraps an EntityStore and fails or races selected writes.
type FaultyStore struct {
	repository.EntityStore

	mu        sync.Mutex
	failPuts  map[string]error
	conflicts map[string]int
	puts      []string
}

// NewFaultyStore wraps inner.
func NewFaultyStore(inner repository.EntityStore) *FaultyStore {
	return &FaultyStore{
		EntityStore: inner,
		failPuts:    make(map[string]error),
		conflicts:   make(map[string]int),
	}
}

// FailPuts makes every put to collection/id return err until Heal is called.
func (s *FaultyStore) FailPuts(collection, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPuts[key(collection, id)] = err
}

// RaceNextPuts simulates a concurrent writer landing just before each of the
// next n puts to collection/id, so those puts see a version conflict.
func (s *FaultyStore) RaceNextPuts(collection, id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[key(collection, id)] = n
}

// Heal clears every injected failure.
func (s *FaultyStore) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPuts = make(map[string]error)
	s.conflicts = make(map[string]int)
}

// Puts lists the collection/id of every successful put in order.
func (s *FaultyStore) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

func (s *FaultyStore) Put(ctx context.Context, collection string, entity *domain.Entity, expectedVersion int64) error {
	k := key(collection, entity.ID)

	s.mu.Lock()
	failure := s.failPuts[k]
	race := s.conflicts[k] > 0
	if race {
		s.conflicts[k]--
	}
	s.mu.Unlock()

	if failure != nil {
		return failure
	}
	if race {
		current, err := s.EntityStore.Get(ctx, collection, entity.ID)
		if err != nil {
			return err
		}
		current.Metadata.UpdatedBy = "concurrent-writer"
		if err := s.EntityStore.Put(ctx, collection, current, current.Metadata.Version); err != nil {
			return err
		}
	}

	if err := s.EntityStore.Put(ctx, collection, entity, expectedVersion); err != nil {
		return err
	}
	s.mu.Lock()
	s.puts = append(s.puts, k)
	s.mu.Unlock()
	return nil
}

func key(collection, id string) string {
	return fmt.Sprintf("%s/%s", collection, id)
}
