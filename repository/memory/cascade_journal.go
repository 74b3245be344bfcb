package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

type cascadeJournal struct {
	mu      sync.RWMutex
	batches map[string]domain.CascadeBatch
}

// NewCascadeJournal creates an in-memory CascadeJournal.
func NewCascadeJournal() repository.CascadeJournal {
	return &cascadeJournal{batches: make(map[string]domain.CascadeBatch)}
}

func (j *cascadeJournal) Save(ctx context.Context, batch *domain.CascadeBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch == nil || batch.ID == "" {
		return domain.ErrInvalidPayload
	}
	j.mu.Lock()
	j.batches[batch.ID] = cloneBatch(*batch)
	j.mu.Unlock()
	return nil
}

func (j *cascadeJournal) Get(ctx context.Context, id string) (*domain.CascadeBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	batch, ok := j.batches[id]
	if !ok {
		return nil, domain.ErrCascadeBatchNotFound
	}
	out := cloneBatch(batch)
	return &out, nil
}

func (j *cascadeJournal) ListPending(ctx context.Context, limit int) ([]domain.CascadeBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	var out []domain.CascadeBatch
	for _, batch := range j.batches {
		if batch.Remaining() {
			out = append(out, cloneBatch(batch))
		}
	}
	j.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneBatch(b domain.CascadeBatch) domain.CascadeBatch {
	out := b
	out.Cascades = make([]domain.CascadeUpdate, len(b.Cascades))
	for i, c := range b.Cascades {
		c.CascadeTargets = append([]domain.CascadeTarget(nil), c.CascadeTargets...)
		out.Cascades[i] = c
	}
	return out
}
