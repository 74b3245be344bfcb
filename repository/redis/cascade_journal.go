package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

type cascadeJournal struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewCascadeJournal creates a Redis-backed CascadeJournal. Batches live under
// <prefix><id>; batches with remaining work are indexed in a sorted set scored
// by creation time. Completed batches expire after ttl.
func NewCascadeJournal(client *redislib.Client, prefix string, ttl time.Duration) repository.CascadeJournal {
	if prefix == "" {
		prefix = "cascade:"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &cascadeJournal{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (j *cascadeJournal) Save(ctx context.Context, batch *domain.CascadeBatch) error {
	if batch == nil || batch.ID == "" {
		return domain.ErrInvalidPayload
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	_, err = j.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		if batch.Remaining() {
			pipe.Set(ctx, j.key(batch.ID), payload, 0)
			pipe.ZAdd(ctx, j.pendingKey(), redislib.Z{
				Score:  float64(batch.CreatedAt.UnixNano()),
				Member: batch.ID,
			})
			return nil
		}
		pipe.Set(ctx, j.key(batch.ID), payload, j.ttl)
		pipe.ZRem(ctx, j.pendingKey(), batch.ID)
		return nil
	})
	return err
}

func (j *cascadeJournal) Get(ctx context.Context, id string) (*domain.CascadeBatch, error) {
	result, err := j.client.Get(ctx, j.key(id)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrCascadeBatchNotFound
		}
		return nil, err
	}

	var batch domain.CascadeBatch
	if err := json.Unmarshal([]byte(result), &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (j *cascadeJournal) ListPending(ctx context.Context, limit int) ([]domain.CascadeBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := j.client.ZRange(ctx, j.pendingKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	batches := make([]domain.CascadeBatch, 0, len(ids))
	for _, id := range ids {
		batch, err := j.Get(ctx, id)
		if errors.Is(err, domain.ErrCascadeBatchNotFound) {
			j.client.ZRem(ctx, j.pendingKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}
	return batches, nil
}

func (j *cascadeJournal) key(id string) string {
	return fmt.Sprintf("%s%s", j.prefix, id)
}

func (j *cascadeJournal) pendingKey() string {
	return j.prefix + "pending"
}
