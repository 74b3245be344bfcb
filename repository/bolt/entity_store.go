// Package bolt stores entity documents in an embedded bbolt file, one bucket
// per logical collection, each document bson-encoded under its id.
package bolt

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/repository/docquery"
)

type entityStore struct {
	db *bbolt.DB
}

// NewEntityStore creates a bbolt-backed EntityStore on an open database.
func NewEntityStore(db *bbolt.DB) repository.EntityStore {
	return &entityStore{db: db}
}

func (s *entityStore) Get(ctx context.Context, collection, id string) (*domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entity *domain.Entity
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return domain.ErrEntityNotFound
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return domain.ErrEntityNotFound
		}
		decoded, err := docquery.Decode(raw)
		if err != nil {
			return err
		}
		entity = decoded
		return nil
	})
	if errors.Is(err, domain.ErrEntityNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, err)
	}
	return entity, err
}

func (s *entityStore) Put(ctx context.Context, collection string, entity *domain.Entity, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entity == nil || entity.ID == "" || collection == "" {
		return domain.ErrInvalidPayload
	}

	next := entity.Clone()
	next.Metadata.Version = expectedVersion + 1
	payload, err := docquery.Encode(next)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		current, err := storedVersion(bucket.Get([]byte(entity.ID)))
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, entity.ID, current, expectedVersion, domain.ErrVersionConflict)
		}
		return bucket.Put([]byte(entity.ID), payload)
	})
	if err != nil {
		return err
	}

	entity.Metadata.Version = next.Metadata.Version
	return nil
}

func (s *entityStore) Delete(ctx context.Context, collection, id string, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrEntityNotFound)
		}
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrEntityNotFound)
		}
		current, err := storedVersion(raw)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return fmt.Errorf("%s/%s at version %d, expected %d: %w", collection, id, current, expectedVersion, domain.ErrVersionConflict)
		}
		return bucket.Delete([]byte(id))
	})
}

func (s *entityStore) Query(ctx context.Context, collection, fieldPath string, op repository.QueryOp, value any) ([]domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !op.Valid() {
		return nil, fmt.Errorf("query operator %q: %w", op, domain.ErrInvalidPayload)
	}

	var out []domain.Entity
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, raw []byte) error {
			var doc bson.M
			if err := bson.Unmarshal(raw, &doc); err != nil {
				return err
			}
			ok, err := docquery.Match(doc, fieldPath, op, value)
			if err != nil || !ok {
				return err
			}
			entity, err := docquery.Decode(raw)
			if err != nil {
				return err
			}
			out = append(out, *entity)
			return nil
		})
	})
	return out, err
}

func storedVersion(raw []byte) (int64, error) {
	if raw == nil {
		return 0, nil
	}
	var head struct {
		Metadata struct {
			Version int64 `bson:"version"`
		} `bson:"metadata"`
	}
	if err := bson.Unmarshal(raw, &head); err != nil {
		return 0, err
	}
	return head.Metadata.Version, nil
}
