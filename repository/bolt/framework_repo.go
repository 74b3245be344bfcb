package bolt

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

// FrameworkBucket holds one compliance framework per entity id.
const FrameworkBucket = "compliance_frameworks"

type frameworkRepository struct {
	db *bbolt.DB
}

// NewFrameworkRepository creates a bbolt-backed FrameworkRepository.
func NewFrameworkRepository(db *bbolt.DB) repository.FrameworkRepository {
	return &frameworkRepository{db: db}
}

func (r *frameworkRepository) Get(ctx context.Context, entityID string) (*domain.AS9100DComplianceFramework, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var fw domain.AS9100DComplianceFramework
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(FrameworkBucket))
		if bucket == nil {
			return domain.ErrFrameworkNotFound
		}
		raw := bucket.Get([]byte(entityID))
		if raw == nil {
			return domain.ErrFrameworkNotFound
		}
		return bson.Unmarshal(raw, &fw)
	})
	if err != nil {
		return nil, err
	}
	return &fw, nil
}

func (r *frameworkRepository) Save(ctx context.Context, framework *domain.AS9100DComplianceFramework, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if framework == nil || framework.EntityID == "" {
		return domain.ErrInvalidPayload
	}
	next := *framework
	next.Version = expectedVersion + 1
	payload, err := bson.Marshal(&next)
	if err != nil {
		return err
	}
	err = r.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(FrameworkBucket))
		if err != nil {
			return err
		}
		current, err := storedFrameworkVersion(bucket.Get([]byte(framework.EntityID)))
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return fmt.Errorf("framework %s at version %d, not %d: %w", framework.EntityID, current, expectedVersion, domain.ErrVersionConflict)
		}
		return bucket.Put([]byte(framework.EntityID), payload)
	})
	if err != nil {
		return err
	}
	framework.Version = next.Version
	return nil
}

func storedFrameworkVersion(raw []byte) (int64, error) {
	if raw == nil {
		return 0, nil
	}
	var head struct {
		Version int64 `bson:"version"`
	}
	if err := bson.Unmarshal(raw, &head); err != nil {
		return 0, err
	}
	return head.Version, nil
}
