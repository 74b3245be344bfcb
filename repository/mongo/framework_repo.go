package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

// FrameworkCollection holds one compliance framework per entity id.
const FrameworkCollection = "compliance_frameworks"

type frameworkRepository struct {
	coll *mongodriver.Collection
}

// NewFrameworkRepository creates a MongoDB-backed FrameworkRepository.
func NewFrameworkRepository(db *mongodriver.Database) repository.FrameworkRepository {
	return &frameworkRepository{coll: db.Collection(FrameworkCollection)}
}

func (r *frameworkRepository) Get(ctx context.Context, entityID string) (*domain.AS9100DComplianceFramework, error) {
	var fw domain.AS9100DComplianceFramework
	if err := r.coll.FindOne(ctx, bson.M{"_id": entityID}).Decode(&fw); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, domain.ErrFrameworkNotFound
		}
		return nil, err
	}
	return &fw, nil
}

func (r *frameworkRepository) Save(ctx context.Context, framework *domain.AS9100DComplianceFramework, expectedVersion int64) error {
	if framework == nil || framework.EntityID == "" {
		return domain.ErrInvalidPayload
	}
	next := *framework
	next.Version = expectedVersion + 1

	if expectedVersion == 0 {
		if _, err := r.coll.InsertOne(ctx, &next); err != nil {
			if mongodriver.IsDuplicateKeyError(err) {
				return fmt.Errorf("framework %s already exists: %w", framework.EntityID, domain.ErrVersionConflict)
			}
			return err
		}
		framework.Version = next.Version
		return nil
	}

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": framework.EntityID, "version": expectedVersion}, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("framework %s not at version %d: %w", framework.EntityID, expectedVersion, domain.ErrVersionConflict)
	}
	framework.Version = next.Version
	return nil
}
