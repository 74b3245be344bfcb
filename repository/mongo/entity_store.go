package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/repository/docquery"
)

type entityStore struct {
	db *mongodriver.Database
}

// NewEntityStore creates a MongoDB-backed EntityStore. Each logical collection
// maps onto the database collection of the same name.
func NewEntityStore(db *mongodriver.Database) repository.EntityStore {
	return &entityStore{db: db}
}

func (s *entityStore) Get(ctx context.Context, collection, id string) (*domain.Entity, error) {
	var entity domain.Entity
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&entity)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrEntityNotFound)
		}
		return nil, err
	}
	return &entity, nil
}

func (s *entityStore) Put(ctx context.Context, collection string, entity *domain.Entity, expectedVersion int64) error {
	if entity == nil || entity.ID == "" || collection == "" {
		return domain.ErrInvalidPayload
	}

	next := entity.Clone()
	next.Metadata.Version = expectedVersion + 1
	coll := s.db.Collection(collection)

	if expectedVersion == 0 {
		if _, err := coll.InsertOne(ctx, next); err != nil {
			if mongodriver.IsDuplicateKeyError(err) {
				return fmt.Errorf("%s/%s already exists: %w", collection, entity.ID, domain.ErrVersionConflict)
			}
			return err
		}
		entity.Metadata.Version = next.Metadata.Version
		return nil
	}

	res, err := coll.ReplaceOne(ctx, versionFilter(entity.ID, expectedVersion), next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s not at version %d: %w", collection, entity.ID, expectedVersion, domain.ErrVersionConflict)
	}
	entity.Metadata.Version = next.Metadata.Version
	return nil
}

func (s *entityStore) Delete(ctx context.Context, collection, id string, expectedVersion int64) error {
	coll := s.db.Collection(collection)
	res, err := coll.DeleteOne(ctx, versionFilter(id, expectedVersion))
	if err != nil {
		return err
	}
	if res.DeletedCount > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrEntityNotFound)
	}
	return fmt.Errorf("%s/%s not at version %d: %w", collection, id, expectedVersion, domain.ErrVersionConflict)
}

func (s *entityStore) Query(ctx context.Context, collection, fieldPath string, op repository.QueryOp, value any) ([]domain.Entity, error) {
	filter, err := BuildFilter(fieldPath, op, value)
	if err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entities []domain.Entity
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// BuildFilter translates a field predicate into a MongoDB query document.
func BuildFilter(fieldPath string, op repository.QueryOp, value any) (bson.D, error) {
	path := docquery.StoredPath(fieldPath)
	if path == "" {
		return nil, fmt.Errorf("empty field path: %w", domain.ErrInvalidPayload)
	}

	var operator string
	switch op {
	case repository.OpEqual:
		return bson.D{{Key: path, Value: value}}, nil
	case repository.OpNotEqual:
		operator = "$ne"
	case repository.OpLess:
		operator = "$lt"
	case repository.OpLessOrEqual:
		operator = "$lte"
	case repository.OpGreater:
		operator = "$gt"
	case repository.OpGreaterOrEqual:
		operator = "$gte"
	case repository.OpExists:
		want, _ := value.(bool)
		if value == nil {
			want = true
		}
		return bson.D{{Key: path, Value: bson.D{{Key: "$exists", Value: want}}}}, nil
	default:
		return nil, fmt.Errorf("query operator %q: %w", op, domain.ErrInvalidPayload)
	}
	return bson.D{{Key: path, Value: bson.D{{Key: operator, Value: value}}}}, nil
}

func versionFilter(id string, version int64) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "metadata.version", Value: version},
	}
}
