package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

// Patch is a partial update of an entity's own data. Relationship maps are
// never patched here.
type Patch struct {
	Name        *string
	Status      *string
	SetFields   map[string]string
	UnsetFields []string
	UpdatedBy   string
}

type UseCase struct {
	store  repository.EntityStore
	now    func() time.Time
	logger *zap.Logger
}

func New(store repository.EntityStore, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// CreateEntity stores a new entity with no relationships. An empty id is
// generated as <type>_<uuid>.
func (uc *UseCase) CreateEntity(ctx context.Context, e *domain.Entity) (*domain.Entity, error) {
	if e == nil {
		return nil, domain.ErrInvalidPayload
	}
	collection, err := e.Collection()
	if err != nil {
		return nil, err
	}
	if e.Relationships.Len() > 0 {
		return nil, fmt.Errorf("relationships are managed through the relationship api: %w", domain.ErrInvalidPayload)
	}

	created := e.Clone()
	if created.ID == "" {
		created.ID = fmt.Sprintf("%s_%s", created.EntityType, uuid.NewString())
	}
	created.Relationships = nil
	created.Metadata = domain.EntityMetadata{UpdatedBy: e.Metadata.UpdatedBy}
	created.Touch(uc.now())

	if err := uc.store.Put(ctx, collection, created, 0); err != nil {
		return nil, err
	}
	uc.logger.Debug("entity created", zap.String("entity_id", created.ID), zap.String("entity_type", string(created.EntityType)))
	return created, nil
}

func (uc *UseCase) GetEntity(ctx context.Context, key domain.EntityKey) (*domain.Entity, error) {
	collection, err := key.Type.Collection()
	if err != nil {
		return nil, err
	}
	return uc.store.Get(ctx, collection, key.ID)
}

func (uc *UseCase) QueryEntities(ctx context.Context, entityType domain.EntityType, fieldPath string, op repository.QueryOp, value any) ([]domain.Entity, error) {
	collection, err := entityType.Collection()
	if err != nil {
		return nil, err
	}
	if !op.Valid() {
		return nil, fmt.Errorf("query operator %q: %w", op, domain.ErrInvalidPayload)
	}
	entities, err := uc.store.Query(ctx, collection, fieldPath, op, value)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []domain.Entity{}
	}
	return entities, nil
}

// UpdateEntity applies patch when the stored version still equals
// expectedVersion and returns the updated entity.
func (uc *UseCase) UpdateEntity(ctx context.Context, key domain.EntityKey, expectedVersion int64, patch Patch) (*domain.Entity, error) {
	collection, err := key.Type.Collection()
	if err != nil {
		return nil, err
	}
	e, err := uc.store.Get(ctx, collection, key.ID)
	if err != nil {
		return nil, err
	}
	if e.Metadata.Version != expectedVersion {
		return nil, fmt.Errorf("%s/%s at version %d, not %d: %w", collection, key.ID, e.Metadata.Version, expectedVersion, domain.ErrVersionConflict)
	}

	if patch.Name != nil {
		e.Name = *patch.Name
	}
	if patch.Status != nil {
		e.Status = *patch.Status
	}
	domain.EntityUpdate{SetFields: patch.SetFields, UnsetFields: patch.UnsetFields}.Apply(e)
	e.Touch(uc.now())
	e.Metadata.UpdatedBy = patch.UpdatedBy

	if err := uc.store.Put(ctx, collection, e, expectedVersion); err != nil {
		return nil, err
	}
	return e, nil
}
