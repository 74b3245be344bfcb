package repository

import (
	"context"

	"github.com/fastygo/relational/domain"
)

// QueryOp is a comparison operator for field queries.
type QueryOp string

const (
	OpEqual          QueryOp = "=="
	OpNotEqual       QueryOp = "!="
	OpLess           QueryOp = "<"
	OpLessOrEqual    QueryOp = "<="
	OpGreater        QueryOp = ">"
	OpGreaterOrEqual QueryOp = ">="
	OpExists         QueryOp = "exists"
)

// Valid reports whether the operator is supported by every store.
func (op QueryOp) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual, OpExists:
		return true
	default:
		return false
	}
}

// EntityStore is the document collection store the relational layer runs on.
// Writes are atomic per document only; nothing spans two documents.
//
// Put succeeds only when the persisted version equals expectedVersion (0 for a
// document that does not exist yet) and stores expectedVersion+1, updating
// entity.Metadata.Version in place. Otherwise it returns domain.ErrVersionConflict.
type EntityStore interface {
	Get(ctx context.Context, collection, id string) (*domain.Entity, error)
	Put(ctx context.Context, collection string, entity *domain.Entity, expectedVersion int64) error
	Delete(ctx context.Context, collection, id string, expectedVersion int64) error
	Query(ctx context.Context, collection, fieldPath string, op QueryOp, value any) ([]domain.Entity, error)
}
