// Package docquery evaluates field-path predicates against entities in their
// stored bson form, so embedded stores answer queries the way the hosted
// document store does.
package docquery

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

// Encode marshals an entity with the same codec the document stores use.
func Encode(e *domain.Entity) ([]byte, error) {
	return bson.Marshal(e)
}

// Decode is the inverse of Encode.
func Decode(raw []byte) (*domain.Entity, error) {
	var e domain.Entity
	if err := bson.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Document converts an entity to a generic bson map.
func Document(e *domain.Entity) (bson.M, error) {
	raw, err := Encode(e)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// StoredPath maps API field paths to stored field names.
func StoredPath(path string) string {
	if path == "id" {
		return "_id"
	}
	return path
}

// Lookup walks a dotted path through nested documents.
func Lookup(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(StoredPath(path), ".") {
		switch node := cur.(type) {
		case bson.M:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case bson.D:
			found := false
			for _, e := range node {
				if e.Key == part {
					cur, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

// Match evaluates one predicate.
func Match(doc bson.M, path string, op repository.QueryOp, value any) (bool, error) {
	if !op.Valid() {
		return false, fmt.Errorf("query operator %q: %w", op, domain.ErrInvalidPayload)
	}
	actual, ok := Lookup(doc, path)
	if op == repository.OpExists {
		want, _ := value.(bool)
		if value == nil {
			want = true
		}
		return ok == want, nil
	}
	if !ok {
		return op == repository.OpNotEqual, nil
	}
	cmp, comparable := compare(actual, value)
	switch op {
	case repository.OpEqual:
		return comparable && cmp == 0, nil
	case repository.OpNotEqual:
		return !comparable || cmp != 0, nil
	case repository.OpLess:
		return comparable && cmp < 0, nil
	case repository.OpLessOrEqual:
		return comparable && cmp <= 0, nil
	case repository.OpGreater:
		return comparable && cmp > 0, nil
	case repository.OpGreaterOrEqual:
		return comparable && cmp >= 0, nil
	}
	return false, nil
}

// Filter keeps the entities matching the predicate, preserving order.
func Filter(entities []domain.Entity, path string, op repository.QueryOp, value any) ([]domain.Entity, error) {
	var out []domain.Entity
	for i := range entities {
		doc, err := Document(&entities[i])
		if err != nil {
			return nil, err
		}
		ok, err := Match(doc, path, op, value)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entities[i])
		}
	}
	return out, nil
}

func compare(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if at, ok := toTime(a); ok {
		bt, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok || ab != bb {
			return 1, ok
		}
		return 0, true
	}
	as, ok := toString(a)
	if !ok {
		return 0, false
	}
	bs, ok := toString(b)
	if !ok {
		return 0, false
	}
	return strings.Compare(as, bs), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	default:
		return time.Time{}, false
	}
}

func toString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), true
	}
	return "", false
}
