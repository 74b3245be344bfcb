package domain

import (
	"fmt"
	"sort"
	"time"
)

// EntityType names the closed set of manufacturing records tracked by the graph.
type EntityType string

const (
	EntityCustomer      EntityType = "customer"
	EntityOrder         EntityType = "order"
	EntityJob           EntityType = "job"
	EntityTask          EntityType = "task"
	EntitySubtask       EntityType = "subtask"
	EntityMachine       EntityType = "machine"
	EntityOperator      EntityType = "operator"
	EntityMaterialLot   EntityType = "material_lot"
	EntityPartInstance  EntityType = "part_instance"
	EntitySupplier      EntityType = "supplier"
	EntityQualityRecord EntityType = "quality_record"
)

var entityCollections = map[EntityType]string{
	EntityCustomer:      "customers",
	EntityOrder:         "orders",
	EntityJob:           "jobs",
	EntityTask:          "tasks",
	EntitySubtask:       "subtasks",
	EntityMachine:       "machines",
	EntityOperator:      "operators",
	EntityMaterialLot:   "material_lots",
	EntityPartInstance:  "part_instances",
	EntitySupplier:      "suppliers",
	EntityQualityRecord: "quality_records",
}

var collectionEntities = func() map[string]EntityType {
	out := make(map[string]EntityType, len(entityCollections))
	for t, c := range entityCollections {
		out[c] = t
	}
	return out
}()

// EntityTypes returns every configured entity type in a stable order.
func EntityTypes() []EntityType {
	types := make([]EntityType, 0, len(entityCollections))
	for t := range entityCollections {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Collection resolves the logical collection holding entities of this type.
func (t EntityType) Collection() (string, error) {
	c, ok := entityCollections[t]
	if !ok {
		return "", fmt.Errorf("%q: %w", string(t), ErrUnknownEntityType)
	}
	return c, nil
}

// Valid reports whether the type is configured.
func (t EntityType) Valid() bool {
	_, ok := entityCollections[t]
	return ok
}

// EntityTypeForCollection is the inverse of EntityType.Collection.
func EntityTypeForCollection(collection string) (EntityType, error) {
	t, ok := collectionEntities[collection]
	if !ok {
		return "", fmt.Errorf("collection %q: %w", collection, ErrUnknownEntityType)
	}
	return t, nil
}

// ParseEntityType validates a raw entity type string.
func ParseEntityType(raw string) (EntityType, error) {
	t := EntityType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("%q: %w", raw, ErrUnknownEntityType)
	}
	return t, nil
}

// EntityMetadata tracks write bookkeeping. Version starts at 0 for a document
// that was never written and is bumped by exactly one on every successful put.
type EntityMetadata struct {
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	Version   int64     `json:"version" bson:"version"`
}

// Entity is one document in one collection, keyed by (collection, id).
type Entity struct {
	ID            string            `json:"id" bson:"_id"`
	EntityType    EntityType        `json:"entityType" bson:"entityType"`
	Name          string            `json:"name,omitempty" bson:"name,omitempty"`
	Status        string            `json:"status,omitempty" bson:"status,omitempty"`
	Fields        map[string]string `json:"fields,omitempty" bson:"fields,omitempty"`
	Counters      map[string]int64  `json:"counters,omitempty" bson:"counters,omitempty"`
	Relationships Relationships     `json:"relationships,omitempty" bson:"relationships,omitempty"`
	Metadata      EntityMetadata    `json:"metadata" bson:"metadata"`
}

// Collection resolves the entity's collection from its type.
func (e *Entity) Collection() (string, error) {
	if e == nil {
		return "", ErrInvalidPayload
	}
	return e.EntityType.Collection()
}

// Touch refreshes the write timestamps ahead of a put.
func (e *Entity) Touch(now time.Time) {
	if e == nil {
		return
	}
	e.Metadata.UpdatedAt = now
	if e.Metadata.CreatedAt.IsZero() {
		e.Metadata.CreatedAt = now
	}
}

// DisplayName falls back to the id when the entity carries no name.
func (e *Entity) DisplayName() string {
	if e == nil {
		return ""
	}
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	if e.Fields != nil {
		out.Fields = make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			out.Fields[k] = v
		}
	}
	if e.Counters != nil {
		out.Counters = make(map[string]int64, len(e.Counters))
		for k, v := range e.Counters {
			out.Counters[k] = v
		}
	}
	out.Relationships = e.Relationships.Clone()
	return &out
}

// EntityKey addresses an entity without loading it.
type EntityKey struct {
	ID   string     `json:"id"`
	Type EntityType `json:"type"`
}
