package domain

import (
	"sort"
	"time"
)

// RelationshipType names a relationship slot on an entity, e.g. "orders" on a customer.
type RelationshipType string

const (
	RelOrders         RelationshipType = "orders"
	RelCustomer       RelationshipType = "customerId"
	RelJobs           RelationshipType = "jobs"
	RelOrder          RelationshipType = "orderId"
	RelTasks          RelationshipType = "tasks"
	RelJob            RelationshipType = "jobId"
	RelSubtasks       RelationshipType = "subtasks"
	RelTask           RelationshipType = "taskId"
	RelMachine        RelationshipType = "machineId"
	RelOperator       RelationshipType = "operatorId"
	RelMaterialLots   RelationshipType = "materialLots"
	RelMaterialLot    RelationshipType = "materialLotId"
	RelSupplier       RelationshipType = "supplierId"
	RelPartInstances  RelationshipType = "partInstances"
	RelQualityRecords RelationshipType = "qualityRecords"
)

// ReferenceVariant reports how much behavior a reference carries.
type ReferenceVariant string

const (
	VariantPlain         ReferenceVariant = "plain"
	VariantBidirectional ReferenceVariant = "bidirectional"
	VariantEventDriven   ReferenceVariant = "event_driven"
)

// CascadePolicy decides what happens on the other side when an endpoint is deleted.
type CascadePolicy string

const (
	CascadeOrphan       CascadePolicy = "orphan"
	CascadeDelete       CascadePolicy = "delete"
	CascadeUpdateParent CascadePolicy = "update_parent"
)

// Action names a derivation step run by the event manager.
type Action string

const (
	ActionCountChildren   Action = "count_children"
	ActionSyncDisplayName Action = "sync_display_name"
	ActionTouchParent     Action = "touch_parent"
)

// ReferenceMetadata is the display data carried by every reference.
type ReferenceMetadata struct {
	DisplayName      string           `json:"displayName" bson:"displayName"`
	LastUpdated      time.Time        `json:"lastUpdated" bson:"lastUpdated"`
	IsActive         bool             `json:"isActive" bson:"isActive"`
	RelationshipType RelationshipType `json:"relationshipType" bson:"relationshipType"`
}

// ReverseReference declares where the mirror pointer must live.
type ReverseReference struct {
	Collection string           `json:"collection" bson:"collection"`
	Field      RelationshipType `json:"field" bson:"field"`
}

// EventTriggers lists actions per mutation kind.
type EventTriggers struct {
	OnCreate []Action `json:"onCreate,omitempty" bson:"onCreate,omitempty"`
	OnUpdate []Action `json:"onUpdate,omitempty" bson:"onUpdate,omitempty"`
	OnDelete []Action `json:"onDelete,omitempty" bson:"onDelete,omitempty"`
}

// For returns the actions configured for an event type.
func (t *EventTriggers) For(eventType EventType) []Action {
	if t == nil {
		return nil
	}
	switch eventType {
	case EventCreate:
		return t.OnCreate
	case EventUpdate:
		return t.OnUpdate
	case EventDelete:
		return t.OnDelete
	default:
		return nil
	}
}

// CascadeRules describe delete propagation in both directions.
type CascadeRules struct {
	OnParentDelete CascadePolicy `json:"onParentDelete" bson:"onParentDelete"`
	OnChildDelete  CascadePolicy `json:"onChildDelete" bson:"onChildDelete"`
}

// Reference is a typed pointer to another entity. The optional parts select the
// variant: Reverse makes it bidirectional, Triggers and Cascade make it event-driven.
type Reference struct {
	ID         string            `json:"id" bson:"id"`
	Collection string            `json:"collection" bson:"collection"`
	Metadata   ReferenceMetadata `json:"metadata" bson:"metadata"`
	Reverse    *ReverseReference `json:"reverseReference,omitempty" bson:"reverseReference,omitempty"`
	Triggers   *EventTriggers    `json:"eventTriggers,omitempty" bson:"eventTriggers,omitempty"`
	Cascade    *CascadeRules     `json:"cascadeRules,omitempty" bson:"cascadeRules,omitempty"`
}

// Variant derives the reference variant from the parts it carries.
func (r Reference) Variant() ReferenceVariant {
	switch {
	case r.Reverse != nil && (r.Triggers != nil || r.Cascade != nil):
		return VariantEventDriven
	case r.Reverse != nil:
		return VariantBidirectional
	default:
		return VariantPlain
	}
}

// Clone copies the optional parts so the result shares no pointers.
func (r Reference) Clone() Reference {
	out := r
	if r.Reverse != nil {
		rev := *r.Reverse
		out.Reverse = &rev
	}
	if r.Triggers != nil {
		tr := EventTriggers{
			OnCreate: append([]Action(nil), r.Triggers.OnCreate...),
			OnUpdate: append([]Action(nil), r.Triggers.OnUpdate...),
			OnDelete: append([]Action(nil), r.Triggers.OnDelete...),
		}
		out.Triggers = &tr
	}
	if r.Cascade != nil {
		c := *r.Cascade
		out.Cascade = &c
	}
	return out
}

// Relationships is the per-entity multimap from relationship type to ordered references.
type Relationships map[RelationshipType][]Reference

// Find locates the reference to targetID under relType.
func (r Relationships) Find(relType RelationshipType, targetID string) (Reference, int, bool) {
	for i, ref := range r[relType] {
		if ref.ID == targetID {
			return ref, i, true
		}
	}
	return Reference{}, -1, false
}

// Has reports whether relType already points at targetID.
func (r Relationships) Has(relType RelationshipType, targetID string) bool {
	_, _, ok := r.Find(relType, targetID)
	return ok
}

// Add appends ref under relType and reports false if the pair already exists.
func (r Relationships) Add(relType RelationshipType, ref Reference) bool {
	if r.Has(relType, ref.ID) {
		return false
	}
	r[relType] = append(r[relType], ref)
	return true
}

// Remove drops the reference to targetID under relType.
func (r Relationships) Remove(relType RelationshipType, targetID string) (Reference, bool) {
	ref, idx, ok := r.Find(relType, targetID)
	if !ok {
		return Reference{}, false
	}
	refs := r[relType]
	refs = append(refs[:idx:idx], refs[idx+1:]...)
	if len(refs) == 0 {
		delete(r, relType)
	} else {
		r[relType] = refs
	}
	return ref, true
}

// Replace overwrites the reference to ref.ID under relType in place.
func (r Relationships) Replace(relType RelationshipType, ref Reference) bool {
	_, idx, ok := r.Find(relType, ref.ID)
	if !ok {
		return false
	}
	r[relType][idx] = ref
	return true
}

// Types returns the populated relationship types in a stable order.
func (r Relationships) Types() []RelationshipType {
	types := make([]RelationshipType, 0, len(r))
	for t := range r {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Len counts every reference across all types.
func (r Relationships) Len() int {
	n := 0
	for _, refs := range r {
		n += len(refs)
	}
	return n
}

// Clone deep-copies the multimap.
func (r Relationships) Clone() Relationships {
	if r == nil {
		return nil
	}
	out := make(Relationships, len(r))
	for t, refs := range r {
		cp := make([]Reference, len(refs))
		for i, ref := range refs {
			cp[i] = ref.Clone()
		}
		out[t] = cp
	}
	return out
}
