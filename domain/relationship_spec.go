package domain

import (
	"fmt"
	"sort"
	"time"
)

// Direction places the target relative to the source in the ownership hierarchy.
type Direction string

const (
	DirectionChild  Direction = "child"
	DirectionParent Direction = "parent"
	DirectionPeer   Direction = "peer"
)

// RelationshipSpec is the static configuration of one relationship slot.
type RelationshipSpec struct {
	Source    EntityType
	Type      RelationshipType
	Target    EntityType
	Reverse   RelationshipType
	Direction Direction
	Triggers  *EventTriggers
	Cascade   *CascadeRules
}

// Bidirectional reports whether a mirror reference must exist on the target.
func (s RelationshipSpec) Bidirectional() bool {
	return s.Reverse != ""
}

// Variant is the reference variant produced for this slot.
func (s RelationshipSpec) Variant() ReferenceVariant {
	switch {
	case s.Bidirectional() && (s.Triggers != nil || s.Cascade != nil):
		return VariantEventDriven
	case s.Bidirectional():
		return VariantBidirectional
	default:
		return VariantPlain
	}
}

// CascadeRules returns the configured rules, defaulting both sides to orphan.
func (s RelationshipSpec) CascadeRules() CascadeRules {
	if s.Cascade == nil {
		return CascadeRules{OnParentDelete: CascadeOrphan, OnChildDelete: CascadeOrphan}
	}
	return *s.Cascade
}

// NewReference builds the reference stored under Source.relationships[Type].
func (s RelationshipSpec) NewReference(targetID, displayName string, now time.Time) (Reference, error) {
	targetCollection, err := s.Target.Collection()
	if err != nil {
		return Reference{}, err
	}
	ref := Reference{
		ID:         targetID,
		Collection: targetCollection,
		Metadata: ReferenceMetadata{
			DisplayName:      displayName,
			LastUpdated:      now,
			IsActive:         true,
			RelationshipType: s.Type,
		},
	}
	if s.Bidirectional() {
		ref.Reverse = &ReverseReference{Collection: targetCollection, Field: s.Reverse}
	}
	if s.Triggers != nil {
		tr := *s.Triggers
		ref.Triggers = &tr
	}
	if s.Cascade != nil {
		c := *s.Cascade
		ref.Cascade = &c
	}
	return ref.Clone(), nil
}

type specKey struct {
	source  EntityType
	relType RelationshipType
}

var hierarchyTriggers = &EventTriggers{
	OnCreate: []Action{ActionCountChildren, ActionSyncDisplayName},
	OnUpdate: []Action{ActionSyncDisplayName, ActionTouchParent},
	OnDelete: []Action{ActionCountChildren},
}

var relationshipSpecs = buildSpecs(
	hierarchy(EntityCustomer, RelOrders, EntityOrder, RelCustomer, CascadeOrphan),
	hierarchy(EntityOrder, RelJobs, EntityJob, RelOrder, CascadeDelete),
	hierarchy(EntityJob, RelTasks, EntityTask, RelJob, CascadeDelete),
	hierarchy(EntityTask, RelSubtasks, EntitySubtask, RelTask, CascadeDelete),
	hierarchy(EntityJob, RelPartInstances, EntityPartInstance, RelJob, CascadeUpdateParent),
	hierarchy(EntityJob, RelQualityRecords, EntityQualityRecord, RelJob, CascadeOrphan),
	hierarchy(EntitySupplier, RelMaterialLots, EntityMaterialLot, RelSupplier, CascadeOrphan),
	peer(EntityJob, RelMachine, EntityMachine, RelJobs),
	peer(EntityJob, RelOperator, EntityOperator, RelJobs),
	peer(EntityJob, RelMaterialLots, EntityMaterialLot, RelJobs),
	peer(EntityPartInstance, RelMaterialLot, EntityMaterialLot, RelPartInstances),
	peer(EntityQualityRecord, RelOperator, EntityOperator, RelQualityRecords),
	plain(EntityCustomer, RelPreferredSuppliers, EntitySupplier),
)

// RelPreferredSuppliers is a one-way pointer with no mirror.
const RelPreferredSuppliers RelationshipType = "preferredSuppliers"

// hierarchy registers a parent->child slot and its child->parent mirror.
func hierarchy(parent EntityType, rel RelationshipType, child EntityType, reverse RelationshipType, onParentDelete CascadePolicy) []RelationshipSpec {
	return []RelationshipSpec{
		{
			Source:    parent,
			Type:      rel,
			Target:    child,
			Reverse:   reverse,
			Direction: DirectionChild,
			Triggers:  hierarchyTriggers,
			Cascade:   &CascadeRules{OnParentDelete: onParentDelete, OnChildDelete: CascadeUpdateParent},
		},
		{
			Source:    child,
			Type:      reverse,
			Target:    parent,
			Reverse:   rel,
			Direction: DirectionParent,
		},
	}
}

// peer registers two mirrored slots with no ownership between them.
func peer(a EntityType, relA RelationshipType, b EntityType, relB RelationshipType) []RelationshipSpec {
	rules := &CascadeRules{OnParentDelete: CascadeUpdateParent, OnChildDelete: CascadeUpdateParent}
	return []RelationshipSpec{
		{
			Source:    a,
			Type:      relA,
			Target:    b,
			Reverse:   relB,
			Direction: DirectionPeer,
			Triggers:  &EventTriggers{OnCreate: []Action{ActionSyncDisplayName}, OnUpdate: []Action{ActionSyncDisplayName}},
			Cascade:   rules,
		},
		{
			Source:    b,
			Type:      relB,
			Target:    a,
			Reverse:   relA,
			Direction: DirectionPeer,
			Cascade:   rules,
		},
	}
}

func plain(source EntityType, rel RelationshipType, target EntityType) []RelationshipSpec {
	return []RelationshipSpec{{Source: source, Type: rel, Target: target, Direction: DirectionPeer}}
}

func buildSpecs(groups ...[]RelationshipSpec) map[specKey]RelationshipSpec {
	out := make(map[specKey]RelationshipSpec)
	for _, group := range groups {
		for _, spec := range group {
			key := specKey{source: spec.Source, relType: spec.Type}
			if _, dup := out[key]; dup {
				panic(fmt.Sprintf("relationship %s.%s registered twice", spec.Source, spec.Type))
			}
			out[key] = spec
		}
	}
	return out
}

// LookupRelationship resolves the configuration of source.relationships[relType].
func LookupRelationship(source EntityType, relType RelationshipType) (RelationshipSpec, error) {
	spec, ok := relationshipSpecs[specKey{source: source, relType: relType}]
	if !ok {
		return RelationshipSpec{}, fmt.Errorf("%s.%s: %w", source, relType, ErrUnknownRelationship)
	}
	return spec, nil
}

// ReverseSpec resolves the mirror slot of a bidirectional spec.
func (s RelationshipSpec) ReverseSpec() (RelationshipSpec, bool) {
	if !s.Bidirectional() {
		return RelationshipSpec{}, false
	}
	rs, ok := relationshipSpecs[specKey{source: s.Target, relType: s.Reverse}]
	return rs, ok
}

// RelationshipSpecs lists every configured slot in a stable order.
func RelationshipSpecs() []RelationshipSpec {
	out := make([]RelationshipSpec, 0, len(relationshipSpecs))
	for _, spec := range relationshipSpecs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Type < out[j].Type
	})
	return out
}
