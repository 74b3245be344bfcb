package domain

import "time"

// EventType classifies a relationship mutation.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// CleanupStrategy governs the reverse side of a deleted relationship.
type CleanupStrategy string

const (
	CleanupOrphan   CleanupStrategy = "orphan"
	CleanupCascade  CleanupStrategy = "cascade"
	CleanupReassign CleanupStrategy = "reassign"
)

// ParseCleanupStrategy defaults an empty value to orphan.
func ParseCleanupStrategy(raw string) (CleanupStrategy, error) {
	switch CleanupStrategy(raw) {
	case "":
		return CleanupOrphan, nil
	case CleanupOrphan, CleanupCascade, CleanupReassign:
		return CleanupStrategy(raw), nil
	default:
		return "", WrapError(ErrCodeInvalid, "unknown cleanup strategy "+raw, ErrInvalidPayload)
	}
}

// EventEntity identifies one endpoint of a relationship event.
type EventEntity struct {
	ID          string     `json:"id" bson:"id"`
	Type        EntityType `json:"type" bson:"type"`
	Collection  string     `json:"collection" bson:"collection"`
	DisplayName string     `json:"displayName,omitempty" bson:"displayName,omitempty"`
}

// EventEntityOf captures the endpoint data of an entity at event time.
func EventEntityOf(e *Entity) EventEntity {
	collection, _ := e.Collection()
	return EventEntity{
		ID:          e.ID,
		Type:        e.EntityType,
		Collection:  collection,
		DisplayName: e.DisplayName(),
	}
}

// RelationshipEvent is the immutable audit record of one relationship mutation.
type RelationshipEvent struct {
	ID               string           `json:"id" bson:"_id"`
	EventType        EventType        `json:"eventType" bson:"eventType"`
	SourceEntity     EventEntity      `json:"sourceEntity" bson:"sourceEntity"`
	TargetEntity     EventEntity      `json:"targetEntity" bson:"targetEntity"`
	RelationshipType RelationshipType `json:"relationshipType" bson:"relationshipType"`
	Relationship     Reference        `json:"relationship" bson:"relationship"`
	Timestamp        time.Time        `json:"timestamp" bson:"timestamp"`
	TriggeredBy      string           `json:"triggeredBy,omitempty" bson:"triggeredBy,omitempty"`
	CascadeRules     *CascadeRules    `json:"cascadeRules,omitempty" bson:"cascadeRules,omitempty"`
	Strategy         CleanupStrategy  `json:"strategy,omitempty" bson:"strategy,omitempty"`
}

// Involves reports whether the entity is either endpoint of the event.
func (e RelationshipEvent) Involves(entityID string) bool {
	return e.SourceEntity.ID == entityID || e.TargetEntity.ID == entityID
}
