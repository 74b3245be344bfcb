package transport

type CreateEntityRequest struct {
	ID         string            `json:"id" validate:"omitempty,max=128"`
	EntityType string            `json:"entityType" validate:"required"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	Fields     map[string]string `json:"fields"`
}

type UpdateEntityRequest struct {
	Version     int64             `json:"version" validate:"gte=0"`
	Name        *string           `json:"name"`
	Status      *string           `json:"status"`
	SetFields   map[string]string `json:"setFields"`
	UnsetFields []string          `json:"unsetFields"`
}

type CreateRelationshipRequest struct {
	SourceID         string `json:"sourceId" validate:"required"`
	SourceType       string `json:"sourceType" validate:"required"`
	TargetID         string `json:"targetId" validate:"required"`
	TargetType       string `json:"targetType" validate:"required"`
	RelationshipType string `json:"relationshipType" validate:"required"`
	DisplayName      string `json:"displayName"`
	TriggeredBy      string `json:"triggeredBy"`
}

type CascadeRulesRequest struct {
	OnParentDelete string `json:"onParentDelete" validate:"required,oneof=orphan delete update_parent"`
	OnChildDelete  string `json:"onChildDelete" validate:"required,oneof=orphan delete update_parent"`
}

type UpdateRelationshipRequest struct {
	SourceID         string               `json:"sourceId" validate:"required"`
	SourceType       string               `json:"sourceType" validate:"required"`
	RelationshipType string               `json:"relationshipType" validate:"required"`
	TargetID         string               `json:"targetId" validate:"required"`
	DisplayName      *string              `json:"displayName"`
	IsActive         *bool                `json:"isActive"`
	CascadeRules     *CascadeRulesRequest `json:"cascadeRules"`
	TriggeredBy      string               `json:"triggeredBy"`
}

type DeleteRelationshipRequest struct {
	SourceID         string `json:"sourceId" validate:"required"`
	SourceType       string `json:"sourceType" validate:"required"`
	RelationshipType string `json:"relationshipType" validate:"required"`
	TargetID         string `json:"targetId" validate:"required"`
	CleanupStrategy  string `json:"cleanupStrategy" validate:"omitempty,oneof=cascade orphan reassign"`
	TriggeredBy      string `json:"triggeredBy"`
}
