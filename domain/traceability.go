package domain

import "time"

// OperatorUnknown marks chain links whose acting operator could not be resolved.
const OperatorUnknown = "unknown"

// ChainLink is one entity discovered while walking the relationship graph.
type ChainLink struct {
	EntityID      string      `json:"entityId"`
	EntityType    EntityType  `json:"entityType"`
	Depth         int         `json:"depth"`
	Relationships []Reference `json:"relationships"`
	Timestamp     time.Time   `json:"timestamp"`
	Operator      string      `json:"operator"`
}

// AuditEntry is a condensed relationship event attached to a chain.
type AuditEntry struct {
	EventID          string           `json:"eventId"`
	EventType        EventType        `json:"eventType"`
	RelationshipType RelationshipType `json:"relationshipType"`
	SourceID         string           `json:"sourceId"`
	TargetID         string           `json:"targetId"`
	Timestamp        time.Time        `json:"timestamp"`
	TriggeredBy      string           `json:"triggeredBy,omitempty"`
}

// AuditEntryOf condenses a relationship event.
func AuditEntryOf(e RelationshipEvent) AuditEntry {
	return AuditEntry{
		EventID:          e.ID,
		EventType:        e.EventType,
		RelationshipType: e.RelationshipType,
		SourceID:         e.SourceEntity.ID,
		TargetID:         e.TargetEntity.ID,
		Timestamp:        e.Timestamp,
		TriggeredBy:      e.TriggeredBy,
	}
}

// ChainCompliance is the audit envelope of a traceability chain.
type ChainCompliance struct {
	AS9100DClauses  []string     `json:"as9100dClauses"`
	AuditTrail      []AuditEntry `json:"auditTrail"`
	RetentionPeriod int          `json:"retentionPeriod"`
}

// TraceabilityChain is a view built per request; it is never persisted.
type TraceabilityChain struct {
	RootEntity  Reference       `json:"rootEntity"`
	Chain       []ChainLink     `json:"chain"`
	Compliance  ChainCompliance `json:"compliance"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Truncated   bool            `json:"truncated"`
}

// PresentTypes returns the distinct entity types in the chain, root excluded.
func (c *TraceabilityChain) PresentTypes() map[EntityType]struct{} {
	out := make(map[EntityType]struct{})
	if c == nil {
		return out
	}
	for _, link := range c.Chain {
		out[link.EntityType] = struct{}{}
	}
	return out
}

// TraceabilityValidation scores chain coverage against the required link types.
type TraceabilityValidation struct {
	IsComplete      bool     `json:"isComplete"`
	MissingLinks    []string `json:"missingLinks"`
	ComplianceLevel int      `json:"complianceLevel"`
}

// IntegrityReport is the diagnostic output of an integrity pass.
type IntegrityReport struct {
	EntityID        string     `json:"entityId"`
	EntityType      EntityType `json:"entityType"`
	IsValid         bool       `json:"isValid"`
	Issues          []string   `json:"issues"`
	Recommendations []string   `json:"recommendations"`
}

// AddIssue records one issue and its paired recommendation.
func (r *IntegrityReport) AddIssue(issue, recommendation string) {
	r.Issues = append(r.Issues, issue)
	r.Recommendations = append(r.Recommendations, recommendation)
	r.IsValid = false
}
