package domain

import "time"

// ComplianceStatus is the overall state of an entity's compliance framework.
type ComplianceStatus string

const (
	ComplianceCompliant     ComplianceStatus = "compliant"
	CompliancePendingReview ComplianceStatus = "pending_review"
	ComplianceNonCompliant  ComplianceStatus = "non_compliant"
)

// Compliance thresholds in percent.
const (
	CompliantThreshold     = 95
	PendingReviewThreshold = 70
)

// StatusForPercentage maps an assessment percentage onto a status.
func StatusForPercentage(percentage int) ComplianceStatus {
	switch {
	case percentage >= CompliantThreshold:
		return ComplianceCompliant
	case percentage >= PendingReviewThreshold:
		return CompliancePendingReview
	default:
		return ComplianceNonCompliant
	}
}

// ComplianceLevel grades how strictly a clause applies.
type ComplianceLevel string

const (
	LevelMandatory   ComplianceLevel = "mandatory"
	LevelConditional ComplianceLevel = "conditional"
)

// ClauseTraceability is the AS9100D clause that governs identification and traceability.
const ClauseTraceability = "8.5.2"

// ApplicableClause is one AS9100D clause attached to an entity.
type ApplicableClause struct {
	ClauseNumber    string          `json:"clauseNumber" bson:"clauseNumber"`
	ClauseTitle     string          `json:"clauseTitle" bson:"clauseTitle"`
	Requirement     string          `json:"requirement" bson:"requirement"`
	ComplianceLevel ComplianceLevel `json:"complianceLevel" bson:"complianceLevel"`
}

// ValidationRule is a named check run during assessment. ValidationFunction
// names the registered check rather than carrying code.
type ValidationRule struct {
	RuleID             string `json:"ruleId" bson:"ruleId"`
	Description        string `json:"description" bson:"description"`
	ValidationFunction string `json:"validationFunction" bson:"validationFunction"`
	IsActive           bool   `json:"isActive" bson:"isActive"`
}

// ComplianceRecord is the stored result of one assessment.
type ComplianceRecord struct {
	AssessedAt     time.Time        `json:"assessedAt" bson:"assessedAt"`
	Percentage     int              `json:"percentage" bson:"percentage"`
	Status         ComplianceStatus `json:"status" bson:"status"`
	CompliantCount int              `json:"compliantCount" bson:"compliantCount"`
	TotalClauses   int              `json:"totalClauses" bson:"totalClauses"`
}

// ComplianceAuditEntry records an action on the framework.
type ComplianceAuditEntry struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Action    string    `json:"action" bson:"action"`
	Details   string    `json:"details,omitempty" bson:"details,omitempty"`
}

// NonCompliance is an open finding against a clause.
type NonCompliance struct {
	ClauseNumber   string    `json:"clauseNumber" bson:"clauseNumber"`
	Description    string    `json:"description" bson:"description"`
	Recommendation string    `json:"recommendation" bson:"recommendation"`
	DetectedAt     time.Time `json:"detectedAt" bson:"detectedAt"`
}

// OverallCompliance is the latest assessment summary.
type OverallCompliance struct {
	Percentage     int              `json:"percentage" bson:"percentage"`
	Status         ComplianceStatus `json:"status" bson:"status"`
	LastAssessment time.Time        `json:"lastAssessment" bson:"lastAssessment"`
	NextAssessment time.Time        `json:"nextAssessment" bson:"nextAssessment"`
}

// AS9100DComplianceFramework is created once per entity and never deleted.
// Version follows the entity convention: 0 before the first save, N after N saves.
type AS9100DComplianceFramework struct {
	EntityID          string                 `json:"entityId" bson:"_id"`
	EntityType        EntityType             `json:"entityType" bson:"entityType"`
	ApplicableClauses []ApplicableClause     `json:"applicableClauses" bson:"applicableClauses"`
	ComplianceRecords []ComplianceRecord     `json:"complianceRecords" bson:"complianceRecords"`
	AuditTrail        []ComplianceAuditEntry `json:"auditTrail" bson:"auditTrail"`
	NonCompliances    []NonCompliance        `json:"nonCompliances" bson:"nonCompliances"`
	ValidationRules   []ValidationRule       `json:"validationRules" bson:"validationRules"`
	OverallCompliance OverallCompliance      `json:"overallCompliance" bson:"overallCompliance"`
	CreatedAt         time.Time              `json:"createdAt" bson:"createdAt"`
	Version           int64                  `json:"version" bson:"version"`
}

// ComplianceAssessment is the result returned to callers of an assessment.
type ComplianceAssessment struct {
	Percentage      int              `json:"percentage"`
	Status          ComplianceStatus `json:"status"`
	Issues          []string         `json:"issues"`
	Recommendations []string         `json:"recommendations"`
}
