package compliance

import "github.com/fastygo/relational/domain"

var commonClauses = []domain.ApplicableClause{
	{
		ClauseNumber:    "4.4",
		ClauseTitle:     "Quality management system and its processes",
		Requirement:     "Processes producing the record are defined and controlled",
		ComplianceLevel: domain.LevelMandatory,
	},
	{
		ClauseNumber:    "7.5.3",
		ClauseTitle:     "Control of documented information",
		Requirement:     "Documented information is retained and protected from loss of integrity",
		ComplianceLevel: domain.LevelMandatory,
	},
	{
		ClauseNumber:    domain.ClauseTraceability,
		ClauseTitle:     "Identification and traceability",
		Requirement:     "Outputs are uniquely identified and traceable through their full production history",
		ComplianceLevel: domain.LevelMandatory,
	},
}

var typeClauses = map[domain.EntityType][]domain.ApplicableClause{
	domain.EntityCustomer: {
		{ClauseNumber: "8.2.2", ClauseTitle: "Determining the requirements for products and services", Requirement: "Customer requirements are captured", ComplianceLevel: domain.LevelMandatory},
	},
	domain.EntityOrder: {
		{ClauseNumber: "8.2.3", ClauseTitle: "Review of the requirements for products and services", Requirement: "Order requirements are reviewed before acceptance", ComplianceLevel: domain.LevelMandatory},
	},
	domain.EntityJob: {
		{ClauseNumber: "8.5.1", ClauseTitle: "Control of production and service provision", Requirement: "Production runs under controlled conditions", ComplianceLevel: domain.LevelMandatory},
		{ClauseNumber: "8.6", ClauseTitle: "Release of products and services", Requirement: "Release is authorized after planned verification", ComplianceLevel: domain.LevelMandatory},
	},
	domain.EntityTask: {
		{ClauseNumber: "8.5.1", ClauseTitle: "Control of production and service provision", Requirement: "Work instructions are available at the point of use", ComplianceLevel: domain.LevelMandatory},
	},
	domain.EntitySubtask: {
		{ClauseNumber: "8.5.1", ClauseTitle: "Control of production and service provision", Requirement: "Work instructions are available at the point of use", ComplianceLevel: domain.LevelConditional},
	},
	domain.EntityMachine: {
		{ClauseNumber: "7.1.5", ClauseTitle: "Monitoring and measuring resources", Requirement: "Equipment is calibrated and maintained", ComplianceLevel: domain.LevelMandatory},
	},
	domain.EntityOperator: {
		{ClauseNumber: "7.2", ClauseTitle: "Competence", Requirement: "Operators are qualified for the work they perform", ComplianceLevel: domain.LevelMandatory},
	},
	domain.EntityMaterialLot: {
		{ClauseNumber: "8.4", ClauseTitle: "Control of externally provided processes, products and services", Requirement: "Material conforms to purchase requirements", ComplianceLevel: domain.LevelMandatory},
	},
	domain.EntitySupplier: {
		{ClauseNumber: "8.4.1", ClauseTitle: "General control of external providers", Requirement: "Supplier is approved and monitored", ComplianceLevel: domain.LevelMandatory},
	},
	domain.EntityPartInstance: {
		{ClauseNumber: "8.5.4", ClauseTitle: "Preservation", Requirement: "Parts are preserved during processing and delivery", ComplianceLevel: domain.LevelConditional},
		{ClauseNumber: "8.6", ClauseTitle: "Release of products and services", Requirement: "Release is authorized after planned verification", ComplianceLevel: domain.LevelMandatory},
	},
	domain.EntityQualityRecord: {
		{ClauseNumber: "8.7", ClauseTitle: "Control of nonconforming outputs", Requirement: "Nonconforming outputs are identified and controlled", ComplianceLevel: domain.LevelMandatory},
		{ClauseNumber: "9.1.1", ClauseTitle: "Monitoring, measurement, analysis and evaluation", Requirement: "Inspection results are recorded", ComplianceLevel: domain.LevelMandatory},
	},
}

// Validation functions with a registered check.
const (
	RuleTraceabilityChain = "validateTraceabilityChain"
)

// clauseRules binds clauses to the validation function that assesses them.
var clauseRules = map[string]string{
	domain.ClauseTraceability: RuleTraceabilityChain,
}

var validationRules = []domain.ValidationRule{
	{RuleID: "VR-001", Description: "Traceability chain covers every required link type", ValidationFunction: RuleTraceabilityChain, IsActive: true},
	{RuleID: "VR-002", Description: "Every bidirectional reference has its mirror", ValidationFunction: "validateRelationshipIntegrity", IsActive: true},
	{RuleID: "VR-003", Description: "Records are retained for the configured retention period", ValidationFunction: "validateRetention", IsActive: true},
}

// ClausesFor returns the common clauses followed by the clauses specific to entityType.
func ClausesFor(entityType domain.EntityType) []domain.ApplicableClause {
	out := make([]domain.ApplicableClause, 0, len(commonClauses)+len(typeClauses[entityType]))
	out = append(out, commonClauses...)
	return append(out, typeClauses[entityType]...)
}

// ValidationRules returns the static validation rule set.
func ValidationRules() []domain.ValidationRule {
	return append([]domain.ValidationRule(nil), validationRules...)
}
