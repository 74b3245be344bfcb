// Package compliance keeps one AS9100D framework per entity and scores it
// clause by clause.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/pkg/metrics"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/usecase"
)

// DefaultReviewInterval is the time between scheduled assessments.
const DefaultReviewInterval = 90 * 24 * time.Hour

type clauseResult struct {
	compliant      bool
	issue          string
	recommendation string
}

type clauseCheck func(ctx context.Context, framework *domain.AS9100DComplianceFramework, clause domain.ApplicableClause) (clauseResult, error)

type UseCase struct {
	frameworks repository.FrameworkRepository
	store      repository.EntityStore
	validator  usecase.TraceabilityValidator
	checks     map[string]clauseCheck
	interval   time.Duration
	retries    int
	now        func() time.Time
	logger     *zap.Logger
}

// Option customizes a UseCase.
type Option func(*UseCase)

// WithReviewInterval sets the gap between lastAssessment and nextAssessment.
func WithReviewInterval(interval time.Duration) Option {
	return func(uc *UseCase) {
		if interval > 0 {
			uc.interval = interval
		}
	}
}

// WithConflictRetries bounds read-modify-write retries per framework.
func WithConflictRetries(n int) Option {
	return func(uc *UseCase) { uc.retries = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func New(frameworks repository.FrameworkRepository, store repository.EntityStore, validator usecase.TraceabilityValidator, logger *zap.Logger, opts ...Option) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	uc := &UseCase{
		frameworks: frameworks,
		store:      store,
		validator:  validator,
		interval:   DefaultReviewInterval,
		retries:    3,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
	uc.checks = map[string]clauseCheck{
		RuleTraceabilityChain: uc.checkTraceability,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// InitializeComplianceFramework returns the framework of an entity, creating
// it on first use. An existing framework is returned unchanged, including one
// created by a concurrent call.
func (uc *UseCase) InitializeComplianceFramework(ctx context.Context, entityID string, entityType domain.EntityType) (*domain.AS9100DComplianceFramework, error) {
	for attempt := 0; ; attempt++ {
		existing, err := uc.frameworks.Get(ctx, entityID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrFrameworkNotFound) {
			return nil, err
		}

		framework, err := uc.create(ctx, entityID, entityType)
		if err == nil {
			return framework, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= uc.retries {
			return nil, err
		}
		metrics.VersionConflicts.Inc()
	}
}

func (uc *UseCase) create(ctx context.Context, entityID string, entityType domain.EntityType) (*domain.AS9100DComplianceFramework, error) {
	collection, err := entityType.Collection()
	if err != nil {
		return nil, err
	}
	if _, err := uc.store.Get(ctx, collection, entityID); err != nil {
		return nil, err
	}

	now := uc.now()
	framework := &domain.AS9100DComplianceFramework{
		EntityID:          entityID,
		EntityType:        entityType,
		ApplicableClauses: ClausesFor(entityType),
		ComplianceRecords: []domain.ComplianceRecord{},
		AuditTrail: []domain.ComplianceAuditEntry{{
			Timestamp: now,
			Action:    "initialized",
			Details:   fmt.Sprintf("%d applicable clauses", len(ClausesFor(entityType))),
		}},
		NonCompliances:  []domain.NonCompliance{},
		ValidationRules: ValidationRules(),
		OverallCompliance: domain.OverallCompliance{
			Status:         domain.CompliancePendingReview,
			NextAssessment: now.Add(uc.interval),
		},
		CreatedAt: now,
	}
	if err := uc.frameworks.Save(ctx, framework, 0); err != nil {
		return nil, err
	}

	uc.logger.Info("compliance framework initialized",
		zap.String("entity_id", entityID),
		zap.String("entity_type", string(entityType)),
		zap.Int("clauses", len(framework.ApplicableClauses)),
	)
	return framework, nil
}

// AssessCompliance runs every clause check of an entity's framework and
// records the outcome. Non-compliant clauses become issues, not errors.
// The record is appended with a versioned write; a concurrent assessment
// forces a re-read so no record is lost.
func (uc *UseCase) AssessCompliance(ctx context.Context, entityID string) (*domain.ComplianceAssessment, error) {
	framework, err := uc.frameworks.Get(ctx, entityID)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	assessment := &domain.ComplianceAssessment{
		Issues:          []string{},
		Recommendations: []string{},
	}
	var findings []domain.NonCompliance
	compliant := 0
	for _, clause := range framework.ApplicableClauses {
		check, ok := uc.checkFor(framework, clause)
		if !ok {
			compliant++
			continue
		}
		result, err := check(ctx, framework, clause)
		if err != nil {
			return nil, fmt.Errorf("clause %s: %w", clause.ClauseNumber, err)
		}
		if result.compliant {
			compliant++
			continue
		}
		assessment.Issues = append(assessment.Issues, result.issue)
		assessment.Recommendations = append(assessment.Recommendations, result.recommendation)
		findings = append(findings, domain.NonCompliance{
			ClauseNumber:   clause.ClauseNumber,
			Description:    result.issue,
			Recommendation: result.recommendation,
			DetectedAt:     now,
		})
	}

	total := len(framework.ApplicableClauses)
	assessment.Percentage = Percentage(compliant, total)
	assessment.Status = domain.StatusForPercentage(assessment.Percentage)
	record := domain.ComplianceRecord{
		AssessedAt:     now,
		Percentage:     assessment.Percentage,
		Status:         assessment.Status,
		CompliantCount: compliant,
		TotalClauses:   total,
	}

	for attempt := 0; ; attempt++ {
		uc.record(framework, record, findings)
		err = uc.frameworks.Save(ctx, framework, framework.Version)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= uc.retries {
			return nil, err
		}
		metrics.VersionConflicts.Inc()
		if framework, err = uc.frameworks.Get(ctx, entityID); err != nil {
			return nil, err
		}
	}

	metrics.ComplianceAssessments.WithLabelValues(string(assessment.Status)).Inc()
	uc.logger.Debug("compliance assessed",
		zap.String("entity_id", entityID),
		zap.Int("percentage", assessment.Percentage),
		zap.String("status", string(assessment.Status)),
	)
	return assessment, nil
}

func (uc *UseCase) record(framework *domain.AS9100DComplianceFramework, record domain.ComplianceRecord, findings []domain.NonCompliance) {
	framework.ComplianceRecords = append(framework.ComplianceRecords, record)
	framework.AuditTrail = append(framework.AuditTrail, domain.ComplianceAuditEntry{
		Timestamp: record.AssessedAt,
		Action:    "assessed",
		Details:   fmt.Sprintf("%d%% %s", record.Percentage, record.Status),
	})
	framework.NonCompliances = append(framework.NonCompliances, findings...)
	framework.OverallCompliance = domain.OverallCompliance{
		Percentage:     record.Percentage,
		Status:         record.Status,
		LastAssessment: record.AssessedAt,
		NextAssessment: record.AssessedAt.Add(uc.interval),
	}
}

// checkFor resolves the registered check of a clause. A clause without a
// check, or whose rule the framework has switched off, counts as compliant.
func (uc *UseCase) checkFor(framework *domain.AS9100DComplianceFramework, clause domain.ApplicableClause) (clauseCheck, bool) {
	name, ok := clauseRules[clause.ClauseNumber]
	if !ok {
		return nil, false
	}
	for _, rule := range framework.ValidationRules {
		if rule.ValidationFunction == name && !rule.IsActive {
			return nil, false
		}
	}
	check, ok := uc.checks[name]
	return check, ok
}

// Percentage rounds compliant/total to a whole percent. No clauses is 100.
func Percentage(compliant, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(compliant) / float64(total)))
}

func (uc *UseCase) checkTraceability(ctx context.Context, framework *domain.AS9100DComplianceFramework, clause domain.ApplicableClause) (clauseResult, error) {
	if uc.validator == nil {
		return clauseResult{
			issue:          fmt.Sprintf("clause %s (%s): no traceability validator configured", clause.ClauseNumber, clause.ClauseTitle),
			recommendation: "configure traceability validation for compliance assessments",
		}, nil
	}
	validation, err := uc.validator.ValidateTraceability(ctx, framework.EntityID, framework.EntityType)
	if errors.Is(err, domain.ErrEntityNotFound) {
		return clauseResult{
			issue:          fmt.Sprintf("clause %s (%s): entity %s no longer exists", clause.ClauseNumber, clause.ClauseTitle, framework.EntityID),
			recommendation: fmt.Sprintf("restore %s or retire its compliance framework", framework.EntityID),
		}, nil
	}
	if err != nil {
		return clauseResult{}, err
	}
	if validation.IsComplete {
		return clauseResult{compliant: true}, nil
	}
	return clauseResult{
		issue: fmt.Sprintf("clause %s (%s): traceability %d%%, missing %s",
			clause.ClauseNumber, clause.ClauseTitle, validation.ComplianceLevel, strings.Join(validation.MissingLinks, ", ")),
		recommendation: fmt.Sprintf("link the missing records: %s", strings.Join(validation.MissingLinks, ", ")),
	}, nil
}
