package relationship

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/pkg/metrics"
)

// ValidateIntegrity inspects every outgoing reference of an entity. Missing
// targets, missing mirrors and references without lastUpdated are reported as
// issues; nothing is written. Only store failures and an absent root entity
// are returned as errors.
func (uc *UseCase) ValidateIntegrity(ctx context.Context, key domain.EntityKey) (*domain.IntegrityReport, error) {
	collection, err := key.Type.Collection()
	if err != nil {
		return nil, err
	}
	entity, err := uc.store.Get(ctx, collection, key.ID)
	if err != nil {
		return nil, err
	}

	report := &domain.IntegrityReport{
		EntityID:        entity.ID,
		EntityType:      entity.EntityType,
		IsValid:         true,
		Issues:          []string{},
		Recommendations: []string{},
	}

	for _, relType := range entity.Relationships.Types() {
		spec, specErr := domain.LookupRelationship(entity.EntityType, relType)
		for _, ref := range entity.Relationships[relType] {
			if ref.Metadata.LastUpdated.IsZero() {
				report.AddIssue(
					fmt.Sprintf("reference %s -> %s has no lastUpdated timestamp", relType, ref.ID),
					fmt.Sprintf("touch the %s reference to %s", relType, ref.ID),
				)
			}
			if _, err := domain.EntityTypeForCollection(ref.Collection); err != nil {
				report.AddIssue(
					fmt.Sprintf("reference %s -> %s names unknown collection %q", relType, ref.ID, ref.Collection),
					fmt.Sprintf("remove the %s reference to %s", relType, ref.ID),
				)
				continue
			}

			target, err := uc.store.Get(ctx, ref.Collection, ref.ID)
			if errors.Is(err, domain.ErrEntityNotFound) {
				report.AddIssue(
					fmt.Sprintf("orphaned reference: %s -> %s not found in %s", relType, ref.ID, ref.Collection),
					fmt.Sprintf("prune the %s reference to %s or restore %s", relType, ref.ID, ref.ID),
				)
				continue
			}
			if err != nil {
				return nil, err
			}

			if specErr != nil || !spec.Bidirectional() {
				continue
			}
			if !target.Relationships.Has(spec.Reverse, entity.ID) {
				report.AddIssue(
					fmt.Sprintf("missing reverse relationship: %s.%s -> %s", target.ID, spec.Reverse, entity.ID),
					fmt.Sprintf("re-run createRelationship(%s, %s, %s) to restore the mirror", entity.ID, ref.ID, relType),
				)
			}
		}
		if specErr != nil {
			report.AddIssue(
				fmt.Sprintf("relationship type %s is not configured for %s", relType, entity.EntityType),
				fmt.Sprintf("remove the %s references from %s", relType, entity.ID),
			)
		}
	}

	if !report.IsValid {
		metrics.IntegrityIssues.WithLabelValues(string(entity.EntityType)).Add(float64(len(report.Issues)))
		uc.logger.Debug("integrity issues found",
			zap.String("entity_id", entity.ID),
			zap.Int("issues", len(report.Issues)),
		)
	}
	return report, nil
}
