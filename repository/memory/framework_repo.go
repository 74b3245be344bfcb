package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

type frameworkRepository struct {
	mu         sync.RWMutex
	frameworks map[string]domain.AS9100DComplianceFramework
}

// NewFrameworkRepository creates an in-memory FrameworkRepository.
func NewFrameworkRepository() repository.FrameworkRepository {
	return &frameworkRepository{frameworks: make(map[string]domain.AS9100DComplianceFramework)}
}

func (r *frameworkRepository) Get(ctx context.Context, entityID string) (*domain.AS9100DComplianceFramework, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	fw, ok := r.frameworks[entityID]
	if !ok {
		return nil, domain.ErrFrameworkNotFound
	}
	out := cloneFramework(fw)
	return &out, nil
}

func (r *frameworkRepository) Save(ctx context.Context, framework *domain.AS9100DComplianceFramework, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if framework == nil || framework.EntityID == "" {
		return domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if current := r.frameworks[framework.EntityID].Version; current != expectedVersion {
		return fmt.Errorf("framework %s at version %d, not %d: %w", framework.EntityID, current, expectedVersion, domain.ErrVersionConflict)
	}
	next := cloneFramework(*framework)
	next.Version = expectedVersion + 1
	r.frameworks[framework.EntityID] = next
	framework.Version = next.Version
	return nil
}

func cloneFramework(fw domain.AS9100DComplianceFramework) domain.AS9100DComplianceFramework {
	out := fw
	out.ApplicableClauses = append([]domain.ApplicableClause(nil), fw.ApplicableClauses...)
	out.ComplianceRecords = append([]domain.ComplianceRecord(nil), fw.ComplianceRecords...)
	out.AuditTrail = append([]domain.ComplianceAuditEntry(nil), fw.AuditTrail...)
	out.NonCompliances = append([]domain.NonCompliance(nil), fw.NonCompliances...)
	out.ValidationRules = append([]domain.ValidationRule(nil), fw.ValidationRules...)
	return out
}
