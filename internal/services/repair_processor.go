package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/internal/infrastructure/buffer"
	"github.com/fastygo/relational/pkg/metrics"
	"github.com/fastygo/relational/repository"
	"github.com/fastygo/relational/usecase"
	"github.com/fastygo/relational/usecase/relationship"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// RelationshipRepairer is the part of the relationship manager the processor drives.
type RelationshipRepairer interface {
	CreateRelationship(ctx context.Context, source, target domain.EntityKey, relType domain.RelationshipType, meta *relationship.Metadata) error
	ValidateIntegrity(ctx context.Context, key domain.EntityKey) (*domain.IntegrityReport, error)
}

// CascadeResumer re-runs journaled cascade batches with remaining work.
type CascadeResumer interface {
	ResumePending(ctx context.Context, limit int) (int, error)
}

// ProcessorConfig controls schedules and retry limits.
type ProcessorConfig struct {
	Schedule      string
	SweepSchedule string
	BatchSize     int
	MaxRetries    int
	Retention     time.Duration
	SweepTypes    []domain.EntityType
}

// RepairProcessor drains the repair queue, resumes interrupted cascades and
// sweeps the graph for integrity issues on a cron schedule.
type RepairProcessor struct {
	queue         *buffer.Queue
	monitor       ConnectionHealth
	relationships RelationshipRepairer
	cascades      CascadeResumer
	store         repository.EntityStore
	logger        *zap.Logger
	cron          *cron.Cron
	cfg           ProcessorConfig
}

// SweepResult summarizes one integrity sweep.
type SweepResult struct {
	Entities int
	Invalid  int
	Issues   int
}

func NewRepairProcessor(
	queue *buffer.Queue,
	monitor ConnectionHealth,
	relationships RelationshipRepairer,
	cascades CascadeResumer,
	store repository.EntityStore,
	logger *zap.Logger,
	cfg ProcessorConfig,
) (*RepairProcessor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 30s"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@hourly"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if len(cfg.SweepTypes) == 0 {
		cfg.SweepTypes = domain.EntityTypes()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rp := &RepairProcessor{
		queue:         queue,
		monitor:       monitor,
		relationships: relationships,
		cascades:      cascades,
		store:         store,
		logger:        logger,
		cfg:           cfg,
		cron:          cron.New(cron.WithSeconds()),
	}

	if _, err := rp.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := rp.RunOnce(ctx); err != nil {
			rp.logger.Error("repair run failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("repair schedule %q: %w", cfg.Schedule, err)
	}
	if _, err := rp.cron.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := rp.Sweep(ctx); err != nil {
			rp.logger.Error("integrity sweep failed", zap.Error(err))
		}
		rp.cleanup()
	}); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", cfg.SweepSchedule, err)
	}

	return rp, nil
}

// Start launches the cron scheduler.
func (rp *RepairProcessor) Start() {
	if rp == nil || rp.cron == nil {
		return
	}
	rp.cron.Start()
	rp.logger.Info("repair processor started",
		zap.String("schedule", rp.cfg.Schedule),
		zap.String("sweep_schedule", rp.cfg.SweepSchedule),
	)
}

// Stop gracefully stops the scheduler.
func (rp *RepairProcessor) Stop(ctx context.Context) {
	if rp == nil || rp.cron == nil {
		return
	}
	stopCtx := rp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	rp.logger.Info("repair processor stopped")
}

// RunOnce drains queued repairs and then resumes pending cascade batches.
func (rp *RepairProcessor) RunOnce(ctx context.Context) error {
	if rp.monitor != nil && !rp.monitor.IsOnline() {
		rp.logger.Debug("skipping repair run (offline)")
		return nil
	}
	drainErr := rp.Drain(ctx)
	var resumeErr error
	if rp.cascades != nil {
		var resumed int
		resumed, resumeErr = rp.cascades.ResumePending(ctx, rp.cfg.BatchSize)
		if resumed > 0 {
			rp.logger.Info("cascade batches resumed", zap.Int("count", resumed))
		}
	}
	return errors.Join(drainErr, resumeErr)
}

// Drain re-runs queued relationship creates. Repairs that succeed, or find
// both halves already present, leave the queue.
func (rp *RepairProcessor) Drain(ctx context.Context) error {
	if rp == nil || rp.queue == nil {
		return nil
	}
	defer rp.reportDepth()

	items, err := rp.queue.Peek(rp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := rp.processItem(ctx, item)
		if err == nil {
			if err := rp.queue.Remove(item); err != nil {
				rp.logger.Warn("failed to purge processed repair", zap.Error(err))
			}
			continue
		}

		if permanent(err) || item.Retries+1 >= rp.cfg.MaxRetries {
			rp.logger.Error("dropping relationship repair",
				zap.String("item_id", item.ID),
				zap.Int("retries", item.Retries),
				zap.Error(err))
			if err := rp.queue.Remove(item); err != nil {
				rp.logger.Warn("failed to remove repair", zap.Error(err))
			}
			continue
		}

		rp.logger.Warn("relationship repair failed, requeueing",
			zap.String("item_id", item.ID),
			zap.Error(err))
		if err := rp.queue.Requeue(item, err); err != nil {
			rp.logger.Error("failed to requeue repair", zap.Error(err))
		}
	}
	return nil
}

// Sweep validates every entity of the configured types. Issues are logged and
// counted; nothing is modified.
func (rp *RepairProcessor) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if rp.store == nil || rp.relationships == nil {
		return result, nil
	}
	for _, entityType := range rp.cfg.SweepTypes {
		collection, err := entityType.Collection()
		if err != nil {
			return result, err
		}
		entities, err := rp.store.Query(ctx, collection, "id", repository.OpExists, true)
		if err != nil {
			return result, err
		}
		for _, e := range entities {
			report, err := rp.relationships.ValidateIntegrity(ctx, domain.EntityKey{ID: e.ID, Type: entityType})
			if errors.Is(err, domain.ErrEntityNotFound) {
				continue
			}
			if err != nil {
				return result, err
			}
			result.Entities++
			if report.IsValid {
				continue
			}
			result.Invalid++
			result.Issues += len(report.Issues)
			rp.logger.Warn("integrity issues",
				zap.String("entity_id", e.ID),
				zap.String("entity_type", string(entityType)),
				zap.Strings("issues", report.Issues),
			)
		}
	}
	rp.logger.Info("integrity sweep finished",
		zap.Int("entities", result.Entities),
		zap.Int("invalid", result.Invalid),
		zap.Int("issues", result.Issues),
	)
	return result, nil
}

// Size returns the number of queued repairs.
func (rp *RepairProcessor) Size() int {
	if rp == nil || rp.queue == nil {
		return 0
	}
	size, err := rp.queue.Size()
	if err != nil {
		return 0
	}
	return size
}

func (rp *RepairProcessor) processItem(ctx context.Context, item buffer.Item) error {
	if item.Kind != buffer.KindRelationshipRepair {
		return fmt.Errorf("repair kind %q: %w", item.Kind, domain.ErrInvalidPayload)
	}
	var repair usecase.RelationshipRepair
	if err := json.Unmarshal(item.Data, &repair); err != nil {
		return fmt.Errorf("decode repair %s: %w: %w", item.ID, domain.ErrInvalidPayload, err)
	}
	err := rp.relationships.CreateRelationship(ctx,
		domain.EntityKey{ID: repair.SourceID, Type: repair.SourceType},
		domain.EntityKey{ID: repair.TargetID, Type: repair.TargetType},
		repair.RelationshipType,
		&relationship.Metadata{TriggeredBy: "repair", Retrying: true},
	)
	if errors.Is(err, domain.ErrDuplicateReference) {
		return nil
	}
	return err
}

func (rp *RepairProcessor) cleanup() {
	if rp.queue == nil || rp.cfg.Retention <= 0 {
		return
	}
	removed, err := rp.queue.Cleanup(time.Now().Add(-rp.cfg.Retention))
	if err != nil {
		rp.logger.Warn("repair queue cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		rp.logger.Warn("expired relationship repairs dropped", zap.Int("count", removed))
	}
	rp.reportDepth()
}

func (rp *RepairProcessor) reportDepth() {
	metrics.RepairQueueDepth.Set(float64(rp.Size()))
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return domain.IsDomainError(err, domain.ErrCodeInvalid) || errors.Is(err, domain.ErrEntityNotFound)
}
