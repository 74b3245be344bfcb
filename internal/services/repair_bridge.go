package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/internal/infrastructure/buffer"
	"github.com/fastygo/relational/pkg/metrics"
	"github.com/fastygo/relational/usecase"
)

// RepairBridge lets the relationship manager enqueue repairs without knowing
// how they are stored.
type RepairBridge struct {
	queue  *buffer.Queue
	logger *zap.Logger
}

func NewRepairBridge(queue *buffer.Queue, logger *zap.Logger) *RepairBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepairBridge{queue: queue, logger: logger}
}

func (b *RepairBridge) EnqueueRepair(ctx context.Context, repair usecase.RelationshipRepair) error {
	if b.queue == nil {
		return domain.ErrInvalidPayload
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(repair)
	if err != nil {
		return err
	}
	item := buffer.Item{
		Kind:     buffer.KindRelationshipRepair,
		Data:     payload,
		Priority: 2,
	}
	if err := b.queue.Enqueue(item); err != nil {
		return err
	}
	if size, err := b.queue.Size(); err == nil {
		metrics.RepairQueueDepth.Set(float64(size))
	}
	b.logger.Warn("relationship repair enqueued",
		zap.String("source_id", repair.SourceID),
		zap.String("relationship_type", string(repair.RelationshipType)),
		zap.String("target_id", repair.TargetID),
	)
	return nil
}

var _ usecase.RepairQueue = (*RepairBridge)(nil)
