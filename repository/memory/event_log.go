package memory

import (
	"context"
	"sync"

	"github.com/fastygo/relational/domain"
	"github.com/fastygo/relational/repository"
)

type eventLog struct {
	mu     sync.RWMutex
	events []domain.RelationshipEvent
}

// NewEventLog creates an append-only in-memory EventLog.
func NewEventLog() repository.EventLog {
	return &eventLog{}
}

func (l *eventLog) Append(ctx context.Context, event domain.RelationshipEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.ID == "" {
		return domain.ErrInvalidPayload
	}
	event.Relationship = event.Relationship.Clone()
	if event.CascadeRules != nil {
		rules := *event.CascadeRules
		event.CascadeRules = &rules
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) List(ctx context.Context, filter repository.EventFilter) ([]domain.RelationshipEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.RelationshipEvent
	skipped := 0
	for _, e := range l.events {
		if filter.EntityID != "" && !e.Involves(filter.EntityID) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
