package event

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fastygo/relational/domain"
)

// ActionContext is the oriented view of an event handed to action handlers.
// Owner is the endpoint whose relationship slot carries the event triggers.
type ActionContext struct {
	EventType domain.EventType
	Timestamp time.Time
	Owner     domain.EventEntity
	Other     domain.EventEntity
	OwnerSlot domain.RelationshipType
	OtherSlot domain.RelationshipType
	Direction domain.Direction
}

// Derived is one document patch produced by an action.
type Derived struct {
	Order  int
	Target domain.CascadeTarget
}

// ActionHandler derives the patches for one action. Handlers must be pure.
type ActionHandler func(ac ActionContext) []Derived

// Registry resolves action names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Action]ActionHandler
}

// NewRegistry returns a registry holding the built-in actions.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[domain.Action]ActionHandler)}
	r.Register(domain.ActionCountChildren, countChildren)
	r.Register(domain.ActionSyncDisplayName, syncDisplayName)
	r.Register(domain.ActionTouchParent, touchParent)
	return r
}

// Register adds or replaces the handler for an action.
func (r *Registry) Register(action domain.Action, handler ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = handler
}

// Derive runs the handler registered for action.
func (r *Registry) Derive(action domain.Action, ac ActionContext) ([]Derived, error) {
	r.mu.RLock()
	handler, ok := r.handlers[action]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", action, domain.ErrUnknownAction)
	}
	return handler(ac), nil
}

// Execution orders. Parents are always patched before dependents.
const (
	orderParent    = 0
	orderDependent = 1
)

// NameField names the denormalized display-name field for a slot:
// "customerId" becomes "customerName", "materialLots" becomes "materialLotsName".
func NameField(slot domain.RelationshipType) string {
	s := string(slot)
	if trimmed, ok := strings.CutSuffix(s, "Id"); ok && trimmed != "" {
		return trimmed + "Name"
	}
	return s + "Name"
}

// LastChildUpdateField is stamped on a parent when one of its child links changes.
const LastChildUpdateField = "lastChildUpdate"

// countChildren sets the owner's counter from its slot length, so re-applying
// the patch leaves the same value.
func countChildren(ac ActionContext) []Derived {
	if ac.Direction != domain.DirectionChild {
		return nil
	}
	switch ac.EventType {
	case domain.EventCreate, domain.EventDelete:
	default:
		return nil
	}
	return []Derived{{
		Order: orderParent,
		Target: domain.CascadeTarget{
			Collection: ac.Owner.Collection,
			EntityID:   ac.Owner.ID,
			Updates: domain.EntityUpdate{
				RecountSlots: []domain.RelationshipType{ac.OwnerSlot},
			},
		},
	}}
}

func syncDisplayName(ac ActionContext) []Derived {
	if ac.EventType == domain.EventDelete {
		return nil
	}
	switch ac.Direction {
	case domain.DirectionChild:
		if ac.Owner.DisplayName == "" {
			return nil
		}
		return []Derived{{
			Order: orderDependent,
			Target: domain.CascadeTarget{
				Collection: ac.Other.Collection,
				EntityID:   ac.Other.ID,
				Updates: domain.EntityUpdate{
					SetFields: map[string]string{NameField(ac.OtherSlot): ac.Owner.DisplayName},
				},
			},
		}}
	default:
		if ac.Other.DisplayName == "" {
			return nil
		}
		return []Derived{{
			Order: orderParent,
			Target: domain.CascadeTarget{
				Collection: ac.Owner.Collection,
				EntityID:   ac.Owner.ID,
				Updates: domain.EntityUpdate{
					SetFields: map[string]string{NameField(ac.OwnerSlot): ac.Other.DisplayName},
				},
			},
		}}
	}
}

func touchParent(ac ActionContext) []Derived {
	if ac.Direction != domain.DirectionChild || ac.EventType != domain.EventUpdate {
		return nil
	}
	return []Derived{{
		Order: orderParent,
		Target: domain.CascadeTarget{
			Collection: ac.Owner.Collection,
			EntityID:   ac.Owner.ID,
			Updates: domain.EntityUpdate{
				SetFields: map[string]string{LastChildUpdateField: ac.Timestamp.UTC().Format(time.RFC3339)},
			},
		},
	}}
}
