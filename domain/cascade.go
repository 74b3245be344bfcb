package domain

import (
	"slices"
	"sort"
	"time"
)

// CascadeStatus is the lifecycle state of a cascade update.
type CascadeStatus string

const (
	CascadePending   CascadeStatus = "pending"
	CascadeExecuting CascadeStatus = "executing"
	CascadeCompleted CascadeStatus = "completed"
	CascadeFailed    CascadeStatus = "failed"
)

// EntityUpdate is a document patch applied by a cascade.
type EntityUpdate struct {
	SetFields         map[string]string `json:"setFields,omitempty" bson:"setFields,omitempty"`
	UnsetFields       []string          `json:"unsetFields,omitempty" bson:"unsetFields,omitempty"`
	IncrementCounters map[string]int64  `json:"incrementCounters,omitempty" bson:"incrementCounters,omitempty"`
	SetStatus         string            `json:"setStatus,omitempty" bson:"setStatus,omitempty"`
	// RecountSlots sets CounterField(slot) to the number of references the
	// document holds under slot at apply time.
	RecountSlots []RelationshipType `json:"recountSlots,omitempty" bson:"recountSlots,omitempty"`
}

// CounterField names the counter maintained for a child slot, e.g. "tasksCount".
func CounterField(slot RelationshipType) string {
	return string(slot) + "Count"
}

// Empty reports whether applying the update would change nothing.
func (u EntityUpdate) Empty() bool {
	return len(u.SetFields) == 0 && len(u.UnsetFields) == 0 && len(u.IncrementCounters) == 0 && u.SetStatus == "" && len(u.RecountSlots) == 0
}

// Merge folds other into u; later sets win and counter deltas add up.
func (u EntityUpdate) Merge(other EntityUpdate) EntityUpdate {
	out := EntityUpdate{SetStatus: u.SetStatus}
	if other.SetStatus != "" {
		out.SetStatus = other.SetStatus
	}
	for _, src := range []map[string]string{u.SetFields, other.SetFields} {
		for k, v := range src {
			if out.SetFields == nil {
				out.SetFields = make(map[string]string)
			}
			out.SetFields[k] = v
		}
	}
	for _, src := range []map[string]int64{u.IncrementCounters, other.IncrementCounters} {
		for k, v := range src {
			if out.IncrementCounters == nil {
				out.IncrementCounters = make(map[string]int64)
			}
			out.IncrementCounters[k] += v
		}
	}
	out.UnsetFields = append(append([]string(nil), u.UnsetFields...), other.UnsetFields...)
	for _, slot := range append(append([]RelationshipType(nil), u.RecountSlots...), other.RecountSlots...) {
		if !slices.Contains(out.RecountSlots, slot) {
			out.RecountSlots = append(out.RecountSlots, slot)
		}
	}
	return out
}

// Apply mutates the entity in place. Counters never drop below zero.
// Recounts run last and override any increment of the same counter.
func (u EntityUpdate) Apply(e *Entity) {
	if e == nil {
		return
	}
	for _, k := range u.UnsetFields {
		delete(e.Fields, k)
	}
	if len(u.SetFields) > 0 && e.Fields == nil {
		e.Fields = make(map[string]string, len(u.SetFields))
	}
	for k, v := range u.SetFields {
		e.Fields[k] = v
	}
	if len(u.IncrementCounters) > 0 && e.Counters == nil {
		e.Counters = make(map[string]int64, len(u.IncrementCounters))
	}
	for k, delta := range u.IncrementCounters {
		next := e.Counters[k] + delta
		if next < 0 {
			next = 0
		}
		e.Counters[k] = next
	}
	if len(u.RecountSlots) > 0 && e.Counters == nil {
		e.Counters = make(map[string]int64, len(u.RecountSlots))
	}
	for _, slot := range u.RecountSlots {
		e.Counters[CounterField(slot)] = int64(len(e.Relationships[slot]))
	}
	if u.SetStatus != "" {
		e.Status = u.SetStatus
	}
}

// CascadeTarget addresses one document touched by a cascade.
type CascadeTarget struct {
	Collection string       `json:"collection" bson:"collection"`
	EntityID   string       `json:"entityId" bson:"entityId"`
	Updates    EntityUpdate `json:"updates" bson:"updates"`
}

// CascadeUpdate is one ordered step of follow-up writes derived from an event.
type CascadeUpdate struct {
	ExecutionOrder int             `json:"executionOrder" bson:"executionOrder"`
	CascadeTargets []CascadeTarget `json:"cascadeTargets" bson:"cascadeTargets"`
	Status         CascadeStatus   `json:"status" bson:"status"`
	Error          string          `json:"error,omitempty" bson:"error,omitempty"`
}

// SortCascades orders cascades by executionOrder, keeping derivation order for ties.
func SortCascades(cascades []CascadeUpdate) {
	sort.SliceStable(cascades, func(i, j int) bool {
		return cascades[i].ExecutionOrder < cascades[j].ExecutionOrder
	})
}

// CascadeStatuses lists the status of each cascade in slice order.
func CascadeStatuses(cascades []CascadeUpdate) []CascadeStatus {
	out := make([]CascadeStatus, len(cascades))
	for i, c := range cascades {
		out[i] = c.Status
	}
	return out
}

// CascadeBatch is the persisted cascade list of one event, kept so a failed
// execution can resume without re-deriving.
type CascadeBatch struct {
	ID        string          `json:"id" bson:"_id"`
	EventID   string          `json:"eventId" bson:"eventId"`
	Cascades  []CascadeUpdate `json:"cascades" bson:"cascades"`
	CreatedAt time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// Remaining reports whether any cascade has not completed.
func (b *CascadeBatch) Remaining() bool {
	if b == nil {
		return false
	}
	for _, c := range b.Cascades {
		if c.Status != CascadeCompleted {
			return true
		}
	}
	return false
}
