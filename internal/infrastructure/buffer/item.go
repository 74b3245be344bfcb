package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// KindRelationshipRepair marks a bidirectional create whose mirror write failed.
const KindRelationshipRepair = "relationship_repair"

// Item is one unit of deferred repair work.
type Item struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data"`
	Priority  int             `json:"priority"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = 3
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
