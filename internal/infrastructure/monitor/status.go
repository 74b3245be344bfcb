package monitor

import "time"

// Status reports reachability of each configured backend. Backends that are
// not configured report true.
type Status struct {
	Mongo           bool      `json:"mongo"`
	PostgreSQL      bool      `json:"postgresql"`
	Redis           bool      `json:"redis"`
	RepairQueue     bool      `json:"repair_queue"`
	RepairQueueSize int       `json:"repair_queue_size"`
	LastCheck       time.Time `json:"last_check"`
}
