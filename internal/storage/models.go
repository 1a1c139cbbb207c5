package storage

import (
	"time"
)

// Load statuses.
const (
	LoadComplete = "complete"
	LoadFailed   = "failed"
)

// LoadRecord audits one load, successful or not. Candles are only stored for complete loads.
type LoadRecord struct {
	ID          int64
	RunID       string
	Symbol      string
	Interval    string
	WindowStart time.Time
	WindowEnd   time.Time
	PageLimit   int
	Pages       int
	Samples     int
	Status      string
	Error       *string
	Took        time.Duration
	CreatedAt   time.Time
}
