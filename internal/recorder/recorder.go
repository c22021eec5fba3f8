package recorder

import (
	"time"

	"streamdash/internal/model"
)

// CycleEvent records the outcome of one refresh cycle.
type CycleEvent struct {
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Backfilled int
	Succeeded  int
	Failed     int
	Appended   int
}

// Recorder persists buffered observations and cycle outcomes for offline
// analysis. It is an audit log, not a restore source: the in-memory buffers
// are rebuilt from the data source on restart.
type Recorder interface {
	RecordObservations(obs []model.Observation) error
	RecordCycle(evt *CycleEvent) error
	Prune(olderThan time.Time) (int64, error)
	Close() error
}
