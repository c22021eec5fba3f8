package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"streamdash/internal/recorder"
	"streamdash/internal/refresher"
)

// Scheduler drives the refresh coordinator's poll tick and periodic
// maintenance via cron.
type Scheduler struct {
	Cron        *cron.Cron
	Coordinator *refresher.Coordinator
	Recorder    recorder.Recorder
	Retention   time.Duration
	Ctx         context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, coord *refresher.Coordinator, rec recorder.Recorder, retentionDays int) *Scheduler {
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds()),
		Coordinator: coord,
		Recorder:    rec,
		Retention:   time.Duration(retentionDays) * 24 * time.Hour,
		Ctx:         ctx,
	}
}

// RegisterAll registers the poll tick and the nightly prune job.
func (s *Scheduler) RegisterAll(pollCron, pruneCron string) error {
	if _, err := s.Cron.AddFunc(pollCron, s.pollTick); err != nil {
		return fmt.Errorf("register poll tick: %w", err)
	}
	if _, err := s.Cron.AddFunc(pruneCron, s.pruneTask); err != nil {
		return fmt.Errorf("register prune task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// pollTick evaluates the elapsed-time check; the coordinator decides whether
// a cycle is actually due.
func (s *Scheduler) pollTick() {
	if s.Ctx.Err() != nil {
		return
	}
	s.Coordinator.TickIfDue(time.Now())
}

func (s *Scheduler) pruneTask() {
	n, err := s.Recorder.Prune(time.Now().Add(-s.Retention))
	if err != nil {
		log.Printf("[ERROR] prune recorder: %v", err)
		return
	}
	log.Printf("[INFO] pruned %d recorded observations", n)
}
