// Package supervisor implements heartbeat-based stall detection as a
// timer-driven scan, kept separate from the workers so failure
// detection stays centralized and testable in isolation from LLM call
// latency.
package supervisor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"subweave/internal/task"
	"subweave/pkg/log"
)

// Monitor is the slice of the pipeline manager the supervisor needs.
type Monitor interface {
	// ActiveTasks returns snapshots of tasks in an active phase.
	ActiveTasks() []*task.Task
	// MarkStalled fails a task with a stall error. Already-completed
	// segments are left untouched; in-flight LLM calls are not killed,
	// their results are simply discarded.
	MarkStalled(taskID string, message string)
}

// Supervisor periodically compares task heartbeats against the stall
// threshold.
type Supervisor struct {
	monitor   Monitor
	threshold time.Duration
	interval  time.Duration
	cron      *cron.Cron
}

func New(monitor Monitor, threshold, interval time.Duration) *Supervisor {
	if threshold <= 0 {
		threshold = 2 * time.Minute
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Supervisor{
		monitor:   monitor,
		threshold: threshold,
		interval:  interval,
	}
}

// Start schedules the periodic scan. The returned cron keeps running
// until Stop is called.
func (s *Supervisor) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Scan(time.Now())
	})
	if err != nil {
		return fmt.Errorf("schedule stall scan: %w", err)
	}
	s.cron.Start()
	log.Info("Stall supervisor running: threshold=%s interval=%s", s.threshold, s.interval)
	return nil
}

func (s *Supervisor) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Scan fails every active task whose heartbeat is older than the
// threshold. Exposed for tests.
func (s *Supervisor) Scan(now time.Time) {
	for _, t := range s.monitor.ActiveTasks() {
		if !t.Stalled(now, s.threshold) {
			continue
		}
		silence := now.Sub(t.LastHeartbeat).Round(time.Second)
		log.Warn("Task %s stalled: no heartbeat for %s", t.ID, silence)
		s.monitor.MarkStalled(t.ID, fmt.Sprintf("stalled: no heartbeat for %s (threshold %s)", silence, s.threshold))
	}
}
