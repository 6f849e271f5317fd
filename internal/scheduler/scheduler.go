// Package scheduler provides cron-based background jobs for Bookline.
//
// Its main duty is the periodic sweep of idle conversation sessions.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bookline/bookline/internal/store"
)

// Defaults for the idle session sweep.
const (
	// DefaultCleanupSchedule runs the sweep at the top of every hour.
	DefaultCleanupSchedule = "0 * * * *"
	// DefaultIdleSessionTTL is how long a session may sit idle before removal.
	DefaultIdleSessionTTL = 24 * time.Hour
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// ScheduleSessionCleanup registers the idle session sweep. Sessions whose
// last activity is older than ttl are removed together with their flow
// state on each run.
func (s *Scheduler) ScheduleSessionCleanup(st store.Store, ttl time.Duration, expr string) error {
	if expr == "" {
		expr = DefaultCleanupSchedule
	}
	if ttl <= 0 {
		ttl = DefaultIdleSessionTTL
	}
	err := s.AddJob(expr, func() {
		cutoff := time.Now().Add(-ttl)
		swept, err := st.DeleteIdleSessions(cutoff)
		if err != nil {
			slog.Error("Scheduler session cleanup failed", "error", err)
			return
		}
		if swept > 0 {
			slog.Info("Scheduler swept idle sessions", "count", swept, "ttl", ttl)
		}
	})
	if err != nil {
		return err
	}
	slog.Info("Scheduler session cleanup registered", "schedule", expr, "ttl", ttl)
	return nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
