package scheduler

import (
	"testing"
	"time"

	"github.com/bookline/bookline/internal/store"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
}

func TestSchedulerAddJobInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
}

func TestScheduleSessionCleanupRegisters(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	st := store.NewInMemoryStore()
	defer st.Close()

	if err := s.ScheduleSessionCleanup(st, DefaultIdleSessionTTL, ""); err != nil {
		t.Errorf("Expected defaulted schedule to register, got %v", err)
	}
	if err := s.ScheduleSessionCleanup(st, time.Hour, "*/5 * * * *"); err != nil {
		t.Errorf("Expected custom schedule to register, got %v", err)
	}
}
