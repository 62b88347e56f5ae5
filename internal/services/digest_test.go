package services

import (
	"sync"
	"testing"

	"github.com/robfig/cron/v3"
)

func TestApplySchedule_ReplacesEntry(t *testing.T) {
	s := &DigestService{cronScheduler: cron.New()}

	s.applySchedule("18:00")
	s.applySchedule("09:30")

	if n := len(s.cronScheduler.Entries()); n != 1 {
		t.Errorf("scheduler entries = %d, expected the old entry replaced", n)
	}
	if s.currentEntryID == 0 {
		t.Error("currentEntryID should track the live entry")
	}
}

func TestApplySchedule_ConcurrentRefreshes(t *testing.T) {
	s := &DigestService{cronScheduler: cron.New()}

	// Two admins saving digest settings at the same time must not leave
	// stale entries or race on the tracked entry ID.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.applySchedule("18:00")
			} else {
				s.applySchedule("09:30")
			}
		}(i)
	}
	wg.Wait()

	if n := len(s.cronScheduler.Entries()); n != 1 {
		t.Errorf("scheduler entries = %d, expected exactly 1 after concurrent refreshes", n)
	}
}

func TestApplySchedule_MalformedTimeFallsBack(t *testing.T) {
	s := &DigestService{cronScheduler: cron.New()}

	s.applySchedule("not-a-time")

	if n := len(s.cronScheduler.Entries()); n != 1 {
		t.Errorf("scheduler entries = %d, expected fallback schedule", n)
	}
}
