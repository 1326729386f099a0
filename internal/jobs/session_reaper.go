package jobs

import (
	"context"
	"fmt"
	"log"
)

// ExpiredSessionReaper deletes idle sessions and returns how many it removed
type ExpiredSessionReaper interface {
	Reap() int
}

// SessionCounter reports the number of live sessions
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// SessionReaperJob removes ingestion sessions abandoned past the idle timeout.
// Stores with native expiry (Redis) pass a nil reaper and only report counts.
type SessionReaperJob struct {
	reaper   ExpiredSessionReaper
	counter  SessionCounter
	schedule string
	lastReap int
}

// NewSessionReaperJob creates the reaper job
func NewSessionReaperJob(reaper ExpiredSessionReaper, counter SessionCounter, schedule string) *SessionReaperJob {
	return &SessionReaperJob{reaper: reaper, counter: counter, schedule: schedule}
}

// Run reaps expired sessions
func (j *SessionReaperJob) Run(ctx context.Context) error {
	j.lastReap = 0
	if j.reaper != nil {
		j.lastReap = j.reaper.Reap()
		if j.lastReap > 0 {
			log.Printf("🧹 [SESSION-REAPER] Removed %d idle ingestion sessions", j.lastReap)
		}
	}

	if j.counter == nil {
		return nil
	}
	live, err := j.counter.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}
	if live > 0 {
		log.Printf("📊 [SESSION-REAPER] %d ingestion sessions in progress", live)
	}
	return nil
}

// CronExpression returns the reaper's schedule
func (j *SessionReaperJob) CronExpression() string {
	return j.schedule
}

// LastReaped returns how many sessions the last run removed
func (j *SessionReaperJob) LastReaped() int {
	return j.lastReap
}
