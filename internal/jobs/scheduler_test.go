package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingJob struct {
	runs atomic.Int32
	expr string
	err  error
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) CronExpression() string { return j.expr }

func TestJobScheduler_RegisterValidatesCron(t *testing.T) {
	s, err := NewJobScheduler()
	if err != nil {
		t.Fatalf("NewJobScheduler failed: %v", err)
	}
	defer s.Stop()

	if err := s.Register("bad", &countingJob{expr: "every five minutes"}); err == nil {
		t.Error("Expected invalid cron to be rejected")
	}
	if err := s.Register("good", &countingJob{expr: "*/5 * * * *"}); err != nil {
		t.Errorf("Expected valid cron to register, got %v", err)
	}
}

func TestJobScheduler_RunNowAndStatus(t *testing.T) {
	s, err := NewJobScheduler()
	if err != nil {
		t.Fatalf("NewJobScheduler failed: %v", err)
	}
	defer s.Stop()

	job := &countingJob{expr: "0 3 * * *"}
	if err := s.Register("nightly", job); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	s.Start()

	if err := s.RunNow("nightly"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if job.runs.Load() != 1 {
		t.Errorf("Expected 1 run, got %d", job.runs.Load())
	}

	if err := s.RunNow("missing"); err == nil {
		t.Error("Expected error for unknown job")
	}

	status := s.GetStatus()["nightly"]
	if !status.Registered || status.NextRunTime.Hour() != 3 || !status.NextRunTime.After(time.Now()) {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestJobScheduler_RunNowReturnsJobError(t *testing.T) {
	s, err := NewJobScheduler()
	if err != nil {
		t.Fatalf("NewJobScheduler failed: %v", err)
	}
	defer s.Stop()

	boom := errors.New("boom")
	_ = s.Register("failing", &countingJob{expr: "@hourly", err: boom})
	if err := s.RunNow("failing"); !errors.Is(err, boom) {
		t.Errorf("Expected job error, got %v", err)
	}
}

func TestValidateCron(t *testing.T) {
	if err := ValidateCron("*/5 * * * *"); err != nil {
		t.Errorf("Expected valid, got %v", err)
	}
	if err := ValidateCron("61 * * * *"); err == nil {
		t.Error("Expected minute 61 to be invalid")
	}
}
