package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Job interface that all scheduled jobs must implement
type Job interface {
	Run(ctx context.Context) error
	// CronExpression is a standard 5-field cron schedule
	CronExpression() string
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron reports whether expr is a usable 5-field schedule
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// JobScheduler runs registered jobs on their cron schedules
type JobScheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]Job
	schedules map[string]cron.Schedule
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   bool
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		jobs:      make(map[string]Job),
		schedules: make(map[string]cron.Schedule),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Register adds a job to the scheduler
func (s *JobScheduler) Register(name string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expr := job.CronExpression()
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("job %s: invalid cron expression %q: %w", name, expr, err)
	}

	_, err = s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() {
			s.runJob(name, job)
		}),
		gocron.WithName(name),
		// A slow run is skipped rather than overlapped
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.schedules[name] = schedule
	log.Printf("✅ [SCHEDULER] Registered job: %s (cron: %s)", name, expr)
	return nil
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started job scheduler with %d jobs", len(s.jobs))
}

// runJob executes one scheduled run
func (s *JobScheduler) runJob(name string, job Job) {
	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	startTime := time.Now()

	if err := job.Run(s.ctx); err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		return
	}

	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
}

// Stop cancels running jobs and waits for them to return
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️  [SCHEDULER] Shutdown error: %v", err)
	}
	if wasRunning {
		log.Println("✅ [SCHEDULER] Job scheduler stopped")
	}
}

// RunNow immediately runs a specific job
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %q not found", name)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return job.Run(s.ctx)
}

// GetStatus returns the status of all jobs
func (s *JobScheduler) GetStatus() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	status := make(map[string]JobStatus, len(s.jobs))
	for name, job := range s.jobs {
		status[name] = JobStatus{
			Name:           name,
			CronExpression: job.CronExpression(),
			NextRunTime:    s.schedules[name].Next(now),
			Registered:     true,
		}
	}
	return status
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name           string    `json:"name"`
	CronExpression string    `json:"cron_expression"`
	NextRunTime    time.Time `json:"next_run_time"`
	Registered     bool      `json:"registered"`
}
