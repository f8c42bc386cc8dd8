// Package scheduler runs the bot's periodic maintenance jobs on cron specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/robfig/cron/v3"
)

// JobStoreGC compacts the chat configuration database.
const JobStoreGC = "store-gc"

// Job is one named maintenance task.
type Job struct {
	Name string
	// Spec is a standard five-field cron expression or a descriptor such as
	// "@every 1h".
	Spec string
	Run  func(ctx context.Context) error
}

// Service runs registered jobs on their schedules.
type Service struct {
	mu      sync.Mutex
	jobs    map[string]Job
	cron    *cron.Cron
	started bool
}

// NewService creates a direct cron-backed scheduler service.
func NewService() *Service {
	return &Service{
		jobs: make(map[string]Job),
		cron: cron.New(
			cron.WithLocation(time.Local),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
}

// ValidateSpec reports whether spec parses as a schedule.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Register adds a job. Jobs must be registered before Start.
func (s *Service) Register(job Job) error {
	name := strings.TrimSpace(job.Name)
	if name == "" {
		return errors.New("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no run func", name)
	}
	if err := ValidateSpec(job.Spec); err != nil {
		return fmt.Errorf("register job %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	job.Name = name
	s.jobs[name] = job
	return nil
}

// Start schedules every registered job and starts cron execution.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}

	for _, job := range s.jobs {
		job := job
		_, err := s.cron.AddFunc(job.Spec, func() {
			_ = s.run(ctx, job, "cron")
		})
		if err != nil {
			return fmt.Errorf("register cron job %q: %w", job.Name, err)
		}
	}

	s.cron.Start()
	s.started = true
	logging.Logger().Info("scheduler started", "jobs_registered", len(s.jobs))
	return nil
}

// Stop stops cron and waits for in-flight callbacks to finish or ctx cancellation.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	doneCtx := s.cron.Stop()
	s.started = false
	s.mu.Unlock()

	select {
	case <-doneCtx.Done():
		logging.Logger().Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes one job immediately by name.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	return s.run(ctx, job, "manual")
}

// Jobs returns the registered job names.
func (s *Service) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

func (s *Service) run(ctx context.Context, job Job, source string) error {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logging.Logger().Warn(
			"scheduled job failed",
			"job", job.Name,
			"source", source,
			"err", err,
		)
		return err
	}
	logging.Logger().Info(
		"scheduled job succeeded",
		"job", job.Name,
		"source", source,
		"duration", time.Since(start),
	)
	return nil
}
