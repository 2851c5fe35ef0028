package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/aretw0/inplace/pkg/domain"
)

// UpdateScheduler batches update requests. Projects are marked with a
// pending UPDATE and flushed together once no request arrived for the quiet
// period. Providers queued for activation by the update are activated in
// the same flush.
type UpdateScheduler struct {
	runner    *Runner
	scheduler gocron.Scheduler
	quiet     time.Duration

	mu    sync.Mutex
	dirty bool
	last  time.Time
}

// NewUpdateScheduler creates a scheduler polling at interval and flushing
// after quiet.
func NewUpdateScheduler(r *Runner, interval, quiet time.Duration) (*UpdateScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	us := &UpdateScheduler{runner: r, scheduler: s, quiet: quiet}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(us.tick),
		gocron.WithName("update-flush"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create update flush job: %w", err)
	}
	return us, nil
}

// Schedule queues projects for the next flush.
func (s *UpdateScheduler) Schedule(projects ...domain.ProjectKey) error {
	if err := s.runner.AddPending(domain.Update, projects...); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty = true
	s.last = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *UpdateScheduler) tick() {
	s.mu.Lock()
	ready := s.dirty && time.Since(s.last) >= s.quiet
	if ready {
		s.dirty = false
	}
	s.mu.Unlock()
	if !ready {
		return
	}
	if _, err := s.Flush(context.Background()); err != nil {
		s.runner.logger.Error("Scheduled update failed", "err", err)
	}
}

// Flush runs the pending updates now, followed by the pending activations.
func (s *UpdateScheduler) Flush(ctx context.Context) (*domain.Status, error) {
	status, err := s.runner.Update(ctx, nil)
	if err != nil {
		return status, err
	}
	queued := s.runner.PendingProjects(domain.ActivateProject)
	if len(queued) == 0 {
		return status, nil
	}
	activation, err := s.runner.Activate(ctx, queued)
	if activation != nil {
		status.Add(activation)
	}
	return status, err
}

func (s *UpdateScheduler) Start() {
	s.runner.logger.Info("Starting update scheduler", "quiet", s.quiet)
	s.scheduler.Start()
}

func (s *UpdateScheduler) Stop() error {
	s.runner.logger.Info("Stopping update scheduler")
	return s.scheduler.Shutdown()
}
