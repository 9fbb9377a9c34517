// Package scheduler executes deferred commands when their time arrives. It
// polls the schedule read model for due entries and runs each one through
// the command bus, leaving retry bookkeeping to the schedule aggregate.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/commands"
	"github.com/slapcommerce/core-sub014/pkg/projection"
)

// Config holds the scheduler's polling and retry parameters.
type Config struct {
	// PollInterval is how often due schedules are checked.
	PollInterval time.Duration

	// BatchSize is the maximum number of schedules executed per tick.
	BatchSize int

	// BaseRetryDelay is the first retry delay after a transient failure.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff.
	MaxRetryDelay time.Duration

	// MaxAttempts is the total number of tries before a schedule is
	// marked failed.
	MaxAttempts int
}

// DefaultConfig returns the production scheduling parameters.
func DefaultConfig() Config {
	return Config{
		PollInterval:   10 * time.Second,
		BatchSize:      50,
		BaseRetryDelay: 30 * time.Second,
		MaxRetryDelay:  30 * time.Minute,
		MaxAttempts:    5,
	}
}

// backoff returns the delay before the next attempt, doubling per retry up
// to the cap.
func (c Config) backoff(retryCount int) time.Duration {
	delay := c.BaseRetryDelay
	for i := 0; i < retryCount && delay < c.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > c.MaxRetryDelay {
		delay = c.MaxRetryDelay
	}
	return delay
}

// Scheduler drives due schedules through the command bus.
type Scheduler struct {
	schedules *projection.ScheduleList
	service   *commands.ScheduleService
	bus       *commands.Bus
	config    Config
	clock     func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler over the schedule read model.
func New(schedules *projection.ScheduleList, service *commands.ScheduleService, bus *commands.Bus, config Config, clock func() time.Time, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedules: schedules,
		service:   service,
		bus:       bus,
		config:    config,
		clock:     clock,
		logger:    logger,
	}
}

// Start launches the polling loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := s.Tick(runCtx); err != nil && runCtx.Err() == nil {
					s.logger.ErrorContext(runCtx, "scheduler tick failed",
						slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop cancels the polling loop and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Tick executes every due schedule once. Execution failures are absorbed
// into the schedule aggregate's retry state, so one bad schedule does not
// block the rest of the batch.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock()
	due, err := s.schedules.Due(ctx, now, s.config.BatchSize)
	if err != nil {
		return err
	}

	for _, d := range due {
		nextRetryAt := now.Add(s.config.backoff(d.RetryCount))
		if err := s.service.Execute(ctx, s.bus, d.ScheduleID, nextRetryAt, s.config.MaxAttempts); err != nil {
			s.logger.ErrorContext(ctx, "failed to execute schedule",
				slog.String("schedule_id", d.ScheduleID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
