package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/store"
)

// Config holds the runner's polling parameters.
type Config struct {
	// PollInterval is how often each projection checks for new events.
	PollInterval time.Duration

	// BatchSize is the maximum number of events pulled per poll.
	BatchSize int
}

// DefaultConfig returns the production polling parameters.
func DefaultConfig() Config {
	return Config{
		PollInterval: 200 * time.Millisecond,
		BatchSize:    500,
	}
}

// Runner drives a set of projections off the global event sequence. Each
// projection advances its own checkpoint, so a slow or failing projection
// never holds the others back.
type Runner struct {
	reader      store.EventReader
	checkpoints store.CheckpointStore
	config      Config
	logger      *slog.Logger

	mu          sync.Mutex
	projections []Projection
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewRunner creates a runner over the given event source.
func NewRunner(reader store.EventReader, checkpoints store.CheckpointStore, config Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		reader:      reader,
		checkpoints: checkpoints,
		config:      config,
		logger:      logger,
	}
}

// Register adds a projection. Must be called before Start.
func (r *Runner) Register(projections ...Projection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projections = append(r.projections, projections...)
}

// Start initializes every projection's tables and launches one polling loop
// per projection. It returns after the loops are running.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.projections {
		if err := p.Init(ctx); err != nil {
			return fmt.Errorf("failed to init projection %s: %w", p.Name(), err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, p := range r.projections {
		r.wg.Add(1)
		go func(p Projection) {
			defer r.wg.Done()
			r.poll(runCtx, p)
		}(p)
	}
	return nil
}

// Stop cancels the polling loops and waits for them to drain.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Runner) poll(ctx context.Context, p Projection) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.catchUp(ctx, p); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "projection catch-up failed",
					slog.String("projection", p.Name()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// CatchUp synchronously processes all events a projection has not yet seen.
// The runner calls this on every tick; callers can also use it directly to
// make read models consistent with the store before querying them.
func (r *Runner) CatchUp(ctx context.Context) error {
	r.mu.Lock()
	projections := make([]Projection, len(r.projections))
	copy(projections, r.projections)
	r.mu.Unlock()

	for _, p := range projections {
		if err := p.Init(ctx); err != nil {
			return fmt.Errorf("failed to init projection %s: %w", p.Name(), err)
		}
		if err := r.catchUp(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) catchUp(ctx context.Context, p Projection) error {
	position, err := r.checkpoints.GetCheckpoint(ctx, p.Name())
	if err != nil {
		return fmt.Errorf("failed to load checkpoint for %s: %w", p.Name(), err)
	}

	for {
		events, err := r.reader.ListEventsSince(ctx, position, r.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to list events for %s: %w", p.Name(), err)
		}
		if len(events) == 0 {
			return nil
		}

		for _, evt := range events {
			if err := p.Handle(ctx, evt); err != nil {
				return fmt.Errorf("projection %s failed on event %s: %w", p.Name(), evt.ID, err)
			}
			position = evt.Sequence
		}
		if err := r.checkpoints.SaveCheckpoint(ctx, p.Name(), position); err != nil {
			return fmt.Errorf("failed to save checkpoint for %s: %w", p.Name(), err)
		}

		if len(events) < r.config.BatchSize {
			return nil
		}
	}
}

// Rebuild resets one projection and replays the whole event stream into it.
func (r *Runner) Rebuild(ctx context.Context, name string) error {
	r.mu.Lock()
	var target Projection
	for _, p := range r.projections {
		if p.Name() == name {
			target = p
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return fmt.Errorf("projection %s not registered", name)
	}
	if err := target.Init(ctx); err != nil {
		return fmt.Errorf("failed to init projection %s: %w", name, err)
	}
	if err := target.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset projection %s: %w", name, err)
	}
	if err := r.checkpoints.SaveCheckpoint(ctx, name, 0); err != nil {
		return fmt.Errorf("failed to reset checkpoint for %s: %w", name, err)
	}
	return r.catchUp(ctx, target)
}
