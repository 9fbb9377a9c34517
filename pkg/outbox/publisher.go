package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Bus is where the publisher delivers events. Implementations must tolerate
// duplicate deliveries of the same entry.
type Bus interface {
	Publish(entry Entry) error
}

// Publisher drains the outbox table to the bus on a fixed interval.
type Publisher struct {
	repo   Repository
	bus    Bus
	config Config
	clock  func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPublisher creates a publisher over the given repository and bus.
func NewPublisher(repo Repository, bus Bus, config Config, clock func() time.Time, logger *slog.Logger) *Publisher {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		repo:   repo,
		bus:    bus,
		config: config,
		clock:  clock,
		logger: logger,
	}
}

// Start launches the drain loop. It returns immediately.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.config.PublishInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := p.PublishPending(runCtx); err != nil && runCtx.Err() == nil {
					p.logger.ErrorContext(runCtx, "outbox drain failed",
						slog.String("error", err.Error()))
				}
				cutoff := p.clock().Add(-p.config.RetentionPeriod)
				if _, err := p.repo.DeletePublished(runCtx, cutoff); err != nil && runCtx.Err() == nil {
					p.logger.ErrorContext(runCtx, "outbox cleanup failed",
						slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop cancels the drain loop and waits for it to finish.
func (p *Publisher) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// PublishPending claims one batch of due entries and delivers them. Entries
// that fail to publish are rescheduled with backoff; the rest of the batch
// proceeds.
func (p *Publisher) PublishPending(ctx context.Context) error {
	entries, err := p.repo.ClaimPending(ctx, p.config.BatchSize, p.config.Lease)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	published := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if err := p.bus.Publish(entry); err != nil {
			nextRetryAt := p.config.NextRetryAt(p.clock(), entry.RetryCount)
			p.logger.WarnContext(ctx, "failed to publish outbox entry",
				slog.String("event_id", entry.EventID),
				slog.String("event_name", entry.EventName),
				slog.Int("retry_count", entry.RetryCount+1),
				slog.Time("next_retry_at", nextRetryAt),
				slog.String("error", err.Error()),
			)
			if markErr := p.repo.MarkFailed(ctx, entry.ID, err.Error(), nextRetryAt); markErr != nil {
				return markErr
			}
			continue
		}
		published = append(published, entry.ID)
	}

	if len(published) == 0 {
		return nil
	}
	return p.repo.MarkPublished(ctx, published)
}
