// Package outbox delivers committed events to the message bus. Events are
// enqueued into the outbox table in the same transaction that commits them,
// then a background publisher drains the table with at-least-once semantics.
package outbox

import (
	"context"
	"time"
)

// Delivery states of an outbox entry. Failed entries stay claimable until
// delivery succeeds or retention removes them.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Entry is one undelivered event in the outbox table.
type Entry struct {
	ID            int64
	EventID       string
	AggregateID   string
	AggregateType string
	EventName     string
	Payload       []byte
	Status        string
	CreatedAt     time.Time
	RetryCount    int
}

// Repository is the storage side of the outbox.
type Repository interface {
	// ClaimPending leases up to batchSize undelivered entries that are due
	// (never tried, or past their retry time). Leased entries are invisible
	// to other claimers until the lease expires.
	ClaimPending(ctx context.Context, batchSize int, lease time.Duration) ([]Entry, error)

	// MarkPublished records successful delivery of the given entries.
	MarkPublished(ctx context.Context, ids []int64) error

	// MarkFailed records a delivery failure and schedules the next attempt.
	MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error

	// DeletePublished removes delivered entries older than the cutoff and
	// returns the number deleted.
	DeletePublished(ctx context.Context, olderThan time.Time) (int64, error)
}

// Config tunes the publisher loop.
type Config struct {
	// PublishInterval is the poll period of the drain loop.
	PublishInterval time.Duration

	// BatchSize caps entries claimed per tick.
	BatchSize int

	// Lease is how long a claimed entry stays invisible to other claimers.
	Lease time.Duration

	// RetryInterval is the base delay before a failed entry is retried;
	// actual delay grows exponentially with the retry count.
	RetryInterval time.Duration

	// MaxRetryInterval caps the exponential backoff.
	MaxRetryInterval time.Duration

	// RetentionPeriod is how long delivered entries are kept before cleanup.
	RetentionPeriod time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PublishInterval:  250 * time.Millisecond,
		BatchSize:        100,
		Lease:            30 * time.Second,
		RetryInterval:    time.Second,
		MaxRetryInterval: 5 * time.Minute,
		RetentionPeriod:  24 * time.Hour,
	}
}

// NextRetryAt computes the due time of the attempt after retryCount failures,
// using capped exponential backoff.
func (c Config) NextRetryAt(now time.Time, retryCount int) time.Time {
	delay := c.RetryInterval
	for i := 0; i < retryCount && delay < c.MaxRetryInterval; i++ {
		delay *= 2
	}
	if delay > c.MaxRetryInterval {
		delay = c.MaxRetryInterval
	}
	return now.Add(delay)
}
