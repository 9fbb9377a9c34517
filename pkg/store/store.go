// Package store defines the persistence contracts for aggregates, events and
// projections. Implementations live in subpackages (sqlite).
package store

import (
	"context"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// SnapshotReader loads the latest-state row for an aggregate.
type SnapshotReader interface {
	// GetSnapshot returns the snapshot row for an aggregate, or
	// domain.ErrNotFound when none exists.
	GetSnapshot(ctx context.Context, aggregateID string) (domain.SnapshotRecord, error)
}

// EventReader reads committed events.
type EventReader interface {
	// LoadEvents returns all committed events of one aggregate at or above
	// fromVersion, in version order.
	LoadEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]*domain.Event, error)

	// ListEventsSince returns up to limit committed events with a global
	// sequence strictly greater than afterSequence, in sequence order.
	// Projections page through the log with it.
	ListEventsSince(ctx context.Context, afterSequence int64, limit int) ([]*domain.Event, error)
}

// UnitOfWork batches aggregate saves into one atomic commit: events append,
// snapshot upsert and outbox enqueue all land in the same transaction, or
// none of them do.
type UnitOfWork interface {
	// Save registers aggregates whose uncommitted events should be part of
	// the commit.
	Save(aggregates ...domain.Aggregate)

	// Commit persists all registered aggregates atomically. On success the
	// aggregates' uncommitted buffers are cleared. A version mismatch on any
	// aggregate fails the whole commit with domain.ErrConcurrencyConflict.
	Commit(ctx context.Context) error
}

// CheckpointStore tracks per-projection positions in the global event log.
type CheckpointStore interface {
	// GetCheckpoint returns the last processed sequence for a projection,
	// zero when the projection has never run.
	GetCheckpoint(ctx context.Context, projection string) (int64, error)

	// SaveCheckpoint records the last processed sequence for a projection.
	SaveCheckpoint(ctx context.Context, projection string, sequence int64) error
}
