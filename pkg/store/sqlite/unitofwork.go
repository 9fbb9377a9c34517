package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// UnitOfWork collects aggregates touched by one command and commits their
// uncommitted events, snapshots and outbox entries in a single transaction.
type UnitOfWork struct {
	store      *Store
	registered []domain.Aggregate
	committed  bool
}

// NewUnitOfWork starts an empty unit of work.
func (s *Store) NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{store: s}
}

// Save registers aggregates for the commit. Registering the same aggregate
// twice is harmless: the second registration has no uncommitted events left
// after the first commit, and duplicate registration before commit is a
// programming error caught by the unique event id constraint.
func (u *UnitOfWork) Save(aggregates ...domain.Aggregate) {
	u.registered = append(u.registered, aggregates...)
}

// Commit writes everything atomically. Per aggregate it verifies the expected
// version against the snapshots table, appends the events, upserts the
// snapshot and enqueues each event into the outbox. Any version mismatch
// rolls back the whole commit.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.committed {
		return fmt.Errorf("unit of work already committed")
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	tx, err := u.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := u.store.clock().UTC()

	for _, agg := range u.registered {
		if err := u.commitAggregate(ctx, tx, agg, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.committed = true

	for _, agg := range u.registered {
		agg.ClearUncommittedEvents()
	}
	return nil
}

func (u *UnitOfWork) commitAggregate(ctx context.Context, tx *sql.Tx, agg domain.Aggregate, now time.Time) error {
	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}
	expectedVersion := agg.Version() - int64(len(events))

	var currentVersion int64
	err := tx.QueryRowContext(ctx,
		`SELECT version FROM snapshots WHERE aggregate_id = ?`, agg.ID(),
	).Scan(&currentVersion)
	switch {
	case err == sql.ErrNoRows:
		if expectedVersion != 0 {
			return domain.Conflictf("aggregate %s does not exist at expected version %d", agg.ID(), expectedVersion)
		}
	case err != nil:
		return fmt.Errorf("failed to check current version of %s: %w", agg.ID(), err)
	default:
		if expectedVersion == 0 {
			// A fresh aggregate raced an existing one with the same id.
			// For slug reservations this is how uniqueness shows up.
			return domain.Conflictf("aggregate %s already exists", agg.ID())
		}
		if currentVersion != expectedVersion {
			return domain.Conflictf("aggregate %s is at version %d, expected %d", agg.ID(), currentVersion, expectedVersion)
		}
	}

	for _, evt := range events {
		evt.OccurredAt = now

		payload, err := evt.Payload.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal payload of %s: %w", evt.EventName, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (event_id, aggregate_id, aggregate_type, event_name, version, correlation_id, payload, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, evt.ID, evt.AggregateID, evt.AggregateType, evt.EventName, evt.Version, evt.CorrelationID, string(payload), now.Unix()); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", evt.ID, err)
		}

		// The outbox carries the full event envelope so the publisher never
		// needs to join back to the events table.
		envelope, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal event envelope %s: %w", evt.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outbox (event_id, aggregate_id, aggregate_type, event_name, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, evt.ID, evt.AggregateID, evt.AggregateType, evt.EventName, string(envelope), now.Unix()); err != nil {
			return fmt.Errorf("failed to enqueue outbox entry for %s: %w", evt.ID, err)
		}
	}

	snapshot, err := agg.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot %s: %w", agg.ID(), err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, version, payload, correlation_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(aggregate_id) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			correlation_id = excluded.correlation_id,
			updated_at = excluded.updated_at
	`, agg.ID(), agg.Type(), agg.Version(), string(snapshot), agg.CorrelationID(), now.Unix()); err != nil {
		return fmt.Errorf("failed to upsert snapshot of %s: %w", agg.ID(), err)
	}
	return nil
}
