package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/outbox"
)

// OutboxRepository implements outbox.Repository on the store's database.
type OutboxRepository struct {
	db    *sql.DB
	clock func() time.Time
}

// NewOutboxRepository returns the outbox repository bound to the store.
func (s *Store) NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{db: s.db, clock: s.clock}
}

// ClaimPending leases due undelivered entries. An entry is due when it has
// never been tried or its next retry time has passed, and no live lease holds it.
func (r *OutboxRepository) ClaimPending(ctx context.Context, batchSize int, lease time.Duration) ([]outbox.Entry, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	now := r.clock().UTC()
	leasedUntil := now.Add(lease)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin outbox claim: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_id, aggregate_id, aggregate_type, event_name, payload, status, created_at, retry_count
		FROM outbox
		WHERE status != 'delivered'
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		  AND (leased_until IS NULL OR leased_until <= ?)
		ORDER BY id ASC
		LIMIT ?
	`, now.Unix(), now.Unix(), batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}

	var entries []outbox.Entry
	for rows.Next() {
		var (
			e         outbox.Entry
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateID, &e.AggregateType, &e.EventName, &payload, &e.Status, &createdAt, &e.RetryCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Payload = []byte(payload)
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]any, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	query := fmt.Sprintf(
		"UPDATE outbox SET leased_until = ? WHERE id IN (%s)",
		placeholders(len(ids)),
	)
	args := append([]any{leasedUntil.Unix()}, ids...)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to lease outbox entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit outbox claim: %w", err)
	}
	return entries, nil
}

// MarkPublished records successful delivery.
func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, r.clock().UTC().Unix())
	for _, id := range ids {
		args = append(args, id)
	}
	query := fmt.Sprintf(
		"UPDATE outbox SET status = 'delivered', published_at = ?, leased_until = NULL WHERE id IN (%s)",
		placeholders(len(ids)),
	)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark outbox entries published: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure and schedules the next attempt.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = 'failed', retry_count = retry_count + 1, next_retry_at = ?, last_error = ?, leased_until = NULL
		WHERE id = ?
	`, nextRetryAt.UTC().Unix(), errMsg, id); err != nil {
		return fmt.Errorf("failed to mark outbox entry %d failed: %w", id, err)
	}
	return nil
}

// DeletePublished removes delivered entries older than the cutoff.
func (r *OutboxRepository) DeletePublished(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE status = 'delivered' AND published_at < ?
	`, olderThan.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete published outbox entries: %w", err)
	}
	return res.RowsAffected()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
