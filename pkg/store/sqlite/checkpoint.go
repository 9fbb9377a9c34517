package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// GetCheckpoint returns the last processed sequence for a projection, zero
// when the projection has never run.
func (s *Store) GetCheckpoint(ctx context.Context, projection string) (int64, error) {
	var position int64
	err := s.db.QueryRowContext(ctx,
		`SELECT position FROM checkpoints WHERE projection_name = ?`, projection,
	).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get checkpoint for %s: %w", projection, err)
	}
	return position, nil
}

// SaveCheckpoint records the last processed sequence for a projection.
func (s *Store) SaveCheckpoint(ctx context.Context, projection string, sequence int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (projection_name, position, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(projection_name) DO UPDATE SET
			position = excluded.position,
			updated_at = excluded.updated_at
	`, projection, sequence, s.clock().UTC().Unix()); err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", projection, err)
	}
	return nil
}
