// Package sqlite implements the persistence contracts on a single SQLite
// database: events, snapshots, outbox and checkpoints share one file so a
// commit touches them in one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/store"
)

// Store is the SQLite-backed event store.
type Store struct {
	db    *sql.DB
	clock func() time.Time

	// Serializes commits. SQLite allows one writer anyway; taking the lock
	// in-process turns busy errors into queueing.
	mu sync.Mutex
}

type storeConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
	clock        func() time.Time
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		dsn:          "commerce.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
		clock:        time.Now,
	}
}

// Option configures a Store.
type Option func(*storeConfig)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *storeConfig) { c.dsn = dsn }
}

// WithMemoryDatabase uses an in-memory database, for tests.
func WithMemoryDatabase() Option {
	return func(c *storeConfig) { c.dsn = ":memory:" }
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(c *storeConfig) { c.maxOpenConns = n }
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(c *storeConfig) { c.maxIdleConns = n }
}

// WithWALMode toggles write-ahead logging. Recommended for file databases,
// ignored for :memory:.
func WithWALMode(enabled bool) Option {
	return func(c *storeConfig) { c.walMode = enabled }
}

// WithAutoMigrate toggles running pending migrations on startup.
func WithAutoMigrate(enabled bool) Option {
	return func(c *storeConfig) { c.autoMigrate = enabled }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *storeConfig) { c.clock = clock }
}

// New opens the store with the given options.
func New(opts ...Option) (*Store, error) {
	config := defaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}

	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A :memory: database exists per connection; pin the pool to one.
	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, clock: config.clock}

	if config.walMode && config.dsn != ":memory:" {
		if _, err := db.Exec(`
			PRAGMA journal_mode = WAL;
			PRAGMA synchronous = NORMAL;
			PRAGMA foreign_keys = ON;
		`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	if config.autoMigrate {
		if err := runMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return s, nil
}

// Begin starts a unit of work behind the store-agnostic interface.
func (s *Store) Begin() store.UnitOfWork {
	return s.NewUnitOfWork()
}

// DB exposes the underlying handle so projections can keep their read models
// in the same database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetSnapshot returns the snapshot row for an aggregate.
func (s *Store) GetSnapshot(ctx context.Context, aggregateID string) (domain.SnapshotRecord, error) {
	var (
		rec       domain.SnapshotRecord
		payload   string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT aggregate_id, aggregate_type, version, payload, correlation_id, updated_at
		FROM snapshots WHERE aggregate_id = ?
	`, aggregateID).Scan(&rec.AggregateID, &rec.AggregateType, &rec.Version, &payload, &rec.CorrelationID, &updatedAt)
	if err == sql.ErrNoRows {
		return domain.SnapshotRecord{}, domain.NotFoundf("aggregate %s not found", aggregateID)
	}
	if err != nil {
		return domain.SnapshotRecord{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	rec.Payload = json.RawMessage(payload)
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return rec, nil
}

// LoadEvents returns all committed events of one aggregate at or above
// fromVersion, in version order.
func (s *Store) LoadEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_id, aggregate_id, aggregate_type, event_name, version, correlation_id, payload, occurred_at
		FROM events WHERE aggregate_id = ? AND version >= ?
		ORDER BY version ASC
	`, aggregateID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsSince returns up to limit events with sequence > afterSequence.
func (s *Store) ListEventsSince(ctx context.Context, afterSequence int64, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_id, aggregate_id, aggregate_type, event_name, version, correlation_id, payload, occurred_at
		FROM events WHERE sequence > ?
		ORDER BY sequence ASC LIMIT ?
	`, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	var events []*domain.Event
	for rows.Next() {
		var (
			evt        domain.Event
			payload    string
			occurredAt int64
		)
		if err := rows.Scan(&evt.Sequence, &evt.ID, &evt.AggregateID, &evt.AggregateType,
			&evt.EventName, &evt.Version, &evt.CorrelationID, &payload, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode event payload %s: %w", evt.ID, err)
		}
		evt.OccurredAt = time.Unix(occurredAt, 0).UTC()
		events = append(events, &evt)
	}
	return events, rows.Err()
}
