package store

import (
	"context"
	"errors"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// Hydrator builds a typed aggregate from its snapshot row. Hydration never
// replays events: the snapshot is the full state.
type Hydrator[T domain.Aggregate] func(rec domain.SnapshotRecord, correlationID string) (T, error)

// Repository loads one aggregate type from snapshots.
type Repository[T domain.Aggregate] struct {
	snapshots     SnapshotReader
	acceptedTypes map[string]bool
	hydrate       Hydrator[T]
}

// NewRepository creates a repository accepting the given aggregate types.
// Most repositories accept exactly one type; the product repository accepts
// both the plain and the dropship aggregate type.
func NewRepository[T domain.Aggregate](snapshots SnapshotReader, hydrate Hydrator[T], aggregateTypes ...string) *Repository[T] {
	accepted := make(map[string]bool, len(aggregateTypes))
	for _, at := range aggregateTypes {
		accepted[at] = true
	}
	return &Repository[T]{
		snapshots:     snapshots,
		acceptedTypes: accepted,
		hydrate:       hydrate,
	}
}

// Load hydrates the aggregate with the given id. A snapshot of a different
// aggregate type reports not found rather than leaking a foreign aggregate.
func (r *Repository[T]) Load(ctx context.Context, id, correlationID string) (T, error) {
	var zero T
	rec, err := r.snapshots.GetSnapshot(ctx, id)
	if err != nil {
		return zero, err
	}
	if !r.acceptedTypes[rec.AggregateType] {
		return zero, domain.NotFoundf("aggregate %s not found", id)
	}
	return r.hydrate(rec, correlationID)
}

// Exists reports whether an aggregate with the given id and accepted type exists.
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	rec, err := r.snapshots.GetSnapshot(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.acceptedTypes[rec.AggregateType], nil
}
