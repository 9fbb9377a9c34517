package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/store/sqlite"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(sqlite.WithMemoryDatabase(), sqlite.WithClock(testClock))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeProduct(t *testing.T, id, slug string) *domain.Product {
	t.Helper()
	p, err := domain.NewProduct(domain.NewProductParams{
		ID:                 id,
		Name:               "Product " + id,
		Slug:               slug,
		FulfillmentType:    domain.FulfillmentTypeDigital,
		VariantPositionsID: "vp-" + id,
		CorrelationID:      "corr-" + id,
	})
	require.NoError(t, err)
	return p
}

func TestCommitNewAggregateGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prod := makeProduct(t, "prod-1", "linen-shirt")
	positions, err := domain.NewVariantPositions("vp-prod-1", "prod-1", "corr-prod-1")
	require.NoError(t, err)
	slugRes, err := domain.NewSlugReservation("linen-shirt", "prod-1", domain.SlugEntityTypeProduct, "corr-prod-1", testClock())
	require.NoError(t, err)

	uow := s.NewUnitOfWork()
	uow.Save(prod, positions, slugRes)
	require.NoError(t, uow.Commit(ctx))

	// Buffers cleared, versions advanced to 1 each.
	assert.Empty(t, prod.UncommittedEvents())
	for _, id := range []string{"prod-1", "vp-prod-1", "linen-shirt"} {
		rec, err := s.GetSnapshot(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Version, id)
	}

	events, err := s.LoadEvents(ctx, "prod-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "product.created", events[0].EventName)
	assert.Equal(t, int64(0), events[0].Version)
	assert.Equal(t, testClock(), events[0].OccurredAt)
	assert.Equal(t, "linen-shirt", events[0].Payload.NewState["slug"])

	// Every committed event was also enqueued for publication.
	entries, err := s.NewOutboxRepository().ClaimPending(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCommitIsAtomicAcrossAggregates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Reserve the slug first.
	first, err := domain.NewSlugReservation("taken", "prod-a", domain.SlugEntityTypeProduct, "corr-a", testClock())
	require.NoError(t, err)
	uow := s.NewUnitOfWork()
	uow.Save(first)
	require.NoError(t, uow.Commit(ctx))

	// A second commit carrying a fresh product plus the same reservation id
	// must fail entirely: no partial state.
	prod := makeProduct(t, "prod-b", "taken")
	dup, err := domain.NewSlugReservation("taken", "prod-b", domain.SlugEntityTypeProduct, "corr-b", testClock())
	require.NoError(t, err)

	uow = s.NewUnitOfWork()
	uow.Save(prod, dup)
	err = uow.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	_, err = s.GetSnapshot(ctx, "prod-b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommitDetectsStaleVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prod := makeProduct(t, "prod-1", "linen-shirt")
	uow := s.NewUnitOfWork()
	uow.Save(prod)
	require.NoError(t, uow.Commit(ctx))

	// Two sessions hydrate the same snapshot.
	rec, err := s.GetSnapshot(ctx, "prod-1")
	require.NoError(t, err)
	sessionA, err := domain.ProductFromSnapshot(rec, "corr-a")
	require.NoError(t, err)
	sessionB, err := domain.ProductFromSnapshot(rec, "corr-b")
	require.NoError(t, err)

	require.NoError(t, sessionA.Rename("First Writer"))
	uow = s.NewUnitOfWork()
	uow.Save(sessionA)
	require.NoError(t, uow.Commit(ctx))

	require.NoError(t, sessionB.Rename("Second Writer"))
	uow = s.NewUnitOfWork()
	uow.Save(sessionB)
	err = uow.Commit(ctx)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// The first write survived.
	rec, err = s.GetSnapshot(ctx, "prod-1")
	require.NoError(t, err)
	restored, err := domain.ProductFromSnapshot(rec, "corr-check")
	require.NoError(t, err)
	assert.Equal(t, "First Writer", restored.State().Name)
	assert.Equal(t, int64(2), restored.Version())
}

func TestCommitAssignsGlobalSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, slug := range []string{"one", "two", "three"} {
		prod := makeProduct(t, slug, slug)
		uow := s.NewUnitOfWork()
		uow.Save(prod)
		require.NoError(t, uow.Commit(ctx), i)
	}

	events, err := s.ListEventsSince(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, evt := range events {
		assert.Equal(t, int64(i+1), evt.Sequence)
	}

	tail, err := s.ListEventsSince(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "three", tail[0].AggregateID)
}

func TestCommitTwiceRejected(t *testing.T) {
	s := newTestStore(t)
	uow := s.NewUnitOfWork()
	uow.Save(makeProduct(t, "prod-1", "slug-1"))
	require.NoError(t, uow.Commit(context.Background()))
	assert.Error(t, uow.Commit(context.Background()))
}

func TestCheckpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pos, err := s.GetCheckpoint(ctx, "product_list")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	require.NoError(t, s.SaveCheckpoint(ctx, "product_list", 42))
	require.NoError(t, s.SaveCheckpoint(ctx, "product_list", 43))

	pos, err = s.GetCheckpoint(ctx, "product_list")
	require.NoError(t, err)
	assert.Equal(t, int64(43), pos)
}
