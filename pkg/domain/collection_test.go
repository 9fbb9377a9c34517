package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

func newCollection(t *testing.T) *domain.Collection {
	t.Helper()
	c, err := domain.NewCollection(domain.NewCollectionParams{
		ID:                  "coll-1",
		Name:                "Summer",
		Slug:                "summer",
		Description:         "Warm weather picks",
		ProductsPositionsID: "cpp-1",
		CorrelationID:       "corr-1",
	})
	require.NoError(t, err)
	return c
}

func TestNewCollection(t *testing.T) {
	c := newCollection(t)

	require.Len(t, c.UncommittedEvents(), 1)
	evt := c.UncommittedEvents()[0]
	assert.Equal(t, "collection.created", evt.EventName)
	assert.Equal(t, int64(0), evt.Version)
	assert.Equal(t, domain.CollectionStatusDraft, c.State().Status)

	_, err := domain.NewCollection(domain.NewCollectionParams{ID: "coll-2", Name: "X", Slug: "Bad Slug", ProductsPositionsID: "cpp-2"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestCollectionLifecycle(t *testing.T) {
	c := newCollection(t)

	require.NoError(t, c.Publish())
	assert.Equal(t, domain.CollectionStatusActive, c.State().Status)
	assert.ErrorIs(t, c.Publish(), domain.ErrValidationFailed)

	require.NoError(t, c.Rename("Summer 2026"))
	require.NoError(t, c.UpdateDescription("Updated picks"))
	require.NoError(t, c.ChangeSlug("summer-2026"))
	assert.ErrorIs(t, c.ChangeSlug("summer-2026"), domain.ErrValidationFailed)

	require.NoError(t, c.Archive())
	assert.ErrorIs(t, c.Rename("Nope"), domain.ErrValidationFailed)
	assert.ErrorIs(t, c.Publish(), domain.ErrValidationFailed)
	assert.ErrorIs(t, c.Archive(), domain.ErrValidationFailed)
}

func TestCollectionSnapshotRoundTrip(t *testing.T) {
	c := newCollection(t)
	require.NoError(t, c.Publish())

	payload, err := c.Snapshot()
	require.NoError(t, err)

	restored, err := domain.CollectionFromSnapshot(domain.SnapshotRecord{
		AggregateID:   c.ID(),
		AggregateType: c.Type(),
		Version:       c.Version(),
		Payload:       payload,
	}, "corr-2")
	require.NoError(t, err)
	assert.Equal(t, c.State(), restored.State())
	assert.Equal(t, int64(2), restored.Version())
}
