package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

func newPositions(t *testing.T, ids ...string) *domain.VariantPositions {
	t.Helper()
	vp, err := domain.NewVariantPositions("vp-1", "prod-1", "corr-1")
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, vp.AddVariant(id, -1))
	}
	return vp
}

func TestVariantPositionsInsert(t *testing.T) {
	tests := []struct {
		name     string
		position int
		want     []string
	}{
		{"at front", 0, []string{"var-new", "var-a", "var-b", "var-c"}},
		{"in middle", 1, []string{"var-a", "var-new", "var-b", "var-c"}},
		{"at end", 3, []string{"var-a", "var-b", "var-c", "var-new"}},
		{"negative appends", -1, []string{"var-a", "var-b", "var-c", "var-new"}},
		{"out of range clamps to end", 99, []string{"var-a", "var-b", "var-c", "var-new"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := newPositions(t, "var-a", "var-b", "var-c")
			require.NoError(t, vp.AddVariant("var-new", tt.position))
			assert.Equal(t, tt.want, vp.State().VariantIDs)
		})
	}

	t.Run("DuplicateRejected", func(t *testing.T) {
		vp := newPositions(t, "var-a")
		assert.ErrorIs(t, vp.AddVariant("var-a", 0), domain.ErrConstraintViolated)
	})
}

func TestVariantPositionsRemove(t *testing.T) {
	vp := newPositions(t, "var-a", "var-b")

	require.NoError(t, vp.RemoveVariant("var-a"))
	assert.Equal(t, []string{"var-b"}, vp.State().VariantIDs)
	assert.Equal(t, -1, vp.VariantPosition("var-a"))
	assert.Equal(t, 0, vp.VariantPosition("var-b"))

	assert.ErrorIs(t, vp.RemoveVariant("var-a"), domain.ErrConstraintViolated)
}

func TestVariantPositionsReorder(t *testing.T) {
	vp := newPositions(t, "var-a", "var-b", "var-c")

	require.NoError(t, vp.Reorder([]string{"var-c", "var-a", "var-b"}))
	assert.Equal(t, []string{"var-c", "var-a", "var-b"}, vp.State().VariantIDs)

	assert.ErrorIs(t, vp.Reorder([]string{"var-c", "var-a"}), domain.ErrValidationFailed)
	assert.ErrorIs(t, vp.Reorder([]string{"var-c", "var-a", "var-x"}), domain.ErrValidationFailed)
	assert.ErrorIs(t, vp.Reorder([]string{"var-c", "var-c", "var-a"}), domain.ErrValidationFailed)
}

func TestVariantPositionsArchive(t *testing.T) {
	vp := newPositions(t, "var-a", "var-b")

	require.NoError(t, vp.Archive())
	assert.Empty(t, vp.State().VariantIDs)
	assert.True(t, vp.State().Archived)

	assert.ErrorIs(t, vp.Archive(), domain.ErrValidationFailed)
	assert.ErrorIs(t, vp.AddVariant("var-c", -1), domain.ErrValidationFailed)
}

func TestCollectionProductPositions(t *testing.T) {
	cp, err := domain.NewCollectionProductPositions("cpp-1", "coll-1", "corr-1")
	require.NoError(t, err)
	assert.Equal(t, "collectionProductPositions.created", cp.UncommittedEvents()[0].EventName)

	require.NoError(t, cp.AddProduct("prod-a", -1))
	require.NoError(t, cp.AddProduct("prod-b", 0))
	assert.Equal(t, []string{"prod-b", "prod-a"}, cp.State().ProductIDs)

	assert.ErrorIs(t, cp.AddProduct("prod-a", -1), domain.ErrConstraintViolated)

	require.NoError(t, cp.Reorder([]string{"prod-a", "prod-b"}))
	require.NoError(t, cp.RemoveProduct("prod-a"))
	assert.Equal(t, []string{"prod-b"}, cp.State().ProductIDs)
}
