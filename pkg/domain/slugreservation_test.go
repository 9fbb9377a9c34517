package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

func TestSlugReservation(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("SlugIsAggregateID", func(t *testing.T) {
		r, err := domain.NewSlugReservation("linen-shirt", "prod-1", domain.SlugEntityTypeProduct, "corr-1", now)
		require.NoError(t, err)

		assert.Equal(t, "linen-shirt", r.ID())
		assert.Equal(t, domain.AggregateTypeSlugReservation, r.Type())
		assert.Equal(t, "slugReservation.created", r.UncommittedEvents()[0].EventName)
		assert.True(t, r.IsActive())
	})

	t.Run("SKUReservation", func(t *testing.T) {
		// SKU uniqueness rides the same aggregate; SKUs keep their own format.
		r, err := domain.NewSlugReservation("SKU-1", "var-1", domain.SlugEntityTypeVariant, "corr-1", now)
		require.NoError(t, err)
		assert.Equal(t, "SKU-1", r.ID())
	})

	t.Run("ReleaseRecordsForwardingPointer", func(t *testing.T) {
		r, err := domain.NewSlugReservation("old-slug", "prod-1", domain.SlugEntityTypeProduct, "corr-1", now)
		require.NoError(t, err)

		require.NoError(t, r.Release("new-slug", now.Add(time.Hour)))
		st := r.State()
		assert.Equal(t, domain.SlugReservationStatusReleased, st.Status)
		assert.Equal(t, "new-slug", st.NewSlug)
		assert.False(t, r.IsActive())

		evt := r.UncommittedEvents()[1]
		assert.Equal(t, "slugReservation.released", evt.EventName)
		assert.Equal(t, "new-slug", evt.Payload.NewState["newSlug"])

		assert.ErrorIs(t, r.Release("other", now), domain.ErrValidationFailed)
	})

	t.Run("ReclaimReleasedSlug", func(t *testing.T) {
		r, err := domain.NewSlugReservation("old-slug", "prod-1", domain.SlugEntityTypeProduct, "corr-1", now)
		require.NoError(t, err)
		require.NoError(t, r.Release("new-slug", now))

		// A different entity type may take over a released slug.
		require.NoError(t, r.Reclaim("coll-9", domain.SlugEntityTypeCollection, now.Add(time.Hour)))
		st := r.State()
		assert.True(t, r.IsActive())
		assert.Equal(t, "coll-9", st.EntityID)
		assert.Equal(t, domain.SlugEntityTypeCollection, st.EntityType)
		assert.Empty(t, st.NewSlug)

		assert.ErrorIs(t, r.Reclaim("prod-2", domain.SlugEntityTypeProduct, now), domain.ErrConstraintViolated)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := domain.NewSlugReservation("", "prod-1", domain.SlugEntityTypeProduct, "corr-1", now)
		assert.ErrorIs(t, err, domain.ErrValidationFailed)

		_, err = domain.NewSlugReservation("slug", "", domain.SlugEntityTypeProduct, "corr-1", now)
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})
}
