package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

func newVariant(t *testing.T) *domain.Variant {
	t.Helper()
	v, err := domain.NewVariant(domain.NewVariantParams{
		ID:            "var-1",
		ProductID:     "prod-1",
		SKU:           "SKU-1",
		Options:       map[string]string{"size": "m"},
		ListPrice:     decimal.RequireFromString("19.99"),
		Inventory:     10,
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	return v
}

func TestNewVariant(t *testing.T) {
	v := newVariant(t)

	require.Len(t, v.UncommittedEvents(), 1)
	evt := v.UncommittedEvents()[0]
	assert.Equal(t, "variant.created", evt.EventName)
	assert.Equal(t, int64(0), evt.Version)
	assert.Equal(t, domain.VariantStatusActive, v.State().Status)

	_, err := domain.NewVariant(domain.NewVariantParams{ID: "var-2", ProductID: "prod-1", SKU: ""})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = domain.NewVariant(domain.NewVariantParams{
		ID: "var-3", ProductID: "prod-1", SKU: "SKU-3",
		ListPrice: decimal.RequireFromString("-1"),
	})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestVariantPricing(t *testing.T) {
	v := newVariant(t)

	require.NoError(t, v.UpdatePrice(decimal.RequireFromString("24.99")))
	assert.True(t, v.State().ListPrice.Equal(decimal.RequireFromString("24.99")))

	evt := v.UncommittedEvents()[1]
	assert.Equal(t, "variant.price_updated", evt.EventName)

	assert.ErrorIs(t, v.UpdatePrice(decimal.RequireFromString("-0.01")), domain.ErrValidationFailed)
}

func TestVariantInventory(t *testing.T) {
	v := newVariant(t)

	t.Run("SetToZeroAllowed", func(t *testing.T) {
		require.NoError(t, v.SetInventory(0))
		assert.Equal(t, int64(0), v.State().Inventory)
	})

	t.Run("SetNegativeRejected", func(t *testing.T) {
		assert.ErrorIs(t, v.SetInventory(-1), domain.ErrValidationFailed)
	})

	t.Run("AdjustWithinBounds", func(t *testing.T) {
		require.NoError(t, v.SetInventory(5))
		require.NoError(t, v.AdjustInventory(-3))
		assert.Equal(t, int64(2), v.State().Inventory)
	})

	t.Run("AdjustBelowZeroRejected", func(t *testing.T) {
		assert.ErrorIs(t, v.AdjustInventory(-10), domain.ErrValidationFailed)
	})
}

func TestVariantArchiveIsTerminal(t *testing.T) {
	v := newVariant(t)
	require.NoError(t, v.Archive())

	assert.Equal(t, domain.VariantStatusArchived, v.State().Status)
	assert.ErrorIs(t, v.Archive(), domain.ErrValidationFailed)
	assert.ErrorIs(t, v.SetInventory(1), domain.ErrValidationFailed)
	assert.ErrorIs(t, v.UpdatePrice(decimal.RequireFromString("1")), domain.ErrValidationFailed)
}

func TestValidateVariantOptions(t *testing.T) {
	product := domain.ProductState{
		VariantOptions: []domain.VariantOption{
			{Name: "size", Values: []string{"s", "m", "l"}},
			{Name: "color", Values: []string{"red", "blue"}},
		},
	}

	tests := []struct {
		name    string
		options map[string]string
		wantErr string
	}{
		{"valid subset", map[string]string{"size": "m"}, ""},
		{"valid full", map[string]string{"size": "l", "color": "red"}, ""},
		{"empty options", map[string]string{}, ""},
		{"unknown option", map[string]string{"material": "wool"}, `option "material" is not valid for this product`},
		{"unknown value", map[string]string{"size": "xxl"}, `option value "xxl" is not valid for this product option "size"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidateVariantOptions(product, tt.options)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidationFailed)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}
