package commands

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/store"
)

// VariantService handles variant lifecycle commands. Variant creation is the
// one place where four aggregates meet: the parent product (option check),
// the variant itself, its SKU reservation and the product's ordering child.
type VariantService struct {
	storage   Storage
	products  *store.Repository[*domain.Product]
	variants  *store.Repository[*domain.Variant]
	positions *store.Repository[*domain.VariantPositions]
	slugs     *store.Repository[*domain.SlugReservation]
	clock     func() time.Time
}

// CreateVariantParams is the body of variant.create.
type CreateVariantParams struct {
	VariantID string            `json:"variantId,omitempty"`
	ProductID string            `json:"productId"`
	SKU       string            `json:"sku"`
	Options   map[string]string `json:"options,omitempty"`
	ListPrice decimal.Decimal   `json:"listPrice"`
	Inventory int64             `json:"inventory"`
	Position  *int              `json:"position,omitempty"`

	// ExpectedVersion guards the parent product: the option set the caller
	// validated against must not have moved under them.
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Create creates a variant under a product: validates the options against the
// product's declared axes, reserves the SKU, and appends the variant to the
// product's ordering, all in one commit.
func (s *VariantService) Create(ctx context.Context, correlationID string, p CreateVariantParams) (*Result, error) {
	product, err := s.products.Load(ctx, p.ProductID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(product, p.ExpectedVersion); err != nil {
		return nil, err
	}
	if product.State().Status == domain.ProductStatusArchived {
		return nil, domain.Validationf("product %s is archived", p.ProductID)
	}
	if err := domain.ValidateVariantOptions(product.State(), p.Options); err != nil {
		return nil, err
	}

	if p.VariantID == "" {
		p.VariantID = domain.NewID()
	}
	variant, err := domain.NewVariant(domain.NewVariantParams{
		ID:            p.VariantID,
		ProductID:     p.ProductID,
		SKU:           p.SKU,
		Options:       p.Options,
		ListPrice:     p.ListPrice,
		Inventory:     p.Inventory,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}

	reservation, err := reserveSlug(ctx, s.slugs, p.SKU, variant.ID(), domain.SlugEntityTypeVariant, correlationID, s.clock())
	if err != nil {
		return nil, err
	}

	positions, err := s.positions.Load(ctx, product.State().VariantPositionsAggregateID, correlationID)
	if err != nil {
		return nil, err
	}
	position := -1
	if p.Position != nil {
		position = *p.Position
	}
	if err := positions.AddVariant(variant.ID(), position); err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(variant, reservation, positions)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: variant.ID(), Version: variant.Version()}, nil
}

// UpdatePriceParams is the body of variant.update_price.
type UpdatePriceParams struct {
	VariantID       string          `json:"variantId"`
	ListPrice       decimal.Decimal `json:"listPrice"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
}

// UpdatePrice changes the list price.
func (s *VariantService) UpdatePrice(ctx context.Context, correlationID string, p UpdatePriceParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.VariantID, p.ExpectedVersion, func(v *domain.Variant) error {
		return v.UpdatePrice(p.ListPrice)
	})
}

// SetInventoryParams is the body of variant.set_inventory.
type SetInventoryParams struct {
	VariantID       string `json:"variantId"`
	Inventory       int64  `json:"inventory"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// SetInventory sets the absolute inventory count.
func (s *VariantService) SetInventory(ctx context.Context, correlationID string, p SetInventoryParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.VariantID, p.ExpectedVersion, func(v *domain.Variant) error {
		return v.SetInventory(p.Inventory)
	})
}

// AdjustInventoryParams is the body of variant.adjust_inventory.
type AdjustInventoryParams struct {
	VariantID       string `json:"variantId"`
	Delta           int64  `json:"delta"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// AdjustInventory applies a relative inventory delta.
func (s *VariantService) AdjustInventory(ctx context.Context, correlationID string, p AdjustInventoryParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.VariantID, p.ExpectedVersion, func(v *domain.Variant) error {
		return v.AdjustInventory(p.Delta)
	})
}

// VariantImageParams is the body of variant.add_image.
type VariantImageParams struct {
	VariantID       string       `json:"variantId"`
	Image           domain.Image `json:"image"`
	ExpectedVersion *int64       `json:"expectedVersion,omitempty"`
}

// AddImage attaches a transcoded image to the variant.
func (s *VariantService) AddImage(ctx context.Context, correlationID string, p VariantImageParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.VariantID, p.ExpectedVersion, func(v *domain.Variant) error {
		return v.AddImage(p.Image)
	})
}

// RemoveVariantImageParams is the body of variant.remove_image.
type RemoveVariantImageParams struct {
	VariantID       string `json:"variantId"`
	ImageID         string `json:"imageId"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// RemoveImage detaches an image from the variant.
func (s *VariantService) RemoveImage(ctx context.Context, correlationID string, p RemoveVariantImageParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.VariantID, p.ExpectedVersion, func(v *domain.Variant) error {
		return v.RemoveImage(p.ImageID)
	})
}

// VariantRef addresses an existing variant.
type VariantRef struct {
	VariantID       string `json:"variantId"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Archive retires a variant: its position in the product ordering is removed
// and its SKU reservation is released in the same commit.
func (s *VariantService) Archive(ctx context.Context, correlationID string, p VariantRef) (*Result, error) {
	variant, err := s.variants.Load(ctx, p.VariantID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(variant, p.ExpectedVersion); err != nil {
		return nil, err
	}
	state := variant.State()
	if err := variant.Archive(); err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(variant)

	product, err := s.products.Load(ctx, state.ProductID, correlationID)
	if err == nil {
		positions, err := s.positions.Load(ctx, product.State().VariantPositionsAggregateID, correlationID)
		if err == nil && positions.VariantPosition(variant.ID()) >= 0 {
			if err := positions.RemoveVariant(variant.ID()); err != nil {
				return nil, err
			}
			uow.Save(positions)
		}
	}

	released, err := releaseSlug(ctx, s.slugs, state.SKU, "", correlationID, s.clock())
	if err != nil {
		return nil, err
	}
	if released != nil {
		uow.Save(released)
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: variant.ID(), Version: variant.Version()}, nil
}

// ReorderVariantsParams is the body of product.reorder_variants.
type ReorderVariantsParams struct {
	ProductID string   `json:"productId"`
	Order     []string `json:"order"`

	// ExpectedVersion guards the ordering aggregate, whose version the
	// caller received from the previous reorder or variant change.
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Reorder replaces the variant ordering of a product.
func (s *VariantService) Reorder(ctx context.Context, correlationID string, p ReorderVariantsParams) (*Result, error) {
	product, err := s.products.Load(ctx, p.ProductID, correlationID)
	if err != nil {
		return nil, err
	}
	positions, err := s.positions.Load(ctx, product.State().VariantPositionsAggregateID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(positions, p.ExpectedVersion); err != nil {
		return nil, err
	}
	if err := positions.Reorder(p.Order); err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(positions)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: positions.ID(), Version: positions.Version()}, nil
}

func (s *VariantService) mutate(ctx context.Context, correlationID, variantID string, expected *int64, fn func(*domain.Variant) error) (*Result, error) {
	variant, err := s.variants.Load(ctx, variantID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(variant, expected); err != nil {
		return nil, err
	}
	if err := fn(variant); err != nil {
		return nil, err
	}
	uow := s.storage.Begin()
	uow.Save(variant)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: variant.ID(), Version: variant.Version()}, nil
}

// Register binds the variant command types.
func (s *VariantService) Register(bus *Bus) {
	register(bus, "variant.create", s.Create)
	register(bus, "variant.update_price", s.UpdatePrice)
	register(bus, "variant.set_inventory", s.SetInventory)
	register(bus, "variant.adjust_inventory", s.AdjustInventory)
	register(bus, "variant.add_image", s.AddImage)
	register(bus, "variant.remove_image", s.RemoveImage)
	register(bus, "variant.archive", s.Archive)
	register(bus, "product.reorder_variants", s.Reorder)
}
