package commands

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/store"
)

// ProductService handles product lifecycle commands.
type ProductService struct {
	storage   Storage
	products  *store.Repository[*domain.Product]
	positions *store.Repository[*domain.VariantPositions]
	slugs     *store.Repository[*domain.SlugReservation]
	schedules *store.Repository[*domain.Schedule]
	clock     func() time.Time
}

// CreateProductParams is the body of product.create.
type CreateProductParams struct {
	ProductID             string                 `json:"productId,omitempty"`
	Name                  string                 `json:"name"`
	Slug                  string                 `json:"slug,omitempty"`
	Collections           []string               `json:"collections,omitempty"`
	VariantOptions        []domain.VariantOption `json:"variantOptions,omitempty"`
	Metadata              domain.Metadata        `json:"metadata,omitempty"`
	Tags                  []string               `json:"tags,omitempty"`
	FulfillmentType       domain.FulfillmentType `json:"fulfillmentType"`
	DropshipSafetyBuffer  *int64                 `json:"dropshipSafetyBuffer,omitempty"`
	TaxCode               string                 `json:"taxCode,omitempty"`
	Vendor                string                 `json:"vendor,omitempty"`
	SupplierCost          *decimal.Decimal       `json:"supplierCost,omitempty"`
	SupplierSKU           string                 `json:"supplierSku,omitempty"`
	FulfillmentProviderID string                 `json:"fulfillmentProviderId,omitempty"`
}

// Create creates a product together with its variant-positions child and its
// slug reservation, in one commit. An omitted slug is derived from the name.
func (s *ProductService) Create(ctx context.Context, correlationID string, p CreateProductParams) (*Result, error) {
	if p.ProductID == "" {
		p.ProductID = domain.NewID()
	}
	if p.Slug == "" {
		p.Slug = domain.DeriveSlug(p.Name)
	}

	positionsID := domain.NewID()
	product, err := domain.NewProduct(domain.NewProductParams{
		ID:                    p.ProductID,
		Name:                  p.Name,
		Slug:                  p.Slug,
		Collections:           p.Collections,
		VariantOptions:        p.VariantOptions,
		Metadata:              p.Metadata,
		Tags:                  p.Tags,
		FulfillmentType:       p.FulfillmentType,
		DropshipSafetyBuffer:  p.DropshipSafetyBuffer,
		VariantPositionsID:    positionsID,
		TaxCode:               p.TaxCode,
		Vendor:                p.Vendor,
		SupplierCost:          p.SupplierCost,
		SupplierSKU:           p.SupplierSKU,
		FulfillmentProviderID: p.FulfillmentProviderID,
		CorrelationID:         correlationID,
	})
	if err != nil {
		return nil, err
	}

	positions, err := domain.NewVariantPositions(positionsID, product.ID(), correlationID)
	if err != nil {
		return nil, err
	}

	entityType := domain.SlugEntityTypeProduct
	if product.IsDropship() {
		entityType = domain.SlugEntityTypeDropshipProduct
	}
	reservation, err := reserveSlug(ctx, s.slugs, p.Slug, product.ID(), entityType, correlationID, s.clock())
	if err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(product, positions, reservation)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: product.ID(), Version: product.Version()}, nil
}

// ProductRef addresses an existing product. ExpectedVersion, when present,
// is the snapshot version the caller last saw; a mismatch fails the command
// before anything is mutated.
type ProductRef struct {
	ProductID       string `json:"productId"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Publish makes a product visible in the catalogue.
func (s *ProductService) Publish(ctx context.Context, correlationID string, p ProductRef) (*Result, error) {
	return s.mutate(ctx, correlationID, p.ProductID, p.ExpectedVersion, func(product *domain.Product) error {
		return product.Publish(s.clock())
	})
}

// Archive retires a product and its variant ordering. The slug reservation
// stays active so the URI keeps resolving to the archived product.
func (s *ProductService) Archive(ctx context.Context, correlationID string, p ProductRef) (*Result, error) {
	product, err := s.products.Load(ctx, p.ProductID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(product, p.ExpectedVersion); err != nil {
		return nil, err
	}
	if err := product.Archive(); err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(product)

	positions, err := s.positions.Load(ctx, product.State().VariantPositionsAggregateID, correlationID)
	if err == nil {
		if err := positions.Archive(); err == nil {
			uow.Save(positions)
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: product.ID(), Version: product.Version()}, nil
}

// RenameProductParams is the body of product.rename.
type RenameProductParams struct {
	ProductID       string `json:"productId"`
	Name            string `json:"name"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Rename changes the display name.
func (s *ProductService) Rename(ctx context.Context, correlationID string, p RenameProductParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.ProductID, p.ExpectedVersion, func(product *domain.Product) error {
		return product.Rename(p.Name)
	})
}

// ChangeSlugParams is the body of product.change_slug.
type ChangeSlugParams struct {
	ProductID       string `json:"productId"`
	NewSlug         string `json:"newSlug"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// ChangeSlug moves the product to a new slug: the new slug is reserved, the
// old reservation is released with a forwarding pointer, and the product is
// updated, all in one commit.
func (s *ProductService) ChangeSlug(ctx context.Context, correlationID string, p ChangeSlugParams) (*Result, error) {
	product, err := s.products.Load(ctx, p.ProductID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(product, p.ExpectedVersion); err != nil {
		return nil, err
	}
	oldSlug := product.State().Slug
	if err := product.ChangeSlug(p.NewSlug); err != nil {
		return nil, err
	}

	entityType := domain.SlugEntityTypeProduct
	if product.IsDropship() {
		entityType = domain.SlugEntityTypeDropshipProduct
	}
	now := s.clock()
	reservation, err := reserveSlug(ctx, s.slugs, p.NewSlug, product.ID(), entityType, correlationID, now)
	if err != nil {
		return nil, err
	}
	released, err := releaseSlug(ctx, s.slugs, oldSlug, p.NewSlug, correlationID, now)
	if err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(product, reservation)
	if released != nil {
		uow.Save(released)
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: product.ID(), Version: product.Version()}, nil
}

// UpdateMetadataParams is the body of product.update_metadata.
type UpdateMetadataParams struct {
	ProductID       string          `json:"productId"`
	Metadata        domain.Metadata `json:"metadata"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
}

// UpdateMetadata replaces the SEO metadata.
func (s *ProductService) UpdateMetadata(ctx context.Context, correlationID string, p UpdateMetadataParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.ProductID, p.ExpectedVersion, func(product *domain.Product) error {
		return product.UpdateMetadata(p.Metadata)
	})
}

// UpdateTagsParams is the body of product.update_tags.
type UpdateTagsParams struct {
	ProductID       string   `json:"productId"`
	Tags            []string `json:"tags"`
	ExpectedVersion *int64   `json:"expectedVersion,omitempty"`
}

// UpdateTags replaces the tag list.
func (s *ProductService) UpdateTags(ctx context.Context, correlationID string, p UpdateTagsParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.ProductID, p.ExpectedVersion, func(product *domain.Product) error {
		return product.UpdateTags(p.Tags)
	})
}

// AssignCollectionsParams is the body of product.assign_collections.
type AssignCollectionsParams struct {
	ProductID       string   `json:"productId"`
	Collections     []string `json:"collections"`
	ExpectedVersion *int64   `json:"expectedVersion,omitempty"`
}

// AssignCollections replaces the collection membership list.
func (s *ProductService) AssignCollections(ctx context.Context, correlationID string, p AssignCollectionsParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.ProductID, p.ExpectedVersion, func(product *domain.Product) error {
		return product.AssignCollections(p.Collections)
	})
}

// AddImageParams is the body of product.add_image.
type AddImageParams struct {
	ProductID       string       `json:"productId"`
	Image           domain.Image `json:"image"`
	ExpectedVersion *int64       `json:"expectedVersion,omitempty"`
}

// AddImage attaches a transcoded image.
func (s *ProductService) AddImage(ctx context.Context, correlationID string, p AddImageParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.ProductID, p.ExpectedVersion, func(product *domain.Product) error {
		return product.AddImage(p.Image)
	})
}

// RemoveImageParams is the body of product.remove_image.
type RemoveImageParams struct {
	ProductID       string `json:"productId"`
	ImageID         string `json:"imageId"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// RemoveImage detaches an image.
func (s *ProductService) RemoveImage(ctx context.Context, correlationID string, p RemoveImageParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.ProductID, p.ExpectedVersion, func(product *domain.Product) error {
		return product.RemoveImage(p.ImageID)
	})
}

// ReorderImagesParams is the body of product.reorder_images.
type ReorderImagesParams struct {
	ProductID       string   `json:"productId"`
	Order           []string `json:"order"`
	ExpectedVersion *int64   `json:"expectedVersion,omitempty"`
}

// ReorderImages rearranges the image gallery.
func (s *ProductService) ReorderImages(ctx context.Context, correlationID string, p ReorderImagesParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.ProductID, p.ExpectedVersion, func(product *domain.Product) error {
		return product.ReorderImages(p.Order)
	})
}

// ScheduleDropParams is the body of the drop scheduling commands.
type ScheduleDropParams struct {
	ProductID       string    `json:"productId"`
	ScheduledFor    time.Time `json:"scheduledFor"`
	ExpectedVersion *int64    `json:"expectedVersion,omitempty"`
}

// ScheduleVisibleDrop schedules a dropship product to go live at a future
// time while staying visible until then.
func (s *ProductService) ScheduleVisibleDrop(ctx context.Context, correlationID string, p ScheduleDropParams) (*Result, error) {
	return s.scheduleDrop(ctx, correlationID, p, false)
}

// ScheduleHiddenDrop schedules a dropship product to go live at a future
// time while staying hidden until then.
func (s *ProductService) ScheduleHiddenDrop(ctx context.Context, correlationID string, p ScheduleDropParams) (*Result, error) {
	return s.scheduleDrop(ctx, correlationID, p, true)
}

func (s *ProductService) scheduleDrop(ctx context.Context, correlationID string, p ScheduleDropParams, hidden bool) (*Result, error) {
	if p.ScheduledFor.IsZero() {
		return nil, domain.Validationf("scheduledFor is required")
	}
	if !p.ScheduledFor.After(s.clock()) {
		return nil, domain.Validationf("scheduledFor must be in the future")
	}
	product, err := s.products.Load(ctx, p.ProductID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(product, p.ExpectedVersion); err != nil {
		return nil, err
	}

	scheduleID := domain.NewID()
	if hidden {
		err = product.ScheduleHiddenDrop(scheduleID, p.ScheduledFor)
	} else {
		err = product.ScheduleVisibleDrop(scheduleID, p.ScheduledFor)
	}
	if err != nil {
		return nil, err
	}

	schedule, err := domain.NewSchedule(domain.NewScheduleParams{
		ID:                  scheduleID,
		TargetAggregateID:   product.ID(),
		TargetAggregateType: product.Type(),
		CommandType:         "product.publish",
		CommandData:         mustJSON(ProductRef{ProductID: product.ID()}),
		ScheduledFor:        p.ScheduledFor,
		CorrelationID:       correlationID,
	})
	if err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(product, schedule)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: product.ID(), Version: product.Version()}, nil
}

func (s *ProductService) mutate(ctx context.Context, correlationID, productID string, expected *int64, fn func(*domain.Product) error) (*Result, error) {
	product, err := s.products.Load(ctx, productID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(product, expected); err != nil {
		return nil, err
	}
	if err := fn(product); err != nil {
		return nil, err
	}
	uow := s.storage.Begin()
	uow.Save(product)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: product.ID(), Version: product.Version()}, nil
}

// Register binds the product command types.
func (s *ProductService) Register(bus *Bus) {
	register(bus, "product.create", s.Create)
	register(bus, "product.publish", s.Publish)
	register(bus, "product.archive", s.Archive)
	register(bus, "product.rename", s.Rename)
	register(bus, "product.change_slug", s.ChangeSlug)
	register(bus, "product.update_metadata", s.UpdateMetadata)
	register(bus, "product.update_tags", s.UpdateTags)
	register(bus, "product.assign_collections", s.AssignCollections)
	register(bus, "product.add_image", s.AddImage)
	register(bus, "product.remove_image", s.RemoveImage)
	register(bus, "product.reorder_images", s.ReorderImages)
	register(bus, "product.schedule_visible_drop", s.ScheduleVisibleDrop)
	register(bus, "product.schedule_hidden_drop", s.ScheduleHiddenDrop)
}
