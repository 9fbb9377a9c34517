package commands

import (
	"context"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/store"
)

// CollectionService handles collection lifecycle and membership commands.
type CollectionService struct {
	storage     Storage
	collections *store.Repository[*domain.Collection]
	positions   *store.Repository[*domain.CollectionProductPositions]
	products    *store.Repository[*domain.Product]
	slugs       *store.Repository[*domain.SlugReservation]
	clock       func() time.Time
}

// CreateCollectionParams is the body of collection.create.
type CreateCollectionParams struct {
	CollectionID string          `json:"collectionId,omitempty"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug,omitempty"`
	Description  string          `json:"description,omitempty"`
	Metadata     domain.Metadata `json:"metadata,omitempty"`
}

// Create creates a collection with its product-positions child and slug
// reservation in one commit.
func (s *CollectionService) Create(ctx context.Context, correlationID string, p CreateCollectionParams) (*Result, error) {
	if p.CollectionID == "" {
		p.CollectionID = domain.NewID()
	}
	if p.Slug == "" {
		p.Slug = domain.DeriveSlug(p.Name)
	}

	positionsID := domain.NewID()
	collection, err := domain.NewCollection(domain.NewCollectionParams{
		ID:                  p.CollectionID,
		Name:                p.Name,
		Slug:                p.Slug,
		Description:         p.Description,
		Metadata:            p.Metadata,
		ProductsPositionsID: positionsID,
		CorrelationID:       correlationID,
	})
	if err != nil {
		return nil, err
	}

	positions, err := domain.NewCollectionProductPositions(positionsID, collection.ID(), correlationID)
	if err != nil {
		return nil, err
	}
	reservation, err := reserveSlug(ctx, s.slugs, p.Slug, collection.ID(), domain.SlugEntityTypeCollection, correlationID, s.clock())
	if err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(collection, positions, reservation)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: collection.ID(), Version: collection.Version()}, nil
}

// CollectionRef addresses an existing collection.
type CollectionRef struct {
	CollectionID    string `json:"collectionId"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Publish makes a collection visible.
func (s *CollectionService) Publish(ctx context.Context, correlationID string, p CollectionRef) (*Result, error) {
	return s.mutate(ctx, correlationID, p.CollectionID, p.ExpectedVersion, func(c *domain.Collection) error {
		return c.Publish()
	})
}

// Archive retires a collection and its product ordering.
func (s *CollectionService) Archive(ctx context.Context, correlationID string, p CollectionRef) (*Result, error) {
	collection, err := s.collections.Load(ctx, p.CollectionID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(collection, p.ExpectedVersion); err != nil {
		return nil, err
	}
	if err := collection.Archive(); err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(collection)

	positions, err := s.positions.Load(ctx, collection.State().ProductsAggregateID, correlationID)
	if err == nil {
		if err := positions.Archive(); err == nil {
			uow.Save(positions)
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: collection.ID(), Version: collection.Version()}, nil
}

// RenameCollectionParams is the body of collection.rename.
type RenameCollectionParams struct {
	CollectionID    string `json:"collectionId"`
	Name            string `json:"name"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Rename changes the display name.
func (s *CollectionService) Rename(ctx context.Context, correlationID string, p RenameCollectionParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.CollectionID, p.ExpectedVersion, func(c *domain.Collection) error {
		return c.Rename(p.Name)
	})
}

// ChangeCollectionSlugParams is the body of collection.change_slug.
type ChangeCollectionSlugParams struct {
	CollectionID    string `json:"collectionId"`
	NewSlug         string `json:"newSlug"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// ChangeSlug moves the collection to a new slug with the same reservation
// swap as products.
func (s *CollectionService) ChangeSlug(ctx context.Context, correlationID string, p ChangeCollectionSlugParams) (*Result, error) {
	collection, err := s.collections.Load(ctx, p.CollectionID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(collection, p.ExpectedVersion); err != nil {
		return nil, err
	}
	oldSlug := collection.State().Slug
	if err := collection.ChangeSlug(p.NewSlug); err != nil {
		return nil, err
	}

	now := s.clock()
	reservation, err := reserveSlug(ctx, s.slugs, p.NewSlug, collection.ID(), domain.SlugEntityTypeCollection, correlationID, now)
	if err != nil {
		return nil, err
	}
	released, err := releaseSlug(ctx, s.slugs, oldSlug, p.NewSlug, correlationID, now)
	if err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(collection, reservation)
	if released != nil {
		uow.Save(released)
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: collection.ID(), Version: collection.Version()}, nil
}

// UpdateDescriptionParams is the body of collection.update_description.
type UpdateDescriptionParams struct {
	CollectionID    string `json:"collectionId"`
	Description     string `json:"description"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// UpdateDescription replaces the description text.
func (s *CollectionService) UpdateDescription(ctx context.Context, correlationID string, p UpdateDescriptionParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.CollectionID, p.ExpectedVersion, func(c *domain.Collection) error {
		return c.UpdateDescription(p.Description)
	})
}

// UpdateCollectionMetadataParams is the body of collection.update_metadata.
type UpdateCollectionMetadataParams struct {
	CollectionID    string          `json:"collectionId"`
	Metadata        domain.Metadata `json:"metadata"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
}

// UpdateMetadata replaces the SEO metadata.
func (s *CollectionService) UpdateMetadata(ctx context.Context, correlationID string, p UpdateCollectionMetadataParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.CollectionID, p.ExpectedVersion, func(c *domain.Collection) error {
		return c.UpdateMetadata(p.Metadata)
	})
}

// CollectionImageParams is the body of collection.add_image.
type CollectionImageParams struct {
	CollectionID    string       `json:"collectionId"`
	Image           domain.Image `json:"image"`
	ExpectedVersion *int64       `json:"expectedVersion,omitempty"`
}

// AddImage attaches a transcoded image.
func (s *CollectionService) AddImage(ctx context.Context, correlationID string, p CollectionImageParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.CollectionID, p.ExpectedVersion, func(c *domain.Collection) error {
		return c.AddImage(p.Image)
	})
}

// RemoveCollectionImageParams is the body of collection.remove_image.
type RemoveCollectionImageParams struct {
	CollectionID    string `json:"collectionId"`
	ImageID         string `json:"imageId"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// RemoveImage detaches an image.
func (s *CollectionService) RemoveImage(ctx context.Context, correlationID string, p RemoveCollectionImageParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.CollectionID, p.ExpectedVersion, func(c *domain.Collection) error {
		return c.RemoveImage(p.ImageID)
	})
}

// ReorderCollectionImagesParams is the body of collection.reorder_images.
type ReorderCollectionImagesParams struct {
	CollectionID    string   `json:"collectionId"`
	Order           []string `json:"order"`
	ExpectedVersion *int64   `json:"expectedVersion,omitempty"`
}

// ReorderImages rearranges the image gallery.
func (s *CollectionService) ReorderImages(ctx context.Context, correlationID string, p ReorderCollectionImagesParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.CollectionID, p.ExpectedVersion, func(c *domain.Collection) error {
		return c.ReorderImages(p.Order)
	})
}

// CollectionProductParams is the body of collection.add_product.
type CollectionProductParams struct {
	CollectionID string `json:"collectionId"`
	ProductID    string `json:"productId"`
	Position     *int   `json:"position,omitempty"`

	// ExpectedVersion guards the ordering aggregate, whose version the
	// caller received from the previous membership change.
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// AddProduct places a product into the collection's ordering. The product
// must exist.
func (s *CollectionService) AddProduct(ctx context.Context, correlationID string, p CollectionProductParams) (*Result, error) {
	collection, err := s.collections.Load(ctx, p.CollectionID, correlationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.products.Load(ctx, p.ProductID, correlationID); err != nil {
		return nil, err
	}
	positions, err := s.positions.Load(ctx, collection.State().ProductsAggregateID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(positions, p.ExpectedVersion); err != nil {
		return nil, err
	}
	position := -1
	if p.Position != nil {
		position = *p.Position
	}
	if err := positions.AddProduct(p.ProductID, position); err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(positions)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: positions.ID(), Version: positions.Version()}, nil
}

// RemoveCollectionProductParams is the body of collection.remove_product.
type RemoveCollectionProductParams struct {
	CollectionID    string `json:"collectionId"`
	ProductID       string `json:"productId"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// RemoveProduct removes a product from the collection's ordering.
func (s *CollectionService) RemoveProduct(ctx context.Context, correlationID string, p RemoveCollectionProductParams) (*Result, error) {
	collection, err := s.collections.Load(ctx, p.CollectionID, correlationID)
	if err != nil {
		return nil, err
	}
	positions, err := s.positions.Load(ctx, collection.State().ProductsAggregateID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(positions, p.ExpectedVersion); err != nil {
		return nil, err
	}
	if err := positions.RemoveProduct(p.ProductID); err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(positions)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: positions.ID(), Version: positions.Version()}, nil
}

// ReorderCollectionProductsParams is the body of collection.reorder_products.
type ReorderCollectionProductsParams struct {
	CollectionID    string   `json:"collectionId"`
	Order           []string `json:"order"`
	ExpectedVersion *int64   `json:"expectedVersion,omitempty"`
}

// ReorderProducts replaces the product ordering of a collection.
func (s *CollectionService) ReorderProducts(ctx context.Context, correlationID string, p ReorderCollectionProductsParams) (*Result, error) {
	collection, err := s.collections.Load(ctx, p.CollectionID, correlationID)
	if err != nil {
		return nil, err
	}
	positions, err := s.positions.Load(ctx, collection.State().ProductsAggregateID, correlationID)
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

func (s *CollectionService) mutate(ctx context.Context, correlationID, collectionID string, expected *int64, fn func(*domain.Collection) error) (*Result, error) {
	collection, err := s.collections.Load(ctx, collectionID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(collection, expected); err != nil {
		return nil, err
	}
	if err := fn(collection); err != nil {
		return nil, err
	}
	uow := s.storage.Begin()
	uow.Save(collection)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: collection.ID(), Version: collection.Version()}, nil
}

// Register binds the collection command types.
func (s *CollectionService) Register(bus *Bus) {
	register(bus, "collection.create", s.Create)
	register(bus, "collection.publish", s.Publish)
	register(bus, "collection.archive", s.Archive)
	register(bus, "collection.rename", s.Rename)
	register(bus, "collection.change_slug", s.ChangeSlug)
	register(bus, "collection.update_description", s.UpdateDescription)
	register(bus, "collection.update_metadata", s.UpdateMetadata)
	register(bus, "collection.add_image", s.AddImage)
	register(bus, "collection.remove_image", s.RemoveImage)
	register(bus, "collection.reorder_images", s.ReorderImages)
	register(bus, "collection.add_product", s.AddProduct)
	register(bus, "collection.remove_product", s.RemoveProduct)
	register(bus, "collection.reorder_products", s.ReorderProducts)
}
