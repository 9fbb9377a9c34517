package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus is the lifecycle state of a product.
type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "draft"
	ProductStatusActive   ProductStatus = "active"
	ProductStatusArchived ProductStatus = "archived"

	// Transitional dropship states, cleared by the corresponding scheduled command.
	ProductStatusHiddenPendingDrop  ProductStatus = "hidden_pending_drop"
	ProductStatusVisiblePendingDrop ProductStatus = "visible_pending_drop"
)

// FulfillmentType describes how a product is fulfilled.
type FulfillmentType string

const (
	FulfillmentTypeDigital  FulfillmentType = "digital"
	FulfillmentTypeDropship FulfillmentType = "dropship"
)

// VariantOption is a named axis of variation with its allowed values.
type VariantOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// ProductState is the full snapshot payload of a product aggregate.
// Dropship specialization fields are populated only for dropship products.
type ProductState struct {
	ID                          string           `json:"id"`
	Name                        string           `json:"name"`
	Slug                        string           `json:"slug"`
	Status                      ProductStatus    `json:"status"`
	Collections                 []string         `json:"collections"`
	VariantOptions              []VariantOption  `json:"variantOptions"`
	Metadata                    Metadata         `json:"metadata"`
	Tags                        []string         `json:"tags"`
	Images                      []Image          `json:"images"`
	FulfillmentType             FulfillmentType  `json:"fulfillmentType"`
	DropshipSafetyBuffer        *int64           `json:"dropshipSafetyBuffer,omitempty"`
	VariantPositionsAggregateID string           `json:"variantPositionsAggregateId"`
	TaxCode                     string           `json:"taxCode,omitempty"`
	Vendor                      string           `json:"vendor,omitempty"`
	PublishedAt                 *time.Time       `json:"publishedAt,omitempty"`
	SupplierCost                *decimal.Decimal `json:"supplierCost,omitempty"`
	SupplierSKU                 string           `json:"supplierSku,omitempty"`
	FulfillmentProviderID       string           `json:"fulfillmentProviderId,omitempty"`
}

// Product is the aggregate for a catalogue product. Dropship products share
// the same state shape but carry the dropshipProduct aggregate type and the
// extended pending-drop statuses.
type Product struct {
	AggregateRoot
	state ProductState
}

// NewProductParams are the inputs for creating a product aggregate.
type NewProductParams struct {
	ID                    string
	Name                  string
	Slug                  string
	Collections           []string
	VariantOptions        []VariantOption
	Metadata              Metadata
	Tags                  []string
	FulfillmentType       FulfillmentType
	DropshipSafetyBuffer  *int64
	VariantPositionsID    string
	TaxCode               string
	Vendor                string
	SupplierCost          *decimal.Decimal
	SupplierSKU           string
	FulfillmentProviderID string
	CorrelationID         string
}

// NewProduct validates params and produces a fresh draft product carrying a
// single created event at version 0.
func NewProduct(p NewProductParams) (*Product, error) {
	if p.ID == "" {
		return nil, Validationf("product id is required")
	}
	if p.Name == "" {
		return nil, Validationf("product name is required")
	}
	if err := ValidateSlug(p.Slug); err != nil {
		return nil, err
	}
	if p.VariantPositionsID == "" {
		return nil, Validationf("variant positions aggregate id is required")
	}
	if err := validateVariantOptions(p.VariantOptions); err != nil {
		return nil, err
	}

	aggregateType := AggregateTypeProduct
	switch p.FulfillmentType {
	case FulfillmentTypeDigital:
	case FulfillmentTypeDropship:
		aggregateType = AggregateTypeDropshipProduct
		if p.SupplierCost != nil && p.SupplierCost.IsNegative() {
			return nil, Validationf("supplier cost must not be negative")
		}
	default:
		return nil, Validationf("invalid fulfillment type %q", p.FulfillmentType)
	}

	prod := &Product{
		AggregateRoot: NewAggregateRoot(p.ID, aggregateType, p.CorrelationID),
		state: ProductState{
			ID:                          p.ID,
			Name:                        p.Name,
			Slug:                        p.Slug,
			Status:                      ProductStatusDraft,
			Collections:                 p.Collections,
			VariantOptions:              p.VariantOptions,
			Metadata:                    p.Metadata,
			Tags:                        p.Tags,
			Images:                      []Image{},
			FulfillmentType:             p.FulfillmentType,
			DropshipSafetyBuffer:        p.DropshipSafetyBuffer,
			VariantPositionsAggregateID: p.VariantPositionsID,
			TaxCode:                     p.TaxCode,
			Vendor:                      p.Vendor,
			SupplierCost:                p.SupplierCost,
			SupplierSKU:                 p.SupplierSKU,
			FulfillmentProviderID:       p.FulfillmentProviderID,
		},
	}
	prod.Record("Created", map[string]any{}, asMap(prod.state))
	return prod, nil
}

func validateVariantOptions(opts []VariantOption) error {
	names := make(map[string]bool, len(opts))
	for _, opt := range opts {
		if opt.Name == "" {
			return Validationf("variant option name is required")
		}
		if names[opt.Name] {
			return Validationf("duplicate variant option %q", opt.Name)
		}
		names[opt.Name] = true
		if len(opt.Values) == 0 {
			return Validationf("variant option %q needs at least one value", opt.Name)
		}
		values := make(map[string]bool, len(opt.Values))
		for _, v := range opt.Values {
			if v == "" || values[v] {
				return Validationf("variant option %q has an empty or duplicate value", opt.Name)
			}
			values[v] = true
		}
	}
	return nil
}

// ProductFromSnapshot hydrates a product aggregate from a snapshot row.
func ProductFromSnapshot(rec SnapshotRecord, correlationID string) (*Product, error) {
	var state ProductState
	if err := json.Unmarshal(rec.Payload, &state); err != nil {
		return nil, Validationf("corrupt product snapshot for %s: %v", rec.AggregateID, err)
	}
	return &Product{
		AggregateRoot: RestoreAggregateRoot(rec, correlationID),
		state:         state,
	}, nil
}

// Snapshot returns the full state for persistence.
func (p *Product) Snapshot() (json.RawMessage, error) {
	return json.Marshal(p.state)
}

// State returns a copy of the product state.
func (p *Product) State() ProductState {
	return p.state
}

// IsDropship reports whether this is a dropship product.
func (p *Product) IsDropship() bool {
	return p.state.FulfillmentType == FulfillmentTypeDropship
}

// Publish transitions the product to active and stamps publishedAt.
// Pending-drop products are published by their scheduled command.
func (p *Product) Publish(now time.Time) error {
	switch p.state.Status {
	case ProductStatusDraft, ProductStatusHiddenPendingDrop, ProductStatusVisiblePendingDrop:
	case ProductStatusActive:
		return Validationf("product %s is already active", p.id)
	default:
		return Validationf("cannot publish product %s in status %q", p.id, p.state.Status)
	}
	prior := map[string]any{"status": p.state.Status, "publishedAt": p.state.PublishedAt}
	p.state.Status = ProductStatusActive
	published := now.UTC()
	p.state.PublishedAt = &published
	p.Record("Published", prior, map[string]any{"status": p.state.Status, "publishedAt": p.state.PublishedAt})
	return nil
}

// Archive transitions the product to its terminal status.
func (p *Product) Archive() error {
	if p.state.Status == ProductStatusArchived {
		return Validationf("product %s is already archived", p.id)
	}
	prior := map[string]any{"status": p.state.Status}
	p.state.Status = ProductStatusArchived
	p.Record("Archived", prior, map[string]any{"status": p.state.Status})
	return nil
}

// Rename changes the display name.
func (p *Product) Rename(name string) error {
	if name == "" {
		return Validationf("product name is required")
	}
	if err := p.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"name": p.state.Name}
	p.state.Name = name
	p.Record("Renamed", prior, map[string]any{"name": p.state.Name})
	return nil
}

// ChangeSlug updates the product slug. Reservation bookkeeping is the
// responsibility of the service, which swaps slug reservations in the same
// unit of work.
func (p *Product) ChangeSlug(slug string) error {
	if err := ValidateSlug(slug); err != nil {
		return err
	}
	if err := p.ensureMutable(); err != nil {
		return err
	}
	if slug == p.state.Slug {
		return Validationf("slug is unchanged")
	}
	prior := map[string]any{"slug": p.state.Slug}
	p.state.Slug = slug
	p.Record("SlugChanged", prior, map[string]any{"slug": p.state.Slug})
	return nil
}

// UpdateMetadata replaces the SEO metadata.
func (p *Product) UpdateMetadata(md Metadata) error {
	if err := p.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"metadata": p.state.Metadata}
	p.state.Metadata = md
	p.Record("MetadataUpdated", prior, map[string]any{"metadata": p.state.Metadata})
	return nil
}

// UpdateTags replaces the tag list.
func (p *Product) UpdateTags(tags []string) error {
	if err := p.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"tags": p.state.Tags}
	p.state.Tags = tags
	p.Record("TagsUpdated", prior, map[string]any{"tags": p.state.Tags})
	return nil
}

// AssignCollections replaces the collection membership list.
func (p *Product) AssignCollections(collectionIDs []string) error {
	if err := p.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"collections": p.state.Collections}
	p.state.Collections = collectionIDs
	p.Record("CollectionsChanged", prior, map[string]any{"collections": p.state.Collections})
	return nil
}

// AddImage appends a transcoded image.
func (p *Product) AddImage(img Image) error {
	if img.ImageID == "" {
		return Validationf("image id is required")
	}
	if err := p.ensureMutable(); err != nil {
		return err
	}
	if imageIndex(p.state.Images, img.ImageID) >= 0 {
		return Constraintf("image %s already attached to product %s", img.ImageID, p.id)
	}
	prior := map[string]any{"images": p.state.Images}
	p.state.Images = append(p.state.Images, img)
	p.Record("ImageAdded", prior, map[string]any{"images": p.state.Images})
	return nil
}

// RemoveImage detaches an image by id.
func (p *Product) RemoveImage(imageID string) error {
	if err := p.ensureMutable(); err != nil {
		return err
	}
	idx := imageIndex(p.state.Images, imageID)
	if idx < 0 {
		return Constraintf("image %s is not attached to product %s", imageID, p.id)
	}
	prior := map[string]any{"images": p.state.Images}
	p.state.Images = append(p.state.Images[:idx:idx], p.state.Images[idx+1:]...)
	p.Record("ImageRemoved", prior, map[string]any{"images": p.state.Images})
	return nil
}

// ReorderImages rearranges images to the given id order.
func (p *Product) ReorderImages(order []string) error {
	if err := p.ensureMutable(); err != nil {
		return err
	}
	images, err := reorderImages(p.state.Images, order)
	if err != nil {
		return err
	}
	prior := map[string]any{"images": p.state.Images}
	p.state.Images = images
	p.Record("ImagesReordered", prior, map[string]any{"images": p.state.Images})
	return nil
}

// ScheduleVisibleDrop moves a dropship product into the visible_pending_drop
// transitional status. The deferred publish is modeled as a Schedule aggregate
// created by the service in the same unit of work.
func (p *Product) ScheduleVisibleDrop(scheduleID string, at time.Time) error {
	return p.scheduleDrop("VisibleDropScheduled", ProductStatusVisiblePendingDrop, scheduleID, at)
}

// ScheduleHiddenDrop moves a dropship product into the hidden_pending_drop
// transitional status.
func (p *Product) ScheduleHiddenDrop(scheduleID string, at time.Time) error {
	return p.scheduleDrop("HiddenDropScheduled", ProductStatusHiddenPendingDrop, scheduleID, at)
}

func (p *Product) scheduleDrop(verb string, pending ProductStatus, scheduleID string, at time.Time) error {
	if !p.IsDropship() {
		return Validationf("product %s is not a dropship product", p.id)
	}
	if scheduleID == "" {
		return Validationf("schedule id is required")
	}
	switch p.state.Status {
	case ProductStatusDraft, ProductStatusActive:
	default:
		return Validationf("cannot schedule a drop for product %s in status %q", p.id, p.state.Status)
	}
	prior := map[string]any{"status": p.state.Status}
	p.state.Status = pending
	p.Record(verb, prior, map[string]any{
		"status":       p.state.Status,
		"scheduleId":   scheduleID,
		"scheduledFor": at.UTC(),
	})
	return nil
}

func (p *Product) ensureMutable() error {
	if p.state.Status == ProductStatusArchived {
		return Validationf("product %s is archived", p.id)
	}
	return nil
}
