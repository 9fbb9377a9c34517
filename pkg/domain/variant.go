package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// VariantStatus is the lifecycle state of a variant.
type VariantStatus string

const (
	VariantStatusDraft    VariantStatus = "draft"
	VariantStatusActive   VariantStatus = "active"
	VariantStatusArchived VariantStatus = "archived"
)

// VariantState is the full snapshot payload of a variant aggregate.
type VariantState struct {
	ID        string            `json:"id"`
	ProductID string            `json:"productId"`
	SKU       string            `json:"sku"`
	Options   map[string]string `json:"options"`
	ListPrice decimal.Decimal   `json:"listPrice"`
	Inventory int64             `json:"inventory"`
	Status    VariantStatus     `json:"status"`
	Images    []Image           `json:"images"`
}

// Variant is the aggregate for a purchasable variant of a product.
// SKU uniqueness is enforced through a slug reservation whose id is the SKU.
type Variant struct {
	AggregateRoot
	state VariantState
}

// NewVariantParams are the inputs for creating a variant aggregate.
// Option validity against the parent product is a cross-aggregate rule
// checked by the service before construction.
type NewVariantParams struct {
	ID            string
	ProductID     string
	SKU           string
	Options       map[string]string
	ListPrice     decimal.Decimal
	Inventory     int64
	CorrelationID string
}

// NewVariant validates params and produces a fresh variant carrying a single
// created event at version 0.
func NewVariant(p NewVariantParams) (*Variant, error) {
	if p.ID == "" {
		return nil, Validationf("variant id is required")
	}
	if p.ProductID == "" {
		return nil, Validationf("product id is required")
	}
	if p.SKU == "" {
		return nil, Validationf("sku is required")
	}
	if p.ListPrice.IsNegative() {
		return nil, Validationf("list price must not be negative")
	}
	if p.Inventory < 0 {
		return nil, Validationf("inventory must not be negative")
	}
	if p.Options == nil {
		p.Options = map[string]string{}
	}

	v := &Variant{
		AggregateRoot: NewAggregateRoot(p.ID, AggregateTypeVariant, p.CorrelationID),
		state: VariantState{
			ID:        p.ID,
			ProductID: p.ProductID,
			SKU:       p.SKU,
			Options:   p.Options,
			ListPrice: p.ListPrice,
			Inventory: p.Inventory,
			Status:    VariantStatusActive,
			Images:    []Image{},
		},
	}
	v.Record("Created", map[string]any{}, asMap(v.state))
	return v, nil
}

// VariantFromSnapshot hydrates a variant aggregate from a snapshot row.
func VariantFromSnapshot(rec SnapshotRecord, correlationID string) (*Variant, error) {
	var state VariantState
	if err := json.Unmarshal(rec.Payload, &state); err != nil {
		return nil, Validationf("corrupt variant snapshot for %s: %v", rec.AggregateID, err)
	}
	return &Variant{
		AggregateRoot: RestoreAggregateRoot(rec, correlationID),
		state:         state,
	}, nil
}

// Snapshot returns the full state for persistence.
func (v *Variant) Snapshot() (json.RawMessage, error) {
	return json.Marshal(v.state)
}

// State returns a copy of the variant state.
func (v *Variant) State() VariantState {
	return v.state
}

// UpdatePrice changes the list price.
func (v *Variant) UpdatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return Validationf("list price must not be negative")
	}
	if err := v.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"listPrice": v.state.ListPrice}
	v.state.ListPrice = price
	v.Record("PriceUpdated", prior, map[string]any{"listPrice": v.state.ListPrice})
	return nil
}

// SetInventory sets the absolute inventory count. Zero is permitted.
func (v *Variant) SetInventory(count int64) error {
	if count < 0 {
		return Validationf("inventory must not be negative")
	}
	if err := v.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"inventory": v.state.Inventory}
	v.state.Inventory = count
	v.Record("InventorySet", prior, map[string]any{"inventory": v.state.Inventory})
	return nil
}

// AdjustInventory applies a relative delta; the result must not go negative.
func (v *Variant) AdjustInventory(delta int64) error {
	next := v.state.Inventory + delta
	if next < 0 {
		return Validationf("inventory adjustment would go negative (%d%+d)", v.state.Inventory, delta)
	}
	if err := v.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"inventory": v.state.Inventory}
	v.state.Inventory = next
	v.Record("InventoryAdjusted", prior, map[string]any{"inventory": v.state.Inventory})
	return nil
}

// AddImage appends a transcoded image.
func (v *Variant) AddImage(img Image) error {
	if img.ImageID == "" {
		return Validationf("image id is required")
	}
	if err := v.ensureMutable(); err != nil {
		return err
	}
	if imageIndex(v.state.Images, img.ImageID) >= 0 {
		return Constraintf("image %s already attached to variant %s", img.ImageID, v.id)
	}
	prior := map[string]any{"images": v.state.Images}
	v.state.Images = append(v.state.Images, img)
	v.Record("ImageAdded", prior, map[string]any{"images": v.state.Images})
	return nil
}

// RemoveImage detaches an image by id.
func (v *Variant) RemoveImage(imageID string) error {
	if err := v.ensureMutable(); err != nil {
		return err
	}
	idx := imageIndex(v.state.Images, imageID)
	if idx < 0 {
		return Constraintf("image %s is not attached to variant %s", imageID, v.id)
	}
	prior := map[string]any{"images": v.state.Images}
	v.state.Images = append(v.state.Images[:idx:idx], v.state.Images[idx+1:]...)
	v.Record("ImageRemoved", prior, map[string]any{"images": v.state.Images})
	return nil
}

// Archive transitions the variant to its terminal status.
func (v *Variant) Archive() error {
	if v.state.Status == VariantStatusArchived {
		return Validationf("variant %s is already archived", v.id)
	}
	prior := map[string]any{"status": v.state.Status}
	v.state.Status = VariantStatusArchived
	v.Record("Archived", prior, map[string]any{"status": v.state.Status})
	return nil
}

func (v *Variant) ensureMutable() error {
	if v.state.Status == VariantStatusArchived {
		return Validationf("variant %s is archived", v.id)
	}
	return nil
}

// ValidateVariantOptions checks a variant's options against the parent
// product's declared option axes: keys must be a subset of the product's
// option names and each value must appear in that option's value list.
func ValidateVariantOptions(product ProductState, options map[string]string) error {
	byName := make(map[string]VariantOption, len(product.VariantOptions))
	for _, opt := range product.VariantOptions {
		byName[opt.Name] = opt
	}
	for name, value := range options {
		opt, ok := byName[name]
		if !ok {
			return Validationf("option %q is not valid for this product", name)
		}
		found := false
		for _, v := range opt.Values {
			if v == value {
				found = true
				break
			}
		}
		if !found {
			return Validationf("option value %q is not valid for this product option %q", value, name)
		}
	}
	return nil
}
