package domain

import "encoding/json"

// CollectionStatus is the lifecycle state of a collection.
type CollectionStatus string

const (
	CollectionStatusDraft    CollectionStatus = "draft"
	CollectionStatusActive   CollectionStatus = "active"
	CollectionStatusArchived CollectionStatus = "archived"
)

// CollectionState is the full snapshot payload of a collection aggregate.
type CollectionState struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Slug                 string           `json:"slug"`
	Description          string           `json:"description"`
	Status               CollectionStatus `json:"status"`
	Metadata             Metadata         `json:"metadata"`
	Images               []Image          `json:"images"`
	ProductsAggregateID  string           `json:"productsAggregateId"`
}

// Collection is the aggregate for a curated product grouping. Product
// membership order lives in the owned CollectionProductPositions child.
type Collection struct {
	AggregateRoot
	state CollectionState
}

// NewCollectionParams are the inputs for creating a collection aggregate.
type NewCollectionParams struct {
	ID                  string
	Name                string
	Slug                string
	Description         string
	Metadata            Metadata
	ProductsPositionsID string
	CorrelationID       string
}

// NewCollection validates params and produces a fresh draft collection
// carrying a single created event at version 0.
func NewCollection(p NewCollectionParams) (*Collection, error) {
	if p.ID == "" {
		return nil, Validationf("collection id is required")
	}
	if p.Name == "" {
		return nil, Validationf("collection name is required")
	}
	if err := ValidateSlug(p.Slug); err != nil {
		return nil, err
	}
	if p.ProductsPositionsID == "" {
		return nil, Validationf("product positions aggregate id is required")
	}

	c := &Collection{
		AggregateRoot: NewAggregateRoot(p.ID, AggregateTypeCollection, p.CorrelationID),
		state: CollectionState{
			ID:                  p.ID,
			Name:                p.Name,
			Slug:                p.Slug,
			Description:         p.Description,
			Status:              CollectionStatusDraft,
			Metadata:            p.Metadata,
			Images:              []Image{},
			ProductsAggregateID: p.ProductsPositionsID,
		},
	}
	c.Record("Created", map[string]any{}, asMap(c.state))
	return c, nil
}

// CollectionFromSnapshot hydrates a collection aggregate from a snapshot row.
func CollectionFromSnapshot(rec SnapshotRecord, correlationID string) (*Collection, error) {
	var state CollectionState
	if err := json.Unmarshal(rec.Payload, &state); err != nil {
		return nil, Validationf("corrupt collection snapshot for %s: %v", rec.AggregateID, err)
	}
	return &Collection{
		AggregateRoot: RestoreAggregateRoot(rec, correlationID),
		state:         state,
	}, nil
}

// Snapshot returns the full state for persistence.
func (c *Collection) Snapshot() (json.RawMessage, error) {
	return json.Marshal(c.state)
}

// State returns a copy of the collection state.
func (c *Collection) State() CollectionState {
	return c.state
}

// Publish transitions the collection to active.
func (c *Collection) Publish() error {
	switch c.state.Status {
	case CollectionStatusDraft:
	case CollectionStatusActive:
		return Validationf("collection %s is already active", c.id)
	default:
		return Validationf("cannot publish collection %s in status %q", c.id, c.state.Status)
	}
	prior := map[string]any{"status": c.state.Status}
	c.state.Status = CollectionStatusActive
	c.Record("Published", prior, map[string]any{"status": c.state.Status})
	return nil
}

// Archive transitions the collection to its terminal status.
func (c *Collection) Archive() error {
	if c.state.Status == CollectionStatusArchived {
		return Validationf("collection %s is already archived", c.id)
	}
	prior := map[string]any{"status": c.state.Status}
	c.state.Status = CollectionStatusArchived
	c.Record("Archived", prior, map[string]any{"status": c.state.Status})
	return nil
}

// Rename changes the display name.
func (c *Collection) Rename(name string) error {
	if name == "" {
		return Validationf("collection name is required")
	}
	if err := c.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"name": c.state.Name}
	c.state.Name = name
	c.Record("Renamed", prior, map[string]any{"name": c.state.Name})
	return nil
}

// ChangeSlug updates the collection slug; the service swaps reservations.
func (c *Collection) ChangeSlug(slug string) error {
	if err := ValidateSlug(slug); err != nil {
		return err
	}
	if err := c.ensureMutable(); err != nil {
		return err
	}
	if slug == c.state.Slug {
		return Validationf("slug is unchanged")
	}
	prior := map[string]any{"slug": c.state.Slug}
	c.state.Slug = slug
	c.Record("SlugChanged", prior, map[string]any{"slug": c.state.Slug})
	return nil
}

// UpdateDescription replaces the description text.
func (c *Collection) UpdateDescription(description string) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"description": c.state.Description}
	c.state.Description = description
	c.Record("DescriptionUpdated", prior, map[string]any{"description": c.state.Description})
	return nil
}

// UpdateMetadata replaces the SEO metadata.
func (c *Collection) UpdateMetadata(md Metadata) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	prior := map[string]any{"metadata": c.state.Metadata}
	c.state.Metadata = md
	c.Record("MetadataUpdated", prior, map[string]any{"metadata": c.state.Metadata})
	return nil
}

// AddImage appends a transcoded image.
func (c *Collection) AddImage(img Image) error {
	if img.ImageID == "" {
		return Validationf("image id is required")
	}
	if err := c.ensureMutable(); err != nil {
		return err
	}
	if imageIndex(c.state.Images, img.ImageID) >= 0 {
		return Constraintf("image %s already attached to collection %s", img.ImageID, c.id)
	}
	prior := map[string]any{"images": c.state.Images}
	c.state.Images = append(c.state.Images, img)
	c.Record("ImageAdded", prior, map[string]any{"images": c.state.Images})
	return nil
}

// RemoveImage detaches an image by id.
func (c *Collection) RemoveImage(imageID string) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	idx := imageIndex(c.state.Images, imageID)
	if idx < 0 {
		return Constraintf("image %s is not attached to collection %s", imageID, c.id)
	}
	prior := map[string]any{"images": c.state.Images}
	c.state.Images = append(c.state.Images[:idx:idx], c.state.Images[idx+1:]...)
	c.Record("ImageRemoved", prior, map[string]any{"images": c.state.Images})
	return nil
}

// ReorderImages rearranges images to the given id order.
func (c *Collection) ReorderImages(order []string) error {
	if err := c.ensureMutable(); err != nil {
		return err
	}
	images, err := reorderImages(c.state.Images, order)
	if err != nil {
		return err
	}
	prior := map[string]any{"images": c.state.Images}
	c.state.Images = images
	c.Record("ImagesReordered", prior, map[string]any{"images": c.state.Images})
	return nil
}

func (c *Collection) ensureMutable() error {
	if c.state.Status == CollectionStatusArchived {
		return Validationf("collection %s is archived", c.id)
	}
	return nil
}
