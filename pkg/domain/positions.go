package domain

import "encoding/json"

// positionList is the ordering core shared by the two positions aggregates.
// Insert clamps positions to the list bounds; a negative position appends.
type positionList []string

func (l positionList) indexOf(id string) int {
	for i, v := range l {
		if v == id {
			return i
		}
	}
	return -1
}

func (l positionList) insert(id string, position int) positionList {
	if position < 0 || position > len(l) {
		position = len(l)
	}
	out := make(positionList, 0, len(l)+1)
	out = append(out, l[:position]...)
	out = append(out, id)
	out = append(out, l[position:]...)
	return out
}

func (l positionList) remove(idx int) positionList {
	out := make(positionList, 0, len(l)-1)
	out = append(out, l[:idx]...)
	out = append(out, l[idx+1:]...)
	return out
}

// sameMultiset reports whether order is a permutation of l.
func (l positionList) sameMultiset(order []string) bool {
	if len(order) != len(l) {
		return false
	}
	counts := make(map[string]int, len(l))
	for _, id := range l {
		counts[id]++
	}
	for _, id := range order {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}

// VariantPositionsState is the snapshot payload of the per-product variant
// ordering aggregate.
type VariantPositionsState struct {
	ID         string   `json:"id"`
	ProductID  string   `json:"productId"`
	VariantIDs []string `json:"variantIds"`
	Archived   bool     `json:"archived"`
}

// VariantPositions orders the variants of one product. It is an owned child
// of the product (created and archived together) but lives as an independent
// aggregate so reorders commit on their own optimistic-concurrency epoch.
type VariantPositions struct {
	AggregateRoot
	state VariantPositionsState
}

// NewVariantPositions creates the ordering child for a product.
func NewVariantPositions(id, productID, correlationID string) (*VariantPositions, error) {
	if id == "" || productID == "" {
		return nil, Validationf("variant positions id and product id are required")
	}
	vp := &VariantPositions{
		AggregateRoot: NewAggregateRoot(id, AggregateTypeVariantPositions, correlationID),
		state: VariantPositionsState{
			ID:         id,
			ProductID:  productID,
			VariantIDs: []string{},
		},
	}
	vp.Record("Created", map[string]any{}, asMap(vp.state))
	return vp, nil
}

// VariantPositionsFromSnapshot hydrates the aggregate from a snapshot row.
func VariantPositionsFromSnapshot(rec SnapshotRecord, correlationID string) (*VariantPositions, error) {
	var state VariantPositionsState
	if err := json.Unmarshal(rec.Payload, &state); err != nil {
		return nil, Validationf("corrupt variant positions snapshot for %s: %v", rec.AggregateID, err)
	}
	return &VariantPositions{
		AggregateRoot: RestoreAggregateRoot(rec, correlationID),
		state:         state,
	}, nil
}

// Snapshot returns the full state for persistence.
func (vp *VariantPositions) Snapshot() (json.RawMessage, error) {
	return json.Marshal(vp.state)
}

// State returns a copy of the state.
func (vp *VariantPositions) State() VariantPositionsState {
	return vp.state
}

// VariantPosition returns the index of a variant, or -1 when absent.
func (vp *VariantPositions) VariantPosition(variantID string) int {
	return positionList(vp.state.VariantIDs).indexOf(variantID)
}

// AddVariant inserts a variant at position; out-of-range positions clamp to
// the end, negative positions append. Duplicates are rejected.
func (vp *VariantPositions) AddVariant(variantID string, position int) error {
	if err := vp.ensureMutable(); err != nil {
		return err
	}
	list := positionList(vp.state.VariantIDs)
	if list.indexOf(variantID) >= 0 {
		return Constraintf("variant %s is already positioned in product %s", variantID, vp.state.ProductID)
	}
	prior := map[string]any{"variantIds": vp.state.VariantIDs}
	vp.state.VariantIDs = list.insert(variantID, position)
	vp.Record("VariantAdded", prior, map[string]any{"variantIds": vp.state.VariantIDs})
	return nil
}

// RemoveVariant deletes a variant from the ordering; unknown ids are rejected.
func (vp *VariantPositions) RemoveVariant(variantID string) error {
	if err := vp.ensureMutable(); err != nil {
		return err
	}
	list := positionList(vp.state.VariantIDs)
	idx := list.indexOf(variantID)
	if idx < 0 {
		return Constraintf("variant %s is not positioned in product %s", variantID, vp.state.ProductID)
	}
	prior := map[string]any{"variantIds": vp.state.VariantIDs}
	vp.state.VariantIDs = list.remove(idx)
	vp.Record("VariantRemoved", prior, map[string]any{"variantIds": vp.state.VariantIDs})
	return nil
}

// Reorder replaces the ordering; the new order must be a permutation of the
// current ids.
func (vp *VariantPositions) Reorder(order []string) error {
	if err := vp.ensureMutable(); err != nil {
		return err
	}
	if !positionList(vp.state.VariantIDs).sameMultiset(order) {
		return Validationf("reorder must be a permutation of the current variant ids")
	}
	prior := map[string]any{"variantIds": vp.state.VariantIDs}
	vp.state.VariantIDs = append([]string(nil), order...)
	vp.Record("Reordered", prior, map[string]any{"variantIds": vp.state.VariantIDs})
	return nil
}

// Archive clears the list and marks the aggregate archived.
func (vp *VariantPositions) Archive() error {
	if vp.state.Archived {
		return Validationf("variant positions %s are already archived", vp.id)
	}
	prior := map[string]any{"variantIds": vp.state.VariantIDs, "archived": false}
	vp.state.VariantIDs = []string{}
	vp.state.Archived = true
	vp.Record("Archived", prior, map[string]any{"variantIds": vp.state.VariantIDs, "archived": true})
	return nil
}

func (vp *VariantPositions) ensureMutable() error {
	if vp.state.Archived {
		return Validationf("variant positions %s are archived", vp.id)
	}
	return nil
}

// CollectionProductPositionsState is the snapshot payload of the per-collection
// product ordering aggregate.
type CollectionProductPositionsState struct {
	ID           string   `json:"id"`
	CollectionID string   `json:"collectionId"`
	ProductIDs   []string `json:"productIds"`
	Archived     bool     `json:"archived"`
}

// CollectionProductPositions orders the products of one collection. Its
// operations mirror VariantPositions.
type CollectionProductPositions struct {
	AggregateRoot
	state CollectionProductPositionsState
}

// NewCollectionProductPositions creates the ordering child for a collection.
func NewCollectionProductPositions(id, collectionID, correlationID string) (*CollectionProductPositions, error) {
	if id == "" || collectionID == "" {
		return nil, Validationf("collection product positions id and collection id are required")
	}
	cp := &CollectionProductPositions{
		AggregateRoot: NewAggregateRoot(id, AggregateTypeCollectionProductPositions, correlationID),
		state: CollectionProductPositionsState{
			ID:           id,
			CollectionID: collectionID,
			ProductIDs:   []string{},
		},
	}
	cp.Record("Created", map[string]any{}, asMap(cp.state))
	return cp, nil
}

// CollectionProductPositionsFromSnapshot hydrates the aggregate from a snapshot row.
func CollectionProductPositionsFromSnapshot(rec SnapshotRecord, correlationID string) (*CollectionProductPositions, error) {
	var state CollectionProductPositionsState
	if err := json.Unmarshal(rec.Payload, &state); err != nil {
		return nil, Validationf("corrupt collection product positions snapshot for %s: %v", rec.AggregateID, err)
	}
	return &CollectionProductPositions{
		AggregateRoot: RestoreAggregateRoot(rec, correlationID),
		state:         state,
	}, nil
}

// Snapshot returns the full state for persistence.
func (cp *CollectionProductPositions) Snapshot() (json.RawMessage, error) {
	return json.Marshal(cp.state)
}

// State returns a copy of the state.
func (cp *CollectionProductPositions) State() CollectionProductPositionsState {
	return cp.state
}

// ProductPosition returns the index of a product, or -1 when absent.
func (cp *CollectionProductPositions) ProductPosition(productID string) int {
	return positionList(cp.state.ProductIDs).indexOf(productID)
}

// AddProduct inserts a product at position with the same clamping rules as
// VariantPositions.AddVariant.
func (cp *CollectionProductPositions) AddProduct(productID string, position int) error {
	if err := cp.ensureMutable(); err != nil {
		return err
	}
	list := positionList(cp.state.ProductIDs)
	if list.indexOf(productID) >= 0 {
		return Constraintf("product %s is already positioned in collection %s", productID, cp.state.CollectionID)
	}
	prior := map[string]any{"productIds": cp.state.ProductIDs}
	cp.state.ProductIDs = list.insert(productID, position)
	cp.Record("ProductAdded", prior, map[string]any{"productIds": cp.state.ProductIDs})
	return nil
}

// RemoveProduct deletes a product from the ordering; unknown ids are rejected.
func (cp *CollectionProductPositions) RemoveProduct(productID string) error {
	if err := cp.ensureMutable(); err != nil {
		return err
	}
	list := positionList(cp.state.ProductIDs)
	idx := list.indexOf(productID)
	if idx < 0 {
		return Constraintf("product %s is not positioned in collection %s", productID, cp.state.CollectionID)
	}
	prior := map[string]any{"productIds": cp.state.ProductIDs}
	cp.state.ProductIDs = list.remove(idx)
	cp.Record("ProductRemoved", prior, map[string]any{"productIds": cp.state.ProductIDs})
	return nil
}

// Reorder replaces the ordering; the new order must be a permutation of the
// current ids.
func (cp *CollectionProductPositions) Reorder(order []string) error {
	if err := cp.ensureMutable(); err != nil {
		return err
	}
	if !positionList(cp.state.ProductIDs).sameMultiset(order) {
		return Validationf("reorder must be a permutation of the current product ids")
	}
	prior := map[string]any{"productIds": cp.state.ProductIDs}
	cp.state.ProductIDs = append([]string(nil), order...)
	cp.Record("Reordered", prior, map[string]any{"productIds": cp.state.ProductIDs})
	return nil
}

// Archive clears the list and marks the aggregate archived.
func (cp *CollectionProductPositions) Archive() error {
	if cp.state.Archived {
		return Validationf("collection product positions %s are already archived", cp.id)
	}
	prior := map[string]any{"productIds": cp.state.ProductIDs, "archived": false}
	cp.state.ProductIDs = []string{}
	cp.state.Archived = true
	cp.Record("Archived", prior, map[string]any{"productIds": cp.state.ProductIDs, "archived": true})
	return nil
}

func (cp *CollectionProductPositions) ensureMutable() error {
	if cp.state.Archived {
		return Validationf("collection product positions %s are archived", cp.id)
	}
	return nil
}
