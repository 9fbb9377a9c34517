package domain

import (
	"encoding/json"
	"time"
)

// SlugReservationStatus is the state of a reservation.
type SlugReservationStatus string

const (
	SlugReservationStatusActive   SlugReservationStatus = "active"
	SlugReservationStatusReleased SlugReservationStatus = "released"
)

// Entity types that reserve slugs. SKU uniqueness reuses the same mechanism
// with the variant entity type.
const (
	SlugEntityTypeProduct         = "product"
	SlugEntityTypeDropshipProduct = "dropship_product"
	SlugEntityTypeCollection      = "collection"
	SlugEntityTypeVariant         = "variant"
)

// SlugReservationState is the full snapshot payload of a reservation.
type SlugReservationState struct {
	Slug       string                `json:"slug"`
	EntityID   string                `json:"entityId"`
	EntityType string                `json:"entityType"`
	Status     SlugReservationStatus `json:"status"`
	NewSlug    string                `json:"newSlug,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
	ReleasedAt *time.Time            `json:"releasedAt,omitempty"`
}

// SlugReservation enforces global slug uniqueness: the aggregate id IS the
// slug string, so "is this slug free?" is an aggregate-exists check under the
// store's per-aggregate locking. Released reservations remain as redirect
// history.
type SlugReservation struct {
	AggregateRoot
	state SlugReservationState
}

// NewSlugReservation claims a slug for an entity. The slug doubles as the
// aggregate id; format rules are the owning service's concern (SKUs share
// this mechanism and follow their own format).
func NewSlugReservation(slug, entityID, entityType, correlationID string, now time.Time) (*SlugReservation, error) {
	if slug == "" {
		return nil, Validationf("slug is required")
	}
	if entityID == "" || entityType == "" {
		return nil, Validationf("entity id and entity type are required")
	}
	r := &SlugReservation{
		AggregateRoot: NewAggregateRoot(slug, AggregateTypeSlugReservation, correlationID),
		state: SlugReservationState{
			Slug:       slug,
			EntityID:   entityID,
			EntityType: entityType,
			Status:     SlugReservationStatusActive,
			CreatedAt:  now.UTC(),
		},
	}
	r.Record("Created", map[string]any{}, asMap(r.state))
	return r, nil
}

// SlugReservationFromSnapshot hydrates a reservation from a snapshot row.
func SlugReservationFromSnapshot(rec SnapshotRecord, correlationID string) (*SlugReservation, error) {
	var state SlugReservationState
	if err := json.Unmarshal(rec.Payload, &state); err != nil {
		return nil, Validationf("corrupt slug reservation snapshot for %s: %v", rec.AggregateID, err)
	}
	return &SlugReservation{
		AggregateRoot: RestoreAggregateRoot(rec, correlationID),
		state:         state,
	}, nil
}

// Snapshot returns the full state for persistence.
func (r *SlugReservation) Snapshot() (json.RawMessage, error) {
	return json.Marshal(r.state)
}

// State returns a copy of the reservation state.
func (r *SlugReservation) State() SlugReservationState {
	return r.state
}

// IsActive reports whether the slug is currently claimed.
func (r *SlugReservation) IsActive() bool {
	return r.state.Status == SlugReservationStatusActive
}

// Reclaim re-activates a released slug for a new owner. Any entity type may
// take over a released slug; doing so drops the forwarding pointer.
func (r *SlugReservation) Reclaim(entityID, entityType string, now time.Time) error {
	if r.state.Status == SlugReservationStatusActive {
		return Constraintf("slug %q is already taken", r.state.Slug)
	}
	if entityID == "" || entityType == "" {
		return Validationf("entity id and entity type are required")
	}
	prior := map[string]any{
		"status":     r.state.Status,
		"entityId":   r.state.EntityID,
		"entityType": r.state.EntityType,
		"newSlug":    r.state.NewSlug,
		"releasedAt": r.state.ReleasedAt,
	}
	r.state.Status = SlugReservationStatusActive
	r.state.EntityID = entityID
	r.state.EntityType = entityType
	r.state.NewSlug = ""
	r.state.ReleasedAt = nil
	r.state.CreatedAt = now.UTC()
	r.Record("Reclaimed", prior, map[string]any{
		"status":     r.state.Status,
		"entityId":   r.state.EntityID,
		"entityType": r.state.EntityType,
		"newSlug":    "",
		"releasedAt": nil,
		"createdAt":  r.state.CreatedAt,
	})
	return nil
}

// Release frees the slug and records the successor slug as a forwarding
// pointer, so old URIs can redirect.
func (r *SlugReservation) Release(newSlug string, now time.Time) error {
	if r.state.Status == SlugReservationStatusReleased {
		return Validationf("slug reservation %q is already released", r.state.Slug)
	}
	prior := map[string]any{"status": r.state.Status, "newSlug": r.state.NewSlug, "releasedAt": r.state.ReleasedAt}
	r.state.Status = SlugReservationStatusReleased
	r.state.NewSlug = newSlug
	released := now.UTC()
	r.state.ReleasedAt = &released
	r.Record("Released", prior, map[string]any{
		"status":     r.state.Status,
		"newSlug":    r.state.NewSlug,
		"releasedAt": r.state.ReleasedAt,
	})
	return nil
}
