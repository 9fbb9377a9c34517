package domain

import (
	"encoding/json"
	"time"
)

// FulfillmentStatus is the shipping state of a fulfillment.
type FulfillmentStatus string

const (
	FulfillmentStatusPending   FulfillmentStatus = "pending"
	FulfillmentStatusShipped   FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered FulfillmentStatus = "delivered"
	FulfillmentStatusCancelled FulfillmentStatus = "cancelled"
)

// FulfillmentItem is one line of a fulfillment.
type FulfillmentItem struct {
	VariantID string `json:"variantId"`
	Quantity  int64  `json:"quantity"`
}

// FulfillmentState is the full snapshot payload of a fulfillment aggregate.
type FulfillmentState struct {
	ID             string            `json:"id"`
	OrderID        string            `json:"orderId"`
	Items          []FulfillmentItem `json:"items"`
	Status         FulfillmentStatus `json:"status"`
	TrackingNumber string            `json:"trackingNumber,omitempty"`
	Carrier        string            `json:"carrier,omitempty"`
	ShippedAt      *time.Time        `json:"shippedAt,omitempty"`
	DeliveredAt    *time.Time        `json:"deliveredAt,omitempty"`
}

// Fulfillment tracks shipment of order items: pending → shipped → delivered,
// with cancellation possible until delivery.
type Fulfillment struct {
	AggregateRoot
	state FulfillmentState
}

// NewFulfillmentParams are the inputs for creating a fulfillment aggregate.
type NewFulfillmentParams struct {
	ID            string
	OrderID       string
	Items         []FulfillmentItem
	CorrelationID string
}

// NewFulfillment validates params and produces a fresh pending fulfillment.
func NewFulfillment(p NewFulfillmentParams) (*Fulfillment, error) {
	if p.ID == "" {
		return nil, Validationf("fulfillment id is required")
	}
	if p.OrderID == "" {
		return nil, Validationf("order id is required")
	}
	if len(p.Items) == 0 {
		return nil, Validationf("fulfillment needs at least one item")
	}
	for _, item := range p.Items {
		if item.VariantID == "" {
			return nil, Validationf("fulfillment item variant id is required")
		}
		if item.Quantity <= 0 {
			return nil, Validationf("fulfillment item quantity must be positive")
		}
	}
	f := &Fulfillment{
		AggregateRoot: NewAggregateRoot(p.ID, AggregateTypeFulfillment, p.CorrelationID),
		state: FulfillmentState{
			ID:      p.ID,
			OrderID: p.OrderID,
			Items:   p.Items,
			Status:  FulfillmentStatusPending,
		},
	}
	f.Record("Created", map[string]any{}, asMap(f.state))
	return f, nil
}

// FulfillmentFromSnapshot hydrates a fulfillment aggregate from a snapshot row.
func FulfillmentFromSnapshot(rec SnapshotRecord, correlationID string) (*Fulfillment, error) {
	var state FulfillmentState
	if err := json.Unmarshal(rec.Payload, &state); err != nil {
		return nil, Validationf("corrupt fulfillment snapshot for %s: %v", rec.AggregateID, err)
	}
	return &Fulfillment{
		AggregateRoot: RestoreAggregateRoot(rec, correlationID),
		state:         state,
	}, nil
}

// Snapshot returns the full state for persistence.
func (f *Fulfillment) Snapshot() (json.RawMessage, error) {
	return json.Marshal(f.state)
}

// State returns a copy of the fulfillment state.
func (f *Fulfillment) State() FulfillmentState {
	return f.state
}

// Ship records the shipment with tracking details.
func (f *Fulfillment) Ship(trackingNumber, carrier string, now time.Time) error {
	if f.state.Status != FulfillmentStatusPending {
		return Validationf("cannot ship fulfillment %s in status %q", f.id, f.state.Status)
	}
	prior := map[string]any{
		"status":         f.state.Status,
		"trackingNumber": f.state.TrackingNumber,
		"carrier":        f.state.Carrier,
		"shippedAt":      f.state.ShippedAt,
	}
	f.state.Status = FulfillmentStatusShipped
	f.state.TrackingNumber = trackingNumber
	f.state.Carrier = carrier
	shipped := now.UTC()
	f.state.ShippedAt = &shipped
	f.Record("Shipped", prior, map[string]any{
		"status":         f.state.Status,
		"trackingNumber": f.state.TrackingNumber,
		"carrier":        f.state.Carrier,
		"shippedAt":      f.state.ShippedAt,
	})
	return nil
}

// Deliver marks a shipped fulfillment as delivered. Delivering straight from
// pending is rejected.
func (f *Fulfillment) Deliver(now time.Time) error {
	if f.state.Status != FulfillmentStatusShipped {
		return Validationf("cannot deliver fulfillment %s in status %q", f.id, f.state.Status)
	}
	prior := map[string]any{"status": f.state.Status, "deliveredAt": f.state.DeliveredAt}
	f.state.Status = FulfillmentStatusDelivered
	delivered := now.UTC()
	f.state.DeliveredAt = &delivered
	f.Record("Delivered", prior, map[string]any{"status": f.state.Status, "deliveredAt": f.state.DeliveredAt})
	return nil
}

// Cancel withdraws a fulfillment before delivery. Cancellation is terminal.
func (f *Fulfillment) Cancel() error {
	switch f.state.Status {
	case FulfillmentStatusPending, FulfillmentStatusShipped:
	case FulfillmentStatusCancelled:
		return Validationf("fulfillment %s is already cancelled", f.id)
	default:
		return Validationf("cannot cancel fulfillment %s in status %q", f.id, f.state.Status)
	}
	prior := map[string]any{"status": f.state.Status}
	f.state.Status = FulfillmentStatusCancelled
	f.Record("Cancelled", prior, map[string]any{"status": f.state.Status})
	return nil
}
