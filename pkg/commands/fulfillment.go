package commands

import (
	"context"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/store"
)

// FulfillmentService handles shipment tracking commands.
type FulfillmentService struct {
	storage      Storage
	fulfillments *store.Repository[*domain.Fulfillment]
	clock        func() time.Time
}

// CreateFulfillmentParams is the body of fulfillment.create.
type CreateFulfillmentParams struct {
	FulfillmentID string                   `json:"fulfillmentId,omitempty"`
	OrderID       string                   `json:"orderId"`
	Items         []domain.FulfillmentItem `json:"items"`
}

// Create opens a pending fulfillment for an order.
func (s *FulfillmentService) Create(ctx context.Context, correlationID string, p CreateFulfillmentParams) (*Result, error) {
	if p.FulfillmentID == "" {
		p.FulfillmentID = domain.NewID()
	}
	fulfillment, err := domain.NewFulfillment(domain.NewFulfillmentParams{
		ID:            p.FulfillmentID,
		OrderID:       p.OrderID,
		Items:         p.Items,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(fulfillment)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: fulfillment.ID(), Version: fulfillment.Version()}, nil
}

// ShipFulfillmentParams is the body of fulfillment.ship.
type ShipFulfillmentParams struct {
	FulfillmentID   string `json:"fulfillmentId"`
	TrackingNumber  string `json:"trackingNumber"`
	Carrier         string `json:"carrier"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Ship records the shipment with tracking details.
func (s *FulfillmentService) Ship(ctx context.Context, correlationID string, p ShipFulfillmentParams) (*Result, error) {
	return s.mutate(ctx, correlationID, p.FulfillmentID, p.ExpectedVersion, func(f *domain.Fulfillment) error {
		return f.Ship(p.TrackingNumber, p.Carrier, s.clock())
	})
}

// FulfillmentRef addresses an existing fulfillment.
type FulfillmentRef struct {
	FulfillmentID   string `json:"fulfillmentId"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Deliver marks a shipped fulfillment as delivered.
func (s *FulfillmentService) Deliver(ctx context.Context, correlationID string, p FulfillmentRef) (*Result, error) {
	return s.mutate(ctx, correlationID, p.FulfillmentID, p.ExpectedVersion, func(f *domain.Fulfillment) error {
		return f.Deliver(s.clock())
	})
}

// Cancel withdraws a fulfillment before delivery.
func (s *FulfillmentService) Cancel(ctx context.Context, correlationID string, p FulfillmentRef) (*Result, error) {
	return s.mutate(ctx, correlationID, p.FulfillmentID, p.ExpectedVersion, func(f *domain.Fulfillment) error {
		return f.Cancel()
	})
}

func (s *FulfillmentService) mutate(ctx context.Context, correlationID, id string, expected *int64, fn func(*domain.Fulfillment) error) (*Result, error) {
	fulfillment, err := s.fulfillments.Load(ctx, id, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(fulfillment, expected); err != nil {
		return nil, err
	}
	if err := fn(fulfillment); err != nil {
		return nil, err
	}
	uow := s.storage.Begin()
	uow.Save(fulfillment)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: fulfillment.ID(), Version: fulfillment.Version()}, nil
}

// Register binds the fulfillment command types.
func (s *FulfillmentService) Register(bus *Bus) {
	register(bus, "fulfillment.create", s.Create)
	register(bus, "fulfillment.ship", s.Ship)
	register(bus, "fulfillment.deliver", s.Deliver)
	register(bus, "fulfillment.cancel", s.Cancel)
}
