package commands

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/store"
)

// Storage is the slice of the store the write side needs: snapshot loads for
// hydration plus transactional commits.
type Storage interface {
	store.SnapshotReader
	Begin() store.UnitOfWork
}

// Services bundles all command services over one storage.
type Services struct {
	Product     *ProductService
	Variant     *VariantService
	Collection  *CollectionService
	Schedule    *ScheduleService
	Fulfillment *FulfillmentService
}

// NewServices wires the services. A nil clock defaults to time.Now.
func NewServices(storage Storage, logger *slog.Logger, clock func() time.Time) *Services {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	products := store.NewRepository(storage, domain.ProductFromSnapshot,
		domain.AggregateTypeProduct, domain.AggregateTypeDropshipProduct)
	variants := store.NewRepository(storage, domain.VariantFromSnapshot, domain.AggregateTypeVariant)
	variantPositions := store.NewRepository(storage, domain.VariantPositionsFromSnapshot, domain.AggregateTypeVariantPositions)
	collections := store.NewRepository(storage, domain.CollectionFromSnapshot, domain.AggregateTypeCollection)
	collectionPositions := store.NewRepository(storage, domain.CollectionProductPositionsFromSnapshot, domain.AggregateTypeCollectionProductPositions)
	slugs := store.NewRepository(storage, domain.SlugReservationFromSnapshot, domain.AggregateTypeSlugReservation)
	schedules := store.NewRepository(storage, domain.ScheduleFromSnapshot, domain.AggregateTypeSchedule)
	fulfillments := store.NewRepository(storage, domain.FulfillmentFromSnapshot, domain.AggregateTypeFulfillment)

	return &Services{
		Product: &ProductService{
			storage:   storage,
			products:  products,
			positions: variantPositions,
			slugs:     slugs,
			schedules: schedules,
			clock:     clock,
		},
		Variant: &VariantService{
			storage:   storage,
			products:  products,
			variants:  variants,
			positions: variantPositions,
			slugs:     slugs,
			clock:     clock,
		},
		Collection: &CollectionService{
			storage:     storage,
			collections: collections,
			positions:   collectionPositions,
			products:    products,
			slugs:       slugs,
			clock:       clock,
		},
		Schedule: &ScheduleService{
			storage:   storage,
			schedules: schedules,
			clock:     clock,
			logger:    logger,
		},
		Fulfillment: &FulfillmentService{
			storage:      storage,
			fulfillments: fulfillments,
			clock:        clock,
		},
	}
}

// Register binds every command type to the bus.
func (s *Services) Register(bus *Bus) {
	s.Product.Register(bus)
	s.Variant.Register(bus)
	s.Collection.Register(bus)
	s.Schedule.Register(bus)
	s.Fulfillment.Register(bus)
}

// versioned is the slice of an aggregate the concurrency pre-check needs.
type versioned interface {
	ID() string
	Version() int64
}

// checkExpectedVersion compares the caller's optimistic concurrency token
// against the freshly loaded aggregate, before any domain method runs. A nil
// token skips the check; internal dispatch carries no form state. The store
// re-checks at commit time to defeat races between load and commit.
func checkExpectedVersion(agg versioned, expected *int64) error {
	if expected == nil {
		return nil
	}
	if actual := agg.Version(); *expected != actual {
		return domain.Conflictf("aggregate %s is at version %d, expected %d", agg.ID(), actual, *expected)
	}
	return nil
}

// register binds a typed service method to a command type, decoding the
// envelope body into the method's params type.
func register[P any](bus *Bus, commandType string, fn func(context.Context, string, P) (*Result, error)) {
	bus.RegisterFunc(commandType, func(ctx context.Context, cmd *Envelope) (*Result, error) {
		params, err := decode[P](cmd)
		if err != nil {
			return nil, err
		}
		return fn(ctx, cmd.CorrelationID, params)
	})
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// reserveSlug produces the reservation aggregate that claims slug for an
// entity: a fresh one when the slug is unknown, a reclaimed one when the
// previous reservation was released, and a constraint error when active.
// The true uniqueness guarantee is the commit-time version check; this
// pre-check exists to give the caller a categorized error.
func reserveSlug(ctx context.Context, slugs *store.Repository[*domain.SlugReservation], slug, entityID, entityType, correlationID string, now time.Time) (*domain.SlugReservation, error) {
	existing, err := slugs.Load(ctx, slug, correlationID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewSlugReservation(slug, entityID, entityType, correlationID, now)
	}
	if err != nil {
		return nil, err
	}
	if existing.IsActive() {
		return nil, domain.Constraintf("slug %q is already taken", slug)
	}
	if err := existing.Reclaim(entityID, entityType, now); err != nil {
		return nil, err
	}
	return existing, nil
}

// releaseSlug releases the reservation of oldSlug with a forwarding pointer
// to newSlug. A missing reservation is tolerated: the slug was never claimed.
func releaseSlug(ctx context.Context, slugs *store.Repository[*domain.SlugReservation], oldSlug, newSlug, correlationID string, now time.Time) (*domain.SlugReservation, error) {
	existing, err := slugs.Load(ctx, oldSlug, correlationID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !existing.IsActive() {
		return nil, nil
	}
	if err := existing.Release(newSlug, now); err != nil {
		return nil, err
	}
	return existing, nil
}
