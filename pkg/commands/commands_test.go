package commands_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slapcommerce/core-sub014/pkg/commands"
	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/store/sqlite"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

type fixture struct {
	store    *sqlite.Store
	services *commands.Services
	bus      *commands.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := sqlite.New(sqlite.WithMemoryDatabase(), sqlite.WithClock(testClock))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	services := commands.NewServices(s, slog.Default(), testClock)
	bus := commands.NewBus()
	services.Register(bus)
	return &fixture{store: s, services: services, bus: bus}
}

func (f *fixture) createProduct(t *testing.T, name, slug string) string {
	t.Helper()
	res, err := f.services.Product.Create(context.Background(), "corr-setup", commands.CreateProductParams{
		Name:            name,
		Slug:            slug,
		FulfillmentType: domain.FulfillmentTypeDigital,
		VariantOptions: []domain.VariantOption{
			{Name: "size", Values: []string{"s", "m", "l"}},
		},
	})
	require.NoError(t, err)
	return res.AggregateID
}

func (f *fixture) snapshot(t *testing.T, id string) domain.SnapshotRecord {
	t.Helper()
	rec, err := f.store.GetSnapshot(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func TestCreateProductGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.services.Product.Create(ctx, "corr-1", commands.CreateProductParams{
		Name:            "Linen Shirt",
		FulfillmentType: domain.FulfillmentTypeDigital,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)

	// Slug derived from the name, reservation committed alongside.
	prod := f.snapshot(t, res.AggregateID)
	var state domain.ProductState
	require.NoError(t, json.Unmarshal(prod.Payload, &state))
	assert.Equal(t, "linen-shirt", state.Slug)

	slugRec := f.snapshot(t, "linen-shirt")
	assert.Equal(t, domain.AggregateTypeSlugReservation, slugRec.AggregateType)
	assert.Equal(t, int64(1), slugRec.Version)

	positions := f.snapshot(t, state.VariantPositionsAggregateID)
	assert.Equal(t, domain.AggregateTypeVariantPositions, positions.AggregateType)
	assert.Equal(t, int64(1), positions.Version)
}

func TestSlugUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createProduct(t, "First", "the-slug")
	_, err := f.services.Product.Create(ctx, "corr-2", commands.CreateProductParams{
		Name:            "Second",
		Slug:            "the-slug",
		FulfillmentType: domain.FulfillmentTypeDigital,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindConstraintViolated, domain.KindOf(err))
}

func TestChangeSlugCreatesRedirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "Shirt", "old-slug")

	_, err := f.services.Product.ChangeSlug(ctx, "corr-2", commands.ChangeSlugParams{
		ProductID: productID,
		NewSlug:   "new-slug",
	})
	require.NoError(t, err)

	var released domain.SlugReservationState
	require.NoError(t, json.Unmarshal(f.snapshot(t, "old-slug").Payload, &released))
	assert.Equal(t, domain.SlugReservationStatusReleased, released.Status)
	assert.Equal(t, "new-slug", released.NewSlug)

	var active domain.SlugReservationState
	require.NoError(t, json.Unmarshal(f.snapshot(t, "new-slug").Payload, &active))
	assert.Equal(t, domain.SlugReservationStatusActive, active.Status)
	assert.Equal(t, productID, active.EntityID)
}

func TestReleasedSlugIsReclaimable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "Shirt", "old-slug")

	_, err := f.services.Product.ChangeSlug(ctx, "corr-2", commands.ChangeSlugParams{
		ProductID: productID, NewSlug: "new-slug",
	})
	require.NoError(t, err)

	// A collection may take over the released product slug.
	res, err := f.services.Collection.Create(ctx, "corr-3", commands.CreateCollectionParams{
		Name: "Old Slug Collection",
		Slug: "old-slug",
	})
	require.NoError(t, err)

	var reclaimed domain.SlugReservationState
	require.NoError(t, json.Unmarshal(f.snapshot(t, "old-slug").Payload, &reclaimed))
	assert.Equal(t, domain.SlugReservationStatusActive, reclaimed.Status)
	assert.Equal(t, res.AggregateID, reclaimed.EntityID)
	assert.Equal(t, domain.SlugEntityTypeCollection, reclaimed.EntityType)
	assert.Empty(t, reclaimed.NewSlug)
}

func TestCreateVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "Shirt", "shirt")

	res, err := f.services.Variant.Create(ctx, "corr-2", commands.CreateVariantParams{
		ProductID: productID,
		SKU:       "SKU-1",
		Options:   map[string]string{"size": "m"},
		ListPrice: decimal.RequireFromString("19.99"),
		Inventory: 5,
	})
	require.NoError(t, err)

	// SKU reserved through the same uniqueness mechanism as slugs.
	skuRec := f.snapshot(t, "SKU-1")
	var sku domain.SlugReservationState
	require.NoError(t, json.Unmarshal(skuRec.Payload, &sku))
	assert.Equal(t, domain.SlugEntityTypeVariant, sku.EntityType)
	assert.Equal(t, res.AggregateID, sku.EntityID)

	// Variant appended to the product's ordering.
	var prodState domain.ProductState
	require.NoError(t, json.Unmarshal(f.snapshot(t, productID).Payload, &prodState))
	var positions domain.VariantPositionsState
	require.NoError(t, json.Unmarshal(f.snapshot(t, prodState.VariantPositionsAggregateID).Payload, &positions))
	assert.Equal(t, []string{res.AggregateID}, positions.VariantIDs)

	t.Run("DuplicateSKURejected", func(t *testing.T) {
		_, err := f.services.Variant.Create(ctx, "corr-3", commands.CreateVariantParams{
			ProductID: productID,
			SKU:       "SKU-1",
			ListPrice: decimal.RequireFromString("9.99"),
		})
		require.Error(t, err)
		assert.Equal(t, domain.KindConstraintViolated, domain.KindOf(err))
	})

	t.Run("InvalidOptionRejected", func(t *testing.T) {
		_, err := f.services.Variant.Create(ctx, "corr-4", commands.CreateVariantParams{
			ProductID: productID,
			SKU:       "SKU-2",
			Options:   map[string]string{"size": "xxl"},
			ListPrice: decimal.RequireFromString("9.99"),
		})
		require.Error(t, err)
		assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
	})
}

func TestArchiveVariantCleansUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "Shirt", "shirt")

	created, err := f.services.Variant.Create(ctx, "corr-2", commands.CreateVariantParams{
		ProductID: productID,
		SKU:       "SKU-1",
		Options:   map[string]string{"size": "m"},
		ListPrice: decimal.RequireFromString("19.99"),
	})
	require.NoError(t, err)

	_, err = f.services.Variant.Archive(ctx, "corr-3", commands.VariantRef{VariantID: created.AggregateID})
	require.NoError(t, err)

	// Removed from the ordering, SKU released for reuse.
	var prodState domain.ProductState
	require.NoError(t, json.Unmarshal(f.snapshot(t, productID).Payload, &prodState))
	var positions domain.VariantPositionsState
	require.NoError(t, json.Unmarshal(f.snapshot(t, prodState.VariantPositionsAggregateID).Payload, &positions))
	assert.Empty(t, positions.VariantIDs)

	var sku domain.SlugReservationState
	require.NoError(t, json.Unmarshal(f.snapshot(t, "SKU-1").Payload, &sku))
	assert.Equal(t, domain.SlugReservationStatusReleased, sku.Status)

	_, err = f.services.Variant.Create(ctx, "corr-4", commands.CreateVariantParams{
		ProductID: productID,
		SKU:       "SKU-1",
		Options:   map[string]string{"size": "l"},
		ListPrice: decimal.RequireFromString("29.99"),
	})
	assert.NoError(t, err)
}

func TestScheduleVisibleDrop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cost := decimal.RequireFromString("4.20")
	created, err := f.services.Product.Create(ctx, "corr-1", commands.CreateProductParams{
		Name:            "Enamel Pin",
		FulfillmentType: domain.FulfillmentTypeDropship,
		SupplierCost:    &cost,
	})
	require.NoError(t, err)

	dropAt := testClock().Add(24 * time.Hour)
	_, err = f.services.Product.ScheduleVisibleDrop(ctx, "corr-2", commands.ScheduleDropParams{
		ProductID:    created.AggregateID,
		ScheduledFor: dropAt,
	})
	require.NoError(t, err)

	var state domain.ProductState
	require.NoError(t, json.Unmarshal(f.snapshot(t, created.AggregateID).Payload, &state))
	assert.Equal(t, domain.ProductStatusVisiblePendingDrop, state.Status)

	events, err := f.store.LoadEvents(ctx, created.AggregateID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "dropshipProduct.visible_drop_scheduled", events[0].EventName)

	scheduleID, _ := events[0].Payload.NewState["scheduleId"].(string)
	require.NotEmpty(t, scheduleID)
	var sched domain.ScheduleState
	require.NoError(t, json.Unmarshal(f.snapshot(t, scheduleID).Payload, &sched))
	assert.Equal(t, domain.ScheduleStatusPending, sched.Status)
	assert.Equal(t, "product.publish", sched.CommandType)
	assert.Equal(t, dropAt, sched.ScheduledFor)

	t.Run("PastTimeRejected", func(t *testing.T) {
		_, err := f.services.Product.ScheduleHiddenDrop(ctx, "corr-3", commands.ScheduleDropParams{
			ProductID:    created.AggregateID,
			ScheduledFor: testClock().Add(-time.Hour),
		})
		assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
	})

	t.Run("DigitalProductRejected", func(t *testing.T) {
		digital := f.createProduct(t, "Ebook", "ebook")
		_, err := f.services.Product.ScheduleVisibleDrop(ctx, "corr-4", commands.ScheduleDropParams{
			ProductID:    digital,
			ScheduledFor: dropAt,
		})
		assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
	})
}

func TestScheduleExecutePublishesProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cost := decimal.RequireFromString("4.20")
	created, err := f.services.Product.Create(ctx, "corr-1", commands.CreateProductParams{
		Name:            "Pin",
		FulfillmentType: domain.FulfillmentTypeDropship,
		SupplierCost:    &cost,
	})
	require.NoError(t, err)

	_, err = f.services.Product.ScheduleHiddenDrop(ctx, "corr-2", commands.ScheduleDropParams{
		ProductID:    created.AggregateID,
		ScheduledFor: testClock().Add(time.Hour),
	})
	require.NoError(t, err)

	events, err := f.store.LoadEvents(ctx, created.AggregateID, 1)
	require.NoError(t, err)
	scheduleID, _ := events[0].Payload.NewState["scheduleId"].(string)

	err = f.services.Schedule.Execute(ctx, f.bus, scheduleID, testClock().Add(time.Minute), 5)
	require.NoError(t, err)

	var prodState domain.ProductState
	require.NoError(t, json.Unmarshal(f.snapshot(t, created.AggregateID).Payload, &prodState))
	assert.Equal(t, domain.ProductStatusActive, prodState.Status)

	var sched domain.ScheduleState
	require.NoError(t, json.Unmarshal(f.snapshot(t, scheduleID).Payload, &sched))
	assert.Equal(t, domain.ScheduleStatusExecuted, sched.Status)

	// Executing a non-pending schedule is a no-op.
	require.NoError(t, f.services.Schedule.Execute(ctx, f.bus, scheduleID, testClock(), 5))
}

func TestScheduleCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cost := decimal.RequireFromString("1.00")
	created, err := f.services.Product.Create(ctx, "corr-1", commands.CreateProductParams{
		Name:            "Pin",
		FulfillmentType: domain.FulfillmentTypeDropship,
		SupplierCost:    &cost,
	})
	require.NoError(t, err)
	_, err = f.services.Product.ScheduleVisibleDrop(ctx, "corr-2", commands.ScheduleDropParams{
		ProductID:    created.AggregateID,
		ScheduledFor: testClock().Add(time.Hour),
	})
	require.NoError(t, err)

	events, err := f.store.LoadEvents(ctx, created.AggregateID, 1)
	require.NoError(t, err)
	scheduleID, _ := events[0].Payload.NewState["scheduleId"].(string)

	_, err = f.services.Schedule.Cancel(ctx, "corr-3", commands.ScheduleRef{ScheduleID: scheduleID})
	require.NoError(t, err)

	_, err = f.services.Schedule.Cancel(ctx, "corr-4", commands.ScheduleRef{ScheduleID: scheduleID})
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
}

func verPtr(v int64) *int64 { return &v }

func TestExpectedVersionGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.createProduct(t, "Shirt", "shirt")

	t.Run("CurrentVersionSucceeds", func(t *testing.T) {
		res, err := f.services.Product.Rename(ctx, "corr-2", commands.RenameProductParams{
			ProductID:       productID,
			Name:            "Linen Shirt",
			ExpectedVersion: verPtr(1),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Version)
	})

	t.Run("StaleVersionConflicts", func(t *testing.T) {
		_, err := f.services.Product.Rename(ctx, "corr-3", commands.RenameProductParams{
			ProductID:       productID,
			Name:            "Never Applied",
			ExpectedVersion: verPtr(1),
		})
		require.Error(t, err)
		assert.Equal(t, domain.KindConcurrencyConflict, domain.KindOf(err))

		// The conflict fires before the rename, so nothing changed.
		var state domain.ProductState
		require.NoError(t, json.Unmarshal(f.snapshot(t, productID).Payload, &state))
		assert.Equal(t, "Linen Shirt", state.Name)
		assert.Equal(t, int64(2), f.snapshot(t, productID).Version)
	})

	t.Run("FutureVersionConflicts", func(t *testing.T) {
		_, err := f.services.Product.Rename(ctx, "corr-4", commands.RenameProductParams{
			ProductID:       productID,
			Name:            "Never Applied",
			ExpectedVersion: verPtr(99),
		})
		require.Error(t, err)
		assert.Equal(t, domain.KindConcurrencyConflict, domain.KindOf(err))
	})

	t.Run("OmittedVersionSkipsCheck", func(t *testing.T) {
		res, err := f.services.Product.Rename(ctx, "corr-5", commands.RenameProductParams{
			ProductID: productID,
			Name:      "Cotton Shirt",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), res.Version)
	})

	t.Run("GuardsVariantParent", func(t *testing.T) {
		_, err := f.services.Variant.Create(ctx, "corr-6", commands.CreateVariantParams{
			ProductID:       productID,
			SKU:             "SKU-G1",
			Options:         map[string]string{"size": "m"},
			ListPrice:       decimal.RequireFromString("19.99"),
			ExpectedVersion: verPtr(1),
		})
		require.Error(t, err)
		assert.Equal(t, domain.KindConcurrencyConflict, domain.KindOf(err))
	})

	t.Run("GuardsCollection", func(t *testing.T) {
		coll, err := f.services.Collection.Create(ctx, "corr-7", commands.CreateCollectionParams{Name: "Drops"})
		require.NoError(t, err)

		_, err = f.services.Collection.Rename(ctx, "corr-8", commands.RenameCollectionParams{
			CollectionID:    coll.AggregateID,
			Name:            "Never Applied",
			ExpectedVersion: verPtr(5),
		})
		require.Error(t, err)
		assert.Equal(t, domain.KindConcurrencyConflict, domain.KindOf(err))
	})
}

func TestBusDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.bus.Dispatch(ctx, &commands.Envelope{
		Type:      "product.create",
		CommandID: domain.NewID(),
		Data:      json.RawMessage(`{"name":"Bus Product","fulfillmentType":"digital"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AggregateID)
	assert.Equal(t, int64(1), res.Version)

	_, err = f.bus.Dispatch(ctx, &commands.Envelope{Type: "no.such.command", Data: json.RawMessage(`{}`)})
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))

	_, err = f.bus.Dispatch(ctx, &commands.Envelope{Type: "product.publish", Data: json.RawMessage(`{"productId":"missing"}`)})
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestCollectionMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prodA := f.createProduct(t, "A", "prod-a")
	prodB := f.createProduct(t, "B", "prod-b")

	coll, err := f.services.Collection.Create(ctx, "corr-1", commands.CreateCollectionParams{Name: "Summer"})
	require.NoError(t, err)

	_, err = f.services.Collection.AddProduct(ctx, "corr-2", commands.CollectionProductParams{
		CollectionID: coll.AggregateID, ProductID: prodA,
	})
	require.NoError(t, err)
	_, err = f.services.Collection.AddProduct(ctx, "corr-3", commands.CollectionProductParams{
		CollectionID: coll.AggregateID, ProductID: prodB,
	})
	require.NoError(t, err)

	_, err = f.services.Collection.AddProduct(ctx, "corr-4", commands.CollectionProductParams{
		CollectionID: coll.AggregateID, ProductID: "ghost",
	})
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = f.services.Collection.ReorderProducts(ctx, "corr-5", commands.ReorderCollectionProductsParams{
		CollectionID: coll.AggregateID, Order: []string{prodB, prodA},
	})
	require.NoError(t, err)

	var collState domain.CollectionState
	require.NoError(t, json.Unmarshal(f.snapshot(t, coll.AggregateID).Payload, &collState))
	var positions domain.CollectionProductPositionsState
	require.NoError(t, json.Unmarshal(f.snapshot(t, collState.ProductsAggregateID).Payload, &positions))
	assert.Equal(t, []string{prodB, prodA}, positions.ProductIDs)
}

func TestFulfillmentCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.services.Fulfillment.Create(ctx, "corr-1", commands.CreateFulfillmentParams{
		OrderID: "order-1",
		Items:   []domain.FulfillmentItem{{VariantID: "var-1", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.services.Fulfillment.Deliver(ctx, "corr-2", commands.FulfillmentRef{FulfillmentID: created.AggregateID})
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))

	_, err = f.services.Fulfillment.Ship(ctx, "corr-3", commands.ShipFulfillmentParams{
		FulfillmentID:  created.AggregateID,
		TrackingNumber: "TRACK-1",
		Carrier:        "dhl",
	})
	require.NoError(t, err)

	_, err = f.services.Fulfillment.Deliver(ctx, "corr-4", commands.FulfillmentRef{FulfillmentID: created.AggregateID})
	require.NoError(t, err)

	var state domain.FulfillmentState
	require.NoError(t, json.Unmarshal(f.snapshot(t, created.AggregateID).Payload, &state))
	assert.Equal(t, domain.FulfillmentStatusDelivered, state.Status)
}
