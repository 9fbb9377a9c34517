package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// Views is the read-side query surface over the projection tables. All
// filters are conjunctive: every set field narrows the result.
type Views struct {
	db *sql.DB
}

// NewViews creates the query layer over the given handle.
func NewViews(db *sql.DB) *Views {
	return &Views{db: db}
}

// Page bounds a listing. A zero Limit means unlimited.
type Page struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// limit maps the absent case to -1, which sqlite reads as no limit while
// still honoring the offset.
func (p Page) limit() int {
	if p.Limit <= 0 {
		return -1
	}
	return p.Limit
}

// ProductRow is one row of the product listing.
type ProductRow struct {
	ProductID       string     `json:"productId"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	Status          string     `json:"status"`
	FulfillmentType string     `json:"fulfillmentType"`
	Vendor          string     `json:"vendor,omitempty"`
	Tags            []string   `json:"tags"`
	Collections     []string   `json:"collections"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ProductFilter narrows the product listing.
type ProductFilter struct {
	ProductID string `json:"productId,omitempty"`
	Status    string `json:"status,omitempty"`
	Slug      string `json:"slug,omitempty"`
	Page
}

// ListProducts returns products matching the filter, most recently updated
// first.
func (v *Views) ListProducts(ctx context.Context, f ProductFilter) ([]ProductRow, error) {
	where, args := buildWhere(map[string]string{
		"product_id": f.ProductID,
		"status":     f.Status,
		"slug":       f.Slug,
	})
	args = append(args, f.limit(), f.Offset)

	rows, err := v.db.QueryContext(ctx, `
		SELECT product_id, name, slug, status, fulfillment_type, vendor, tags, collections, published_at, updated_at
		FROM product_list`+where+`
		ORDER BY updated_at DESC, product_id LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductRow
	for rows.Next() {
		var (
			row               ProductRow
			tags, collections string
			publishedAt       sql.NullInt64
			updatedAt         int64
		)
		if err := rows.Scan(&row.ProductID, &row.Name, &row.Slug, &row.Status,
			&row.FulfillmentType, &row.Vendor, &tags, &collections, &publishedAt, &updatedAt); err != nil {
			return nil, err
		}
		row.Tags = decodeStrings(tags)
		row.Collections = decodeStrings(collections)
		row.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		if publishedAt.Valid {
			t := time.Unix(publishedAt.Int64, 0).UTC()
			row.PublishedAt = &t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// VariantRow is one row of the variant listing.
type VariantRow struct {
	VariantID string            `json:"variantId"`
	ProductID string            `json:"productId"`
	SKU       string            `json:"sku"`
	Status    string            `json:"status"`
	ListPrice decimal.Decimal   `json:"listPrice"`
	Inventory int64             `json:"inventory"`
	Position  int               `json:"position"`
	Options   map[string]string `json:"options,omitempty"`
}

// VariantFilter narrows the variant listing.
type VariantFilter struct {
	VariantID string `json:"variantId,omitempty"`
	ProductID string `json:"productId,omitempty"`
	Status    string `json:"status,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Page
}

// ListVariants returns variants matching the filter in display order.
func (v *Views) ListVariants(ctx context.Context, f VariantFilter) ([]VariantRow, error) {
	where, args := buildWhere(map[string]string{
		"variant_id": f.VariantID,
		"product_id": f.ProductID,
		"status":     f.Status,
		"sku":        f.SKU,
	})
	args = append(args, f.limit(), f.Offset)

	rows, err := v.db.QueryContext(ctx, `
		SELECT variant_id, product_id, sku, status, list_price, inventory, position, options
		FROM variant_list`+where+`
		ORDER BY position, variant_id LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VariantRow
	for rows.Next() {
		var (
			row       VariantRow
			listPrice string
			options   string
		)
		if err := rows.Scan(&row.VariantID, &row.ProductID, &row.SKU, &row.Status,
			&listPrice, &row.Inventory, &row.Position, &options); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(listPrice)
		if err != nil {
			return nil, err
		}
		row.ListPrice = price
		if options != "" {
			_ = json.Unmarshal([]byte(options), &row.Options)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CollectionRow is one row of the collection listing.
type CollectionRow struct {
	CollectionID string    `json:"collectionId"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CollectionFilter narrows the collection listing.
type CollectionFilter struct {
	CollectionID string `json:"collectionId,omitempty"`
	Status       string `json:"status,omitempty"`
	Slug         string `json:"slug,omitempty"`
	Page
}

// ListCollections returns collections matching the filter.
func (v *Views) ListCollections(ctx context.Context, f CollectionFilter) ([]CollectionRow, error) {
	where, args := buildWhere(map[string]string{
		"collection_id": f.CollectionID,
		"status":        f.Status,
		"slug":          f.Slug,
	})
	args = append(args, f.limit(), f.Offset)

	rows, err := v.db.QueryContext(ctx, `
		SELECT collection_id, name, slug, description, status, updated_at
		FROM collection_list`+where+`
		ORDER BY updated_at DESC, collection_id LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CollectionRow
	for rows.Next() {
		var (
			row       CollectionRow
			updatedAt int64
		)
		if err := rows.Scan(&row.CollectionID, &row.Name, &row.Slug, &row.Description,
			&row.Status, &updatedAt); err != nil {
			return nil, err
		}
		row.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

// CollectionProducts returns the ordered product IDs of a collection.
func (v *Views) CollectionProducts(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT product_id FROM collection_products
		WHERE collection_id = ? ORDER BY position
	`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ScheduleRow is one row of the schedule listing.
type ScheduleRow struct {
	ScheduleID          string     `json:"scheduleId"`
	TargetAggregateID   string     `json:"targetAggregateId"`
	TargetAggregateType string     `json:"targetAggregateType"`
	CommandType         string     `json:"commandType"`
	ScheduledFor        time.Time  `json:"scheduledFor"`
	Status              string     `json:"status"`
	RetryCount          int        `json:"retryCount"`
	NextRetryAt         *time.Time `json:"nextRetryAt,omitempty"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
}

// ScheduleFilter narrows the schedule listing.
type ScheduleFilter struct {
	ScheduleID        string `json:"scheduleId,omitempty"`
	TargetAggregateID string `json:"targetAggregateId,omitempty"`
	Status            string `json:"status,omitempty"`
	Page
}

// ListSchedules returns schedules matching the filter, soonest first.
func (v *Views) ListSchedules(ctx context.Context, f ScheduleFilter) ([]ScheduleRow, error) {
	where, args := buildWhere(map[string]string{
		"schedule_id":         f.ScheduleID,
		"target_aggregate_id": f.TargetAggregateID,
		"status":              f.Status,
	})
	args = append(args, f.limit(), f.Offset)

	rows, err := v.db.QueryContext(ctx, `
		SELECT schedule_id, target_aggregate_id, target_aggregate_type, command_type, scheduled_for, status, retry_count, next_retry_at, error_message
		FROM schedule_list`+where+`
		ORDER BY scheduled_for, schedule_id LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleRow
	for rows.Next() {
		var (
			row          ScheduleRow
			scheduledFor int64
			nextRetryAt  sql.NullInt64
		)
		if err := rows.Scan(&row.ScheduleID, &row.TargetAggregateID, &row.TargetAggregateType,
			&row.CommandType, &scheduledFor, &row.Status, &row.RetryCount, &nextRetryAt,
			&row.ErrorMessage); err != nil {
			return nil, err
		}
		row.ScheduledFor = time.Unix(scheduledFor, 0).UTC()
		if nextRetryAt.Valid {
			t := time.Unix(nextRetryAt.Int64, 0).UTC()
			row.NextRetryAt = &t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Resolution is the outcome of a slug lookup.
type Resolution struct {
	Slug       string `json:"slug"`
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
	Redirected bool   `json:"redirected"`
}

// ResolveSlug follows the redirect chain and returns the terminal entity.
func (v *Views) ResolveSlug(ctx context.Context, slug string) (Resolution, error) {
	entry, hops, err := NewSlugDirectory(v.db).Resolve(ctx, slug)
	if err != nil {
		return Resolution{}, err
	}
	if entry.Status != string(domain.SlugReservationStatusActive) {
		return Resolution{}, domain.NotFoundf("slug %q not found", slug)
	}
	return Resolution{
		Slug:       entry.Slug,
		EntityID:   entry.EntityID,
		EntityType: entry.EntityType,
		Redirected: hops > 0,
	}, nil
}

// decodeStrings parses a JSON-encoded string array column.
func decodeStrings(s string) []string {
	var out []string
	if s != "" {
		_ = json.Unmarshal([]byte(s), &out)
	}
	return out
}

// buildWhere assembles a conjunctive WHERE clause from the non-empty filters.
// Map iteration order does not matter because the clauses are ANDed.
func buildWhere(filters map[string]string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	for column, value := range filters {
		if value != "" {
			clauses = append(clauses, column+" = ?")
			args = append(args, value)
		}
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
