package projection

import (
	"context"
	"database/sql"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// ProductList maintains a flat row per product for admin listings. Dropship
// and digital products land in the same table, distinguished by
// fulfillment_type.
type ProductList struct {
	db *sql.DB
}

// NewProductList creates the product list projection over the given handle.
func NewProductList(db *sql.DB) *ProductList {
	return &ProductList{db: db}
}

func (p *ProductList) Name() string { return "product_list" }

func (p *ProductList) Init(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS product_list (
			product_id       TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			slug             TEXT NOT NULL,
			status           TEXT NOT NULL,
			fulfillment_type TEXT NOT NULL,
			vendor           TEXT NOT NULL DEFAULT '',
			tags             TEXT NOT NULL DEFAULT '[]',
			collections      TEXT NOT NULL DEFAULT '[]',
			images           TEXT NOT NULL DEFAULT '[]',
			published_at     INTEGER,
			updated_at       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_product_list_slug ON product_list(slug);
		CREATE INDEX IF NOT EXISTS idx_product_list_status ON product_list(status);
	`)
	return err
}

func (p *ProductList) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM product_list`)
	return err
}

func (p *ProductList) Handle(ctx context.Context, evt *domain.Event) error {
	if evt.AggregateType != domain.AggregateTypeProduct && evt.AggregateType != domain.AggregateTypeDropshipProduct {
		return nil
	}
	d := delta(evt.Payload.NewState)

	if evt.Version == 0 {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO product_list (product_id, name, slug, status, fulfillment_type, vendor, tags, collections, images, published_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(product_id) DO NOTHING
		`, evt.AggregateID, d.String("name"), d.String("slug"), d.String("status"),
			d.String("fulfillmentType"), d.String("vendor"),
			jsonOrDefault(d, "tags"), jsonOrDefault(d, "collections"), jsonOrDefault(d, "images"),
			unixOrNil(d.Time("publishedAt")), evt.OccurredAt.Unix())
		return err
	}

	columns := []string{"updated_at"}
	args := []any{evt.OccurredAt.Unix()}
	for key, column := range map[string]string{
		"name":   "name",
		"slug":   "slug",
		"status": "status",
		"vendor": "vendor",
	} {
		if d.Has(key) {
			columns = append(columns, column)
			args = append(args, d.String(key))
		}
	}
	for key, column := range map[string]string{
		"tags":        "tags",
		"collections": "collections",
		"images":      "images",
	} {
		if d.Has(key) {
			columns = append(columns, column)
			args = append(args, d.JSON(key))
		}
	}
	if d.Has("publishedAt") {
		columns = append(columns, "published_at")
		args = append(args, unixOrNil(d.Time("publishedAt")))
	}

	args = append(args, evt.AggregateID)
	_, err := p.db.ExecContext(ctx,
		`UPDATE product_list SET `+setClause(columns)+` WHERE product_id = ?`, args...)
	return err
}

// jsonOrDefault serializes a structured field, falling back to an empty
// array so NOT NULL columns always get a value.
func jsonOrDefault(d delta, key string) string {
	if s := d.JSON(key); s != "" && s != "null" {
		return s
	}
	return "[]"
}
