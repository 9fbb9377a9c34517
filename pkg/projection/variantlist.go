package projection

import (
	"context"
	"database/sql"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// VariantList maintains a row per variant including its display position,
// which arrives through the product's ordering aggregate rather than the
// variant itself.
type VariantList struct {
	db *sql.DB
}

// NewVariantList creates the variant list projection over the given handle.
func NewVariantList(db *sql.DB) *VariantList {
	return &VariantList{db: db}
}

func (p *VariantList) Name() string { return "variant_list" }

func (p *VariantList) Init(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS variant_list (
			variant_id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			sku        TEXT NOT NULL,
			status     TEXT NOT NULL,
			list_price TEXT NOT NULL,
			inventory  INTEGER NOT NULL DEFAULT 0,
			position   INTEGER NOT NULL DEFAULT -1,
			options    TEXT NOT NULL DEFAULT '{}',
			images     TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_variant_list_product ON variant_list(product_id);
		CREATE INDEX IF NOT EXISTS idx_variant_list_sku ON variant_list(sku);
	`)
	return err
}

func (p *VariantList) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM variant_list`)
	return err
}

func (p *VariantList) Handle(ctx context.Context, evt *domain.Event) error {
	switch evt.AggregateType {
	case domain.AggregateTypeVariant:
		return p.handleVariant(ctx, evt)
	case domain.AggregateTypeVariantPositions:
		return p.handlePositions(ctx, evt)
	}
	return nil
}

func (p *VariantList) handleVariant(ctx context.Context, evt *domain.Event) error {
	d := delta(evt.Payload.NewState)

	if evt.Version == 0 {
		options := d.JSON("options")
		if options == "" || options == "null" {
			options = "{}"
		}
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO variant_list (variant_id, product_id, sku, status, list_price, inventory, options, images, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(variant_id) DO NOTHING
		`, evt.AggregateID, d.String("productId"), d.String("sku"), d.String("status"),
			d.String("listPrice"), d.Int64("inventory"), options, jsonOrDefault(d, "images"),
			evt.OccurredAt.Unix())
		return err
	}

	columns := []string{"updated_at"}
	args := []any{evt.OccurredAt.Unix()}
	if d.Has("status") {
		columns = append(columns, "status")
		args = append(args, d.String("status"))
	}
	if d.Has("listPrice") {
		columns = append(columns, "list_price")
		args = append(args, d.String("listPrice"))
	}
	if d.Has("inventory") {
		columns = append(columns, "inventory")
		args = append(args, d.Int64("inventory"))
	}
	if d.Has("images") {
		columns = append(columns, "images")
		args = append(args, d.JSON("images"))
	}
	// An archived variant drops out of the product ordering.
	if d.String("status") == string(domain.VariantStatusArchived) {
		columns = append(columns, "position")
		args = append(args, -1)
	}

	args = append(args, evt.AggregateID)
	_, err := p.db.ExecContext(ctx,
		`UPDATE variant_list SET `+setClause(columns)+` WHERE variant_id = ?`, args...)
	return err
}

func (p *VariantList) handlePositions(ctx context.Context, evt *domain.Event) error {
	d := delta(evt.Payload.NewState)
	if !d.Has("variantIds") {
		return nil
	}
	for i, variantID := range d.StringSlice("variantIds") {
		if _, err := p.db.ExecContext(ctx,
			`UPDATE variant_list SET position = ? WHERE variant_id = ?`, i, variantID); err != nil {
			return err
		}
	}
	return nil
}
