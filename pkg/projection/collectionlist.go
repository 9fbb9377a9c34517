package projection

import (
	"context"
	"database/sql"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// CollectionList maintains a flat row per collection, plus the ordered
// membership table fed by the collection's positions aggregate.
type CollectionList struct {
	db *sql.DB
}

// NewCollectionList creates the collection list projection over the given handle.
func NewCollectionList(db *sql.DB) *CollectionList {
	return &CollectionList{db: db}
}

func (p *CollectionList) Name() string { return "collection_list" }

func (p *CollectionList) Init(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS collection_list (
			collection_id TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			slug          TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL,
			images        TEXT NOT NULL DEFAULT '[]',
			updated_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_collection_list_slug ON collection_list(slug);

		CREATE TABLE IF NOT EXISTS collection_products (
			collection_id TEXT NOT NULL,
			product_id    TEXT NOT NULL,
			position      INTEGER NOT NULL,
			PRIMARY KEY (collection_id, product_id)
		);

		-- Maps the positions aggregate back to its collection; ordering
		-- events after genesis carry only the changed list.
		CREATE TABLE IF NOT EXISTS collection_products_sources (
			aggregate_id  TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL
		);
	`)
	return err
}

func (p *CollectionList) Reset(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM collection_list`,
		`DELETE FROM collection_products`,
		`DELETE FROM collection_products_sources`,
	} {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *CollectionList) Handle(ctx context.Context, evt *domain.Event) error {
	switch evt.AggregateType {
	case domain.AggregateTypeCollection:
		return p.handleCollection(ctx, evt)
	case domain.AggregateTypeCollectionProductPositions:
		return p.handlePositions(ctx, evt)
	}
	return nil
}

func (p *CollectionList) handleCollection(ctx context.Context, evt *domain.Event) error {
	d := delta(evt.Payload.NewState)

	if evt.Version == 0 {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO collection_list (collection_id, name, slug, description, status, images, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(collection_id) DO NOTHING
		`, evt.AggregateID, d.String("name"), d.String("slug"), d.String("description"),
			d.String("status"), jsonOrDefault(d, "images"), evt.OccurredAt.Unix())
		return err
	}

	columns := []string{"updated_at"}
	args := []any{evt.OccurredAt.Unix()}
	for key, column := range map[string]string{
		"name":        "name",
		"slug":        "slug",
		"description": "description",
		"status":      "status",
	} {
		if d.Has(key) {
			columns = append(columns, column)
			args = append(args, d.String(key))
		}
	}
	if d.Has("images") {
		columns = append(columns, "images")
		args = append(args, d.JSON("images"))
	}

	args = append(args, evt.AggregateID)
	_, err := p.db.ExecContext(ctx,
		`UPDATE collection_list SET `+setClause(columns)+` WHERE collection_id = ?`, args...)
	return err
}

func (p *CollectionList) handlePositions(ctx context.Context, evt *domain.Event) error {
	d := delta(evt.Payload.NewState)

	collectionID := d.String("collectionId")
	if evt.Version == 0 && collectionID != "" {
		if _, err := p.db.ExecContext(ctx, `
			INSERT INTO collection_products_sources (aggregate_id, collection_id)
			VALUES (?, ?) ON CONFLICT(aggregate_id) DO NOTHING
		`, evt.AggregateID, collectionID); err != nil {
			return err
		}
	}
	if !d.Has("productIds") {
		return nil
	}
	if collectionID == "" {
		err := p.db.QueryRowContext(ctx,
			`SELECT collection_id FROM collection_products_sources WHERE aggregate_id = ?`,
			evt.AggregateID).Scan(&collectionID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
	}

	// Replace the membership wholesale; the event carries the full ordering.
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM collection_products WHERE collection_id = ?`, collectionID); err != nil {
		return err
	}
	for i, productID := range d.StringSlice("productIds") {
		if _, err := p.db.ExecContext(ctx, `
			INSERT INTO collection_products (collection_id, product_id, position) VALUES (?, ?, ?)
		`, collectionID, productID, i); err != nil {
			return err
		}
	}
	return nil
}
