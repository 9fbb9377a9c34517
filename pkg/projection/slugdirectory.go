package projection

import (
	"context"
	"database/sql"
	"errors"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// maxRedirectHops bounds redirect chain resolution. Chains grow one hop per
// slug change, so anything deeper indicates a cycle.
const maxRedirectHops = 16

// SlugDirectory maintains the slug lookup table, including released slugs
// that forward to their successor.
type SlugDirectory struct {
	db *sql.DB
}

// NewSlugDirectory creates the slug directory projection over the given handle.
func NewSlugDirectory(db *sql.DB) *SlugDirectory {
	return &SlugDirectory{db: db}
}

func (p *SlugDirectory) Name() string { return "slug_directory" }

func (p *SlugDirectory) Init(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS slug_directory (
			slug        TEXT PRIMARY KEY,
			entity_id   TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			status      TEXT NOT NULL,
			new_slug    TEXT NOT NULL DEFAULT '',
			updated_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_slug_directory_entity ON slug_directory(entity_id);
	`)
	return err
}

func (p *SlugDirectory) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM slug_directory`)
	return err
}

func (p *SlugDirectory) Handle(ctx context.Context, evt *domain.Event) error {
	if evt.AggregateType != domain.AggregateTypeSlugReservation {
		return nil
	}
	d := delta(evt.Payload.NewState)

	if evt.Version == 0 {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO slug_directory (slug, entity_id, entity_type, status, new_slug, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(slug) DO NOTHING
		`, evt.AggregateID, d.String("entityId"), d.String("entityType"),
			d.String("status"), d.String("newSlug"), evt.OccurredAt.Unix())
		return err
	}

	columns := []string{"updated_at"}
	args := []any{evt.OccurredAt.Unix()}
	for key, column := range map[string]string{
		"entityId":   "entity_id",
		"entityType": "entity_type",
		"status":     "status",
	} {
		if d.Has(key) {
			columns = append(columns, column)
			args = append(args, d.String(key))
		}
	}
	// Release events omit the field when there is no forwarding slug, and
	// reclaim events must clear it, so always write it on status changes.
	if d.Has("status") || d.Has("newSlug") {
		columns = append(columns, "new_slug")
		args = append(args, d.String("newSlug"))
	}

	args = append(args, evt.AggregateID)
	_, err := p.db.ExecContext(ctx,
		`UPDATE slug_directory SET `+setClause(columns)+` WHERE slug = ?`, args...)
	return err
}

// SlugEntry is one row of the slug directory.
type SlugEntry struct {
	Slug       string
	EntityID   string
	EntityType string
	Status     string
	NewSlug    string
}

// ErrRedirectCycle is returned when slug forwarding never reaches an active
// reservation.
var ErrRedirectCycle = errors.New("slug redirect chain does not terminate")

// Resolve looks up a slug and follows released-slug forwards until it
// reaches an active reservation. The second return value reports how many
// redirect hops were taken, zero for a direct hit.
func (p *SlugDirectory) Resolve(ctx context.Context, slug string) (SlugEntry, int, error) {
	current := slug
	for hops := 0; hops < maxRedirectHops; hops++ {
		entry, err := p.lookup(ctx, current)
		if err != nil {
			return SlugEntry{}, hops, err
		}
		if entry.Status == string(domain.SlugReservationStatusActive) || entry.NewSlug == "" {
			return entry, hops, nil
		}
		current = entry.NewSlug
	}
	return SlugEntry{}, maxRedirectHops, ErrRedirectCycle
}

func (p *SlugDirectory) lookup(ctx context.Context, slug string) (SlugEntry, error) {
	var entry SlugEntry
	err := p.db.QueryRowContext(ctx, `
		SELECT slug, entity_id, entity_type, status, new_slug
		FROM slug_directory WHERE slug = ?
	`, slug).Scan(&entry.Slug, &entry.EntityID, &entry.EntityType, &entry.Status, &entry.NewSlug)
	if err == sql.ErrNoRows {
		return SlugEntry{}, domain.NotFoundf("slug %q not found", slug)
	}
	if err != nil {
		return SlugEntry{}, err
	}
	return entry, nil
}
