// Package projection builds denormalized read models from the committed
// event stream. Each projection keeps its tables in the same SQLite database
// as the event store and tracks its own position through the checkpoint
// table, so it can lag, catch up or be rebuilt independently of the others.
package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// Projection consumes committed events and maintains a read model.
type Projection interface {
	// Name is the unique checkpoint key of this projection.
	Name() string

	// Init creates the read model tables if they do not exist.
	Init(ctx context.Context) error

	// Handle applies one event. Handlers must be idempotent: after a crash
	// between apply and checkpoint save, the same event is delivered again.
	Handle(ctx context.Context, evt *domain.Event) error

	// Reset drops the read model data so the projection can be rebuilt.
	Reset(ctx context.Context) error
}

// delta wraps an event's newState map with typed accessors. Values come out
// of encoding/json, so numbers are float64, times are RFC3339 strings and
// anything structured is a map or slice.
type delta map[string]any

// Has reports whether the delta touches the given field.
func (d delta) Has(key string) bool {
	_, ok := d[key]
	return ok
}

func (d delta) String(key string) string {
	s, _ := d[key].(string)
	return s
}

func (d delta) Int64(key string) int64 {
	f, _ := d[key].(float64)
	return int64(f)
}

func (d delta) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Time parses an RFC3339 field, returning nil when absent or null.
func (d delta) Time(key string) *time.Time {
	s, ok := d[key].(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// StringSlice converts a JSON array field to []string, skipping non-strings.
func (d delta) StringSlice(key string) []string {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// JSON re-serializes a structured field for storage in a TEXT column.
func (d delta) JSON(key string) string {
	v, ok := d[key]
	if !ok {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// unixOrNil converts an optional time to a nullable unix column value.
func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// setClause builds "col1 = ?, col2 = ?" for an UPDATE over the given columns.
func setClause(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s = ?", c)
	}
	return strings.Join(parts, ", ")
}
