package domain

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"
)

// Event represents a domain event that has occurred in the system.
// Events are immutable facts about state changes.
type Event struct {
	// ID is the unique identifier for this event (sortable ULID)
	ID string `json:"event_id"`

	// AggregateID is the identifier of the aggregate this event belongs to
	AggregateID string `json:"aggregate_id"`

	// AggregateType is the type name of the aggregate (e.g. "product", "variant")
	AggregateType string `json:"aggregate_type"`

	// EventName is the stable dotted name, "<lowerCamel(aggregate)>.<snake_case(verb)>"
	EventName string `json:"event_name"`

	// Version is the aggregate version at which this event was produced.
	// The first event of a newly created aggregate carries version 0.
	Version int64 `json:"version"`

	// CorrelationID ties together events produced by the same command
	CorrelationID string `json:"correlation_id"`

	// Payload carries the prior/new state delta for this change
	Payload EventPayload `json:"payload"`

	// OccurredAt is set at commit time by the unit of work
	OccurredAt time.Time `json:"occurred_at"`

	// Sequence is the global commit order, assigned at commit time
	Sequence int64 `json:"sequence,omitempty"`
}

// EventPayload describes a state change as an explicit delta: the mutated
// fields before and after. Genesis events carry an empty PriorState and the
// full snapshot as NewState, so projections can apply patches without
// re-reading the aggregate.
type EventPayload struct {
	PriorState map[string]any `json:"priorState"`
	NewState   map[string]any `json:"newState"`
}

// Marshal serializes the payload for persistence.
func (p EventPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// DeriveEventName derives the stable event name for an aggregate type and
// verb. The aggregate type is already lowerCamel; the verb is converted to
// snake_case, so ("product", "SlugChanged") yields "product.slug_changed".
func DeriveEventName(aggregateType, verb string) string {
	return aggregateType + "." + snakeCase(verb)
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
