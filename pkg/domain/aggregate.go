package domain

import (
	"encoding/json"
	"time"
)

// Aggregate defines the interface that all aggregates must implement.
type Aggregate interface {
	// ID returns the unique identifier of the aggregate.
	ID() string

	// Type returns the type name of the aggregate.
	Type() string

	// Version returns the version the next event will receive. It equals the
	// number of events applied so far, committed or not.
	Version() int64

	// CorrelationID returns the correlation id of the current operation.
	CorrelationID() string

	// UncommittedEvents returns events that have been recorded but not yet persisted.
	UncommittedEvents() []*Event

	// ClearUncommittedEvents clears the uncommitted events after they've been persisted.
	ClearUncommittedEvents()

	// Snapshot returns the full state of the aggregate for persistence.
	Snapshot() (json.RawMessage, error)
}

// SnapshotRecord is the persisted latest-state row for an aggregate.
// Its version equals the number of committed events, which is also the
// version the next event will receive.
type SnapshotRecord struct {
	AggregateID   string
	AggregateType string
	Version       int64
	Payload       json.RawMessage
	CorrelationID string
	UpdatedAt     time.Time
}

// AggregateRoot provides base behavior for all aggregates: version tracking,
// the uncommitted-event buffer and event-name derivation.
// Embed it in aggregate implementations.
type AggregateRoot struct {
	id            string
	aggregateType string
	version       int64
	correlationID string
	uncommitted   []*Event
}

// NewAggregateRoot creates a fresh root with version 0, ready to record a
// genesis event.
func NewAggregateRoot(id, aggregateType, correlationID string) AggregateRoot {
	return AggregateRoot{
		id:            id,
		aggregateType: aggregateType,
		correlationID: correlationID,
	}
}

// RestoreAggregateRoot rebuilds a root from a snapshot row.
func RestoreAggregateRoot(rec SnapshotRecord, correlationID string) AggregateRoot {
	return AggregateRoot{
		id:            rec.AggregateID,
		aggregateType: rec.AggregateType,
		version:       rec.Version,
		correlationID: correlationID,
	}
}

// ID returns the aggregate's unique identifier.
func (a *AggregateRoot) ID() string {
	return a.id
}

// Type returns the aggregate's type name.
func (a *AggregateRoot) Type() string {
	return a.aggregateType
}

// Version returns the version the next event will receive.
func (a *AggregateRoot) Version() int64 {
	return a.version
}

// CorrelationID returns the correlation id of the current operation.
func (a *AggregateRoot) CorrelationID() string {
	return a.correlationID
}

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateRoot) UncommittedEvents() []*Event {
	return a.uncommitted
}

// ClearUncommittedEvents clears the uncommitted events list.
func (a *AggregateRoot) ClearUncommittedEvents() {
	a.uncommitted = nil
}

// Record pushes one event for the given verb and bumps the version.
// The event carries the pre-increment version: the first event of a new
// aggregate is recorded at version 0.
func (a *AggregateRoot) Record(verb string, prior, next map[string]any) {
	evt := &Event{
		ID:            NewID(),
		AggregateID:   a.id,
		AggregateType: a.aggregateType,
		EventName:     DeriveEventName(a.aggregateType, verb),
		Version:       a.version,
		CorrelationID: a.correlationID,
		Payload: EventPayload{
			PriorState: prior,
			NewState:   next,
		},
	}
	a.uncommitted = append(a.uncommitted, evt)
	a.version++
}

// asMap round-trips a state struct through JSON into a generic map.
// Used for genesis events, whose newState is the full snapshot.
func asMap(state any) map[string]any {
	raw, err := json.Marshal(state)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}
