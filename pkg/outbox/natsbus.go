package outbox

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// BusConfig holds the NATS connection and stream settings.
type BusConfig struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the JetStream stream receiving domain events.
	StreamName string

	// StreamSubjects are the subjects the stream captures.
	StreamSubjects []string

	// MaxAge is how long the stream retains events.
	MaxAge time.Duration

	// MaxBytes caps the stream size.
	MaxBytes int64
}

// DefaultBusConfig returns the production stream settings.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		URL:            nats.DefaultURL,
		StreamName:     "COMMERCE_EVENTS",
		StreamSubjects: []string{"commerce.events.>"},
		MaxAge:         7 * 24 * time.Hour,
		MaxBytes:       1024 * 1024 * 1024,
	}
}

// EventBus publishes domain events to NATS JetStream. The event ID doubles
// as the JetStream message ID, so redelivery after a crashed publish is
// deduplicated server-side.
type EventBus struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewEventBus connects to NATS and ensures the event stream exists.
func NewEventBus(config BusConfig) (*EventBus, error) {
	nc, err := nats.Connect(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bus := &EventBus{nc: nc, js: js}
	if err := bus.ensureStream(config); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}
	return bus, nil
}

func (b *EventBus) ensureStream(config BusConfig) error {
	streamConfig := &nats.StreamConfig{
		Name:      config.StreamName,
		Subjects:  config.StreamSubjects,
		Retention: nats.LimitsPolicy,
		MaxAge:    config.MaxAge,
		MaxBytes:  config.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	if _, err := b.js.StreamInfo(config.StreamName); err != nil {
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}
	if _, err := b.js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	return nil
}

// Publish sends one serialized event envelope. The subject is derived from
// the event name, so "product.slug_changed" lands on
// "commerce.events.product.slug_changed".
func (b *EventBus) Publish(entry Entry) error {
	subject := "commerce.events." + entry.EventName
	if _, err := b.js.Publish(subject, entry.Payload, nats.MsgId(entry.EventID)); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", entry.EventID, err)
	}
	return nil
}

// Close closes the NATS connection.
func (b *EventBus) Close() error {
	b.nc.Close()
	return nil
}
