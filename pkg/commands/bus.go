// Package commands implements the write side: a command bus with middleware,
// and the services that validate commands, mutate aggregates and commit them
// through the unit of work.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// Envelope is a dynamic command: a dotted type, routing metadata and a raw
// JSON body the handler decodes into its own params type.
type Envelope struct {
	// Type routes the command, e.g. "product.create".
	Type string `json:"type"`

	// CommandID identifies this submission for tracing.
	CommandID string `json:"commandId"`

	// CorrelationID ties the resulting events to this command. Assigned by
	// the ingress when the client does not supply one.
	CorrelationID string `json:"correlationId"`

	// Principal is the authenticated actor, empty for internal dispatch.
	Principal string `json:"principal,omitempty"`

	// Data is the command body.
	Data json.RawMessage `json:"data"`
}

// Result reports what a command changed.
type Result struct {
	// AggregateID is the primary aggregate the command acted on.
	AggregateID string `json:"aggregateId"`

	// Version is the aggregate's version after commit.
	Version int64 `json:"version"`
}

// Handler processes one command type.
type Handler interface {
	Handle(ctx context.Context, cmd *Envelope) (*Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd *Envelope) (*Result, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, cmd *Envelope) (*Result, error) {
	return f(ctx, cmd)
}

// Middleware wraps a handler with cross-cutting behavior.
type Middleware func(Handler) Handler

// Bus is an in-memory command router.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	middleware []Middleware
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]Handler)}
}

// Register binds a handler to a command type. Double registration is a
// programming error and panics at startup.
func (b *Bus) Register(commandType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[commandType]; exists {
		panic(fmt.Sprintf("handler already registered for command type: %s", commandType))
	}
	b.handlers[commandType] = handler
}

// RegisterFunc binds a function handler to a command type.
func (b *Bus) RegisterFunc(commandType string, fn HandlerFunc) {
	b.Register(commandType, fn)
}

// Use appends middleware. First added runs outermost.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// Dispatch routes a command to its handler through the middleware chain.
func (b *Bus) Dispatch(ctx context.Context, cmd *Envelope) (*Result, error) {
	if cmd == nil || cmd.Type == "" {
		return nil, domain.Validationf("command type is required")
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = domain.NewCorrelationID()
	}

	b.mu.RLock()
	handler, exists := b.handlers[cmd.Type]
	middleware := b.middleware
	b.mu.RUnlock()

	if !exists {
		return nil, domain.Validationf("unknown command type %q", cmd.Type)
	}

	final := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		final = middleware[i](final)
	}
	return final.Handle(ctx, cmd)
}

// CommandTypes returns the registered command types, for diagnostics.
func (b *Bus) CommandTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		types = append(types, t)
	}
	return types
}

// decode unmarshals a command body, reporting malformed JSON as a validation
// failure rather than an internal error.
func decode[T any](cmd *Envelope) (T, error) {
	var params T
	if len(cmd.Data) == 0 {
		return params, domain.Validationf("command %q requires a data body", cmd.Type)
	}
	if err := json.Unmarshal(cmd.Data, &params); err != nil {
		return params, domain.Validationf("malformed body for command %q: %v", cmd.Type, err)
	}
	return params, nil
}
