// Package sink defines how fired deliveries leave the process.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/noahxzhu/discord-scheduler/internal/model"
)

var (
	// ErrInvalidDestination means the destination could not be resolved at
	// delivery time, e.g. a deleted channel or an unknown kind.
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrDeliveryFailed means the destination resolved but sending failed.
	ErrDeliveryFailed = errors.New("delivery failed")
)

type Sink interface {
	Deliver(ctx context.Context, d model.Delivery) error
}

type Func func(ctx context.Context, d model.Delivery) error

func (f Func) Deliver(ctx context.Context, d model.Delivery) error { return f(ctx, d) }

// Mux routes deliveries to the sink registered for their destination kind.
type Mux struct {
	mu    sync.RWMutex
	sinks map[model.DestinationKind]Sink
}

func NewMux() *Mux {
	return &Mux{sinks: make(map[model.DestinationKind]Sink)}
}

func (m *Mux) Handle(kind model.DestinationKind, s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks[kind] = s
}

func (m *Mux) Kinds() []model.DestinationKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kinds := make([]model.DestinationKind, 0, len(m.sinks))
	for k := range m.sinks {
		kinds = append(kinds, k)
	}
	return kinds
}

func (m *Mux) Deliver(ctx context.Context, d model.Delivery) error {
	m.mu.RLock()
	s, ok := m.sinks[d.Destination.Kind]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no sink for kind %q", ErrInvalidDestination, d.Destination.Kind)
	}
	return s.Deliver(ctx, d)
}
