// Package dispatch routes decoded stream events to at most one handler
// per event name. The one-handler invariant is what keeps traffic samples
// from being double-counted when a consumer re-subscribes across
// reconnects.
package dispatch

import (
	"fmt"
	"sync"

	"NetPulse/internal/metrics"
	"NetPulse/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler processes one decoded event. Handlers for a given event name
// are invoked in the order the transport emits events.
type Handler func(model.Event)

type registration struct {
	id      string
	handler Handler
}

// Dispatcher is the per-connection handler registry.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]*registration

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates an empty dispatcher.
func New(logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]*registration),
		logger:   logger,
		metrics:  m,
	}
}

// Subscription is the handle returned by Subscribe. Closing it is the only
// way to detach the handler, which guarantees cleanup on every exit path.
type Subscription struct {
	d    *Dispatcher
	name string
	id   string
}

// Close detaches the subscription's handler. Idempotent; closing a
// subscription that was already replaced or torn down is a no-op.
func (s *Subscription) Close() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if reg, ok := s.d.handlers[s.name]; ok && reg.id == s.id {
		delete(s.d.handlers, s.name)
	}
	return nil
}

// Subscribe attaches handler to the named event, detaching any handler
// already registered for that name first. Subscribing twice without an
// intervening unsubscribe therefore leaves exactly one active handler.
// Unknown event names are rejected.
func (d *Dispatcher) Subscribe(name string, handler Handler) (*Subscription, error) {
	if !knownEvent(name) {
		return nil, fmt.Errorf("unknown event name %q", name)
	}
	if handler == nil {
		return nil, fmt.Errorf("nil handler for event %q", name)
	}

	reg := &registration{id: uuid.NewString(), handler: handler}

	d.mu.Lock()
	if _, ok := d.handlers[name]; ok {
		d.logger.Debug("replacing existing handler", zap.String("event", name))
	}
	d.handlers[name] = reg
	d.mu.Unlock()

	return &Subscription{d: d, name: name, id: reg.id}, nil
}

// Unsubscribe detaches whatever handler is registered for the named event.
// Removing a non-existent subscription is not an error.
func (d *Dispatcher) Unsubscribe(name string) {
	d.mu.Lock()
	delete(d.handlers, name)
	d.mu.Unlock()
}

// Teardown removes every registration. The connection manager calls this
// on explicit disconnect so no handler outlives its connection.
func (d *Dispatcher) Teardown() {
	d.mu.Lock()
	d.handlers = make(map[string]*registration)
	d.mu.Unlock()
}

// Dispatch decodes the raw payload for the named event and hands it to the
// registered handler, if any. Malformed payloads are counted and dropped;
// they must never crash the consumers downstream.
func (d *Dispatcher) Dispatch(name string, data []byte) {
	// Count every inbound event, handled or not.
	if d.metrics != nil {
		d.metrics.EventsReceived.WithLabelValues(name).Inc()
	}

	d.mu.RLock()
	reg, ok := d.handlers[name]
	d.mu.RUnlock()
	if !ok {
		return
	}

	ev, err := model.DecodeEvent(name, data)
	if err != nil {
		if d.metrics != nil {
			d.metrics.MalformedPayloads.Inc()
		}
		d.logger.Debug("dropping malformed event", zap.String("event", name), zap.Error(err))
		return
	}

	reg.handler(ev)
}

func knownEvent(name string) bool {
	for _, n := range model.EventNames {
		if n == name {
			return true
		}
	}
	return false
}
