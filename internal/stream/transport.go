package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"NetPulse/internal/config"
	"NetPulse/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Transport is one live connection to the backend event stream. The
// connection manager is the only component that creates or destroys
// transports; everything else observes the manager's state.
type Transport interface {
	// Subscribe attaches fn to the named event. For a given event the
	// transport delivers payloads in the order the backend emits them.
	Subscribe(event string, fn func(data []byte)) (io.Closer, error)

	// Close tears the connection down. An explicit Close never fires the
	// drop callback.
	Close()
}

// Dialer opens an authenticated Transport. onDrop is invoked at most once,
// and only when the transport fails underneath rather than being closed
// deliberately. A handshake-time token rejection is reported by an error
// wrapping model.ErrAuthRejected.
type Dialer func(ctx context.Context, token string, onDrop func(cause error)) (Transport, error)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// natsTransport adapts a NATS connection to the Transport interface.
// Events are plain subjects under a fixed prefix, one subject per event.
type natsTransport struct {
	nc     *nats.Conn
	prefix string
	closed atomic.Bool
}

// NewNATSDialer returns the production dialer. Reconnection is handled by
// the manager, not by the NATS client, so drops surface immediately and
// the retry budget stays in one place; the client's own reconnect
// machinery is disabled.
func NewNATSDialer(cfg config.StreamConfig, logger *zap.Logger) Dialer {
	return func(ctx context.Context, token string, onDrop func(cause error)) (Transport, error) {
		t := &natsTransport{prefix: cfg.SubjectPrefix}

		nc, err := nats.Connect(cfg.URL,
			nats.Token(token),
			nats.NoReconnect(),
			nats.ClosedHandler(func(c *nats.Conn) {
				if t.closed.Load() {
					return
				}
				onDrop(c.LastError())
			}),
		)
		if err != nil {
			if errors.Is(err, nats.ErrAuthorization) {
				return nil, fmt.Errorf("%w: %v", model.ErrAuthRejected, err)
			}
			return nil, fmt.Errorf("failed to connect to event stream at %s: %w", cfg.URL, err)
		}

		t.nc = nc
		logger.Info("connected to event stream", zap.String("url", cfg.URL))
		return t, nil
	}
}

func (t *natsTransport) Subscribe(event string, fn func(data []byte)) (io.Closer, error) {
	sub, err := t.nc.Subscribe(t.prefix+"."+event, func(msg *nats.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %q: %w", event, err)
	}
	return closerFunc(sub.Unsubscribe), nil
}

func (t *natsTransport) Close() {
	t.closed.Store(true)
	if t.nc != nil {
		t.nc.Close()
	}
}
