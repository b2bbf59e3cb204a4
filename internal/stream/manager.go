// Package stream owns the lifecycle of the single live event-stream
// connection per session: connect, authenticate, bounded reconnect,
// disconnect, listener cleanup.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"NetPulse/internal/config"
	"NetPulse/internal/dispatch"
	"NetPulse/internal/metrics"
	"NetPulse/internal/model"
	"NetPulse/internal/session"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnState is the connection lifecycle state consumers observe.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	ReconnectWait
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ReconnectWait:
		return "reconnect_wait"
	default:
		return "unknown"
	}
}

// Manager maintains at most one live transport per session. A transport
// drop (not an explicit Disconnect) triggers a bounded fixed-delay
// reconnect loop; a handshake-time auth rejection never enters that loop,
// since retrying would repeat the same failure.
type Manager struct {
	dial    Dialer
	store   *session.Store
	disp    *dispatch.Dispatcher
	logger  *zap.Logger
	metrics *metrics.Metrics

	reconnectDelay    time.Duration
	reconnectAttempts uint

	// Callbacks are invoked from the manager's own goroutines and must
	// not call back into the manager.
	onStateChange func(ConnState)
	onDegraded    func()

	state atomic.Int32

	mu              sync.Mutex
	handle          string
	transport       Transport
	subs            []io.Closer
	reconnectCancel context.CancelFunc
	wg              sync.WaitGroup
}

// NewManager creates a connection manager. It does not connect.
func NewManager(cfg config.StreamConfig, dial Dialer, store *session.Store, disp *dispatch.Dispatcher, logger *zap.Logger, m *metrics.Metrics) (*Manager, error) {
	delay, err := time.ParseDuration(cfg.ReconnectDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid reconnect_delay: %w", err)
	}
	if cfg.ReconnectAttempts == 0 {
		return nil, fmt.Errorf("reconnect_attempts must be positive")
	}

	return &Manager{
		dial:              dial,
		store:             store,
		disp:              disp,
		logger:            logger,
		metrics:           m,
		reconnectDelay:    delay,
		reconnectAttempts: cfg.ReconnectAttempts,
	}, nil
}

// OnStateChange registers a state transition callback. Set before Connect.
func (m *Manager) OnStateChange(fn func(ConnState)) { m.onStateChange = fn }

// OnDegraded registers the connectivity-degraded callback fired when the
// reconnect loop exhausts its attempts. Non-fatal. Set before Connect.
func (m *Manager) OnDegraded(fn func()) { m.onDegraded = fn }

// State returns the current connection state.
func (m *Manager) State() ConnState {
	return ConnState(m.state.Load())
}

// Connected is the derived boolean the UI indicator reads.
func (m *Manager) Connected() bool {
	return m.State() == Connected
}

// Handle returns the identifier of the live connection, empty when none.
func (m *Manager) Handle() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Connect establishes the stream connection. Calling it while already
// connected is a no-op. A stale handle from an earlier failure is fully
// torn down before a new one is created, so at most one transport is ever
// live. Without an access token the call fails with model.ErrAuthRequired
// and nothing is attempted.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.State() == Connected && m.transport != nil {
		m.mu.Unlock()
		m.logger.Debug("stream already connected")
		return nil
	}

	token := m.store.Access()
	if token == "" {
		m.mu.Unlock()
		return model.ErrAuthRequired
	}

	m.teardownLocked()
	m.setState(Connecting)
	handle := uuid.NewString()
	m.handle = handle
	m.mu.Unlock()

	t, err := m.dial(ctx, token, func(cause error) { m.handleDrop(handle, cause) })
	if err != nil {
		m.mu.Lock()
		if m.handle == handle {
			m.handle = ""
		}
		m.setState(Disconnected)
		m.mu.Unlock()
		if errors.Is(err, model.ErrAuthRejected) {
			m.logger.Warn("stream handshake rejected token", zap.Error(err))
			return err
		}
		return fmt.Errorf("stream connect failed: %w", err)
	}

	m.mu.Lock()
	if m.handle != handle {
		// Disconnect raced the handshake; the new transport loses.
		m.mu.Unlock()
		t.Close()
		return fmt.Errorf("connection torn down during handshake")
	}
	if err := m.attachLocked(t); err != nil {
		m.handle = ""
		m.setState(Disconnected)
		m.mu.Unlock()
		t.Close()
		return err
	}
	m.transport = t
	m.setState(Connected)
	m.mu.Unlock()

	m.logger.Info("stream connected", zap.String("handle", handle))
	return nil
}

// Disconnect detaches every subscription, closes the transport and settles
// the state at Disconnected. Pending reconnect attempts are cancelled.
// Safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.reconnectCancel != nil {
		m.reconnectCancel()
		m.reconnectCancel = nil
	}
	m.teardownLocked()
	m.handle = ""
	m.setState(Disconnected)
	m.mu.Unlock()

	m.disp.Teardown()
	m.wg.Wait()
	m.logger.Info("stream disconnected")
}

// attachLocked funnels every known event from the transport into the
// dispatcher. Called with m.mu held.
func (m *Manager) attachLocked(t Transport) error {
	var subs []io.Closer
	for _, name := range model.EventNames {
		name := name
		sub, err := t.Subscribe(name, func(data []byte) {
			m.disp.Dispatch(name, data)
		})
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return fmt.Errorf("failed to attach event %q: %w", name, err)
		}
		subs = append(subs, sub)
	}
	m.subs = subs
	return nil
}

// teardownLocked closes subscriptions and any live transport. Called with
// m.mu held.
func (m *Manager) teardownLocked() {
	for _, s := range m.subs {
		s.Close()
	}
	m.subs = nil
	if m.transport != nil {
		m.transport.Close()
		m.transport = nil
	}
}

// handleDrop reacts to a transport-level disconnect. Drops reported by a
// transport that is no longer current are ignored.
func (m *Manager) handleDrop(handle string, cause error) {
	m.mu.Lock()
	if m.handle != handle {
		m.mu.Unlock()
		return
	}
	for _, s := range m.subs {
		s.Close()
	}
	m.subs = nil
	m.transport = nil
	m.setState(ReconnectWait)

	ctx, cancel := context.WithCancel(context.Background())
	m.reconnectCancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Warn("stream connection lost, entering reconnect", zap.String("handle", handle), zap.NamedError("cause", cause))
	go m.reconnect(ctx, handle)
}

// reconnect re-dials with a fixed delay for a bounded number of attempts.
// Success restores Connected with all event routing re-attached under the
// same handle; exhaustion settles at Disconnected and signals degraded
// connectivity to consumers.
func (m *Manager) reconnect(ctx context.Context, handle string) {
	defer m.wg.Done()

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(m.reconnectAttempts),
		retry.Delay(m.reconnectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	err := r.Do(func() error {
		token := m.store.Access()
		if token == "" {
			return retry.Unrecoverable(model.ErrAuthRequired)
		}

		t, dialErr := m.dial(ctx, token, func(cause error) { m.handleDrop(handle, cause) })
		if dialErr != nil {
			if errors.Is(dialErr, model.ErrAuthRejected) {
				return retry.Unrecoverable(dialErr)
			}
			return dialErr
		}

		m.mu.Lock()
		if m.handle != handle {
			m.mu.Unlock()
			t.Close()
			return retry.Unrecoverable(context.Canceled)
		}
		if attachErr := m.attachLocked(t); attachErr != nil {
			m.mu.Unlock()
			t.Close()
			return attachErr
		}
		m.transport = t
		m.setState(Connected)
		m.mu.Unlock()
		return nil
	})

	if err == nil {
		if m.metrics != nil {
			m.metrics.Reconnects.Inc()
		}
		m.logger.Info("stream reconnected", zap.String("handle", handle))
		return
	}

	m.mu.Lock()
	settled := m.handle == handle
	if settled {
		m.handle = ""
		m.setState(Disconnected)
	}
	m.mu.Unlock()

	if !settled || errors.Is(err, context.Canceled) {
		return
	}

	if m.metrics != nil {
		m.metrics.ReconnectFailures.Inc()
	}
	m.logger.Warn("reconnect attempts exhausted, realtime feed degraded", zap.Error(err))
	if m.onDegraded != nil {
		m.onDegraded()
	}
}

func (m *Manager) setState(s ConnState) {
	prev := ConnState(m.state.Swap(int32(s)))
	if m.metrics != nil {
		m.metrics.ConnectionState.Set(float64(s))
	}
	if prev != s && m.onStateChange != nil {
		m.onStateChange(s)
	}
}
