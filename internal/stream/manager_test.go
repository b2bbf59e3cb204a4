package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"NetPulse/internal/config"
	"NetPulse/internal/dispatch"
	"NetPulse/internal/model"
	"NetPulse/internal/session"

	"go.uber.org/zap"
)

// fakeTransport records subscriptions and lets tests simulate a
// transport-level drop.
type fakeTransport struct {
	mu     sync.Mutex
	subs   map[string]func([]byte)
	onDrop func(error)
	closed bool
}

func newFakeTransport(onDrop func(error)) *fakeTransport {
	return &fakeTransport{subs: make(map[string]func([]byte)), onDrop: onDrop}
}

func (f *fakeTransport) Subscribe(event string, fn func(data []byte)) (io.Closer, error) {
	f.mu.Lock()
	f.subs[event] = fn
	f.mu.Unlock()
	return closerFunc(func() error {
		f.mu.Lock()
		delete(f.subs, event)
		f.mu.Unlock()
		return nil
	}), nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// emit pushes a raw payload through the transport as the backend would.
func (f *fakeTransport) emit(event string, data []byte) {
	f.mu.Lock()
	fn := f.subs[event]
	f.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// drop simulates the connection failing underneath.
func (f *fakeTransport) drop() {
	f.onDrop(errors.New("link down"))
}

// scriptedDialer fails dials while broken is set and counts every attempt.
type scriptedDialer struct {
	mu       sync.Mutex
	dials    atomic.Int64
	broken   bool
	authFail bool
	current  *fakeTransport
}

func (s *scriptedDialer) dial(ctx context.Context, token string, onDrop func(error)) (Transport, error) {
	s.dials.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authFail {
		return nil, fmt.Errorf("%w: handshake says no", model.ErrAuthRejected)
	}
	if s.broken {
		return nil, errors.New("connection refused")
	}
	s.current = newFakeTransport(onDrop)
	return s.current, nil
}

func (s *scriptedDialer) setBroken(broken bool) {
	s.mu.Lock()
	s.broken = broken
	s.mu.Unlock()
}

func (s *scriptedDialer) transport() *fakeTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func newTestManager(t *testing.T, dialer *scriptedDialer, withToken bool) (*Manager, *dispatch.Dispatcher) {
	t.Helper()
	store := session.NewStore(filepath.Join(t.TempDir(), "tokens.yaml"), zap.NewNop())
	if withToken {
		if err := store.Set("access", "refresh"); err != nil {
			t.Fatalf("failed to seed session: %v", err)
		}
	}
	disp := dispatch.New(zap.NewNop(), nil)
	cfg := config.StreamConfig{ReconnectDelay: "10ms", ReconnectAttempts: 5}
	m, err := NewManager(cfg, dialer.dial, store, disp, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, disp
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestManager_ConnectIsIdempotent(t *testing.T) {
	dialer := &scriptedDialer{}
	m, _ := newTestManager(t, dialer, true)
	defer m.Disconnect()

	// 1. First connect dials once and yields a handle
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	handle := m.Handle()
	if handle == "" {
		t.Fatal("expected a live connection handle")
	}

	// 2. Repeated connects are no-ops: same handle, no extra dial
	for i := 0; i < 3; i++ {
		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("repeat connect failed: %v", err)
		}
	}
	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("expected 1 dial, got %d", got)
	}
	if m.Handle() != handle {
		t.Error("handle must not change across idempotent connects")
	}
}

func TestManager_ConnectWithoutTokenFails(t *testing.T) {
	dialer := &scriptedDialer{}
	m, _ := newTestManager(t, dialer, false)

	err := m.Connect(context.Background())
	if !errors.Is(err, model.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got: %v", err)
	}
	if got := dialer.dials.Load(); got != 0 {
		t.Errorf("no connection may be attempted without a token, dials=%d", got)
	}
	if m.State() != Disconnected {
		t.Errorf("state should stay Disconnected, got %s", m.State())
	}
}

func TestManager_AuthRejectionSkipsReconnectLoop(t *testing.T) {
	dialer := &scriptedDialer{authFail: true}
	m, _ := newTestManager(t, dialer, true)

	err := m.Connect(context.Background())
	if !errors.Is(err, model.ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got: %v", err)
	}
	if m.State() != Disconnected {
		t.Errorf("auth rejection must settle at Disconnected, got %s", m.State())
	}

	// Give a would-be reconnect loop time to betray itself.
	time.Sleep(50 * time.Millisecond)
	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("auth rejection must not enter the reconnect loop, dials=%d", got)
	}
}

func TestManager_BoundedReconnectAttempts(t *testing.T) {
	dialer := &scriptedDialer{}
	m, _ := newTestManager(t, dialer, true)

	var degraded atomic.Bool
	m.OnDegraded(func() { degraded.Store(true) })

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	// 1. Break the network for good, then drop the transport
	dialer.setBroken(true)
	dialer.transport().drop()

	// 2. Exactly 5 reconnect attempts follow before the manager gives up
	waitFor(t, 2*time.Second, func() bool { return m.State() == Disconnected },
		"manager never settled at Disconnected")
	if got := dialer.dials.Load(); got != 1+5 {
		t.Errorf("expected 1 connect + 5 reconnect dials, got %d", got)
	}
	if !degraded.Load() {
		t.Error("degraded signal should fire after exhausting reconnects")
	}
	if m.Handle() != "" {
		t.Error("no handle may survive an exhausted reconnect cycle")
	}
}

func TestManager_ReconnectRestoresEventFlow(t *testing.T) {
	dialer := &scriptedDialer{}
	m, disp := newTestManager(t, dialer, true)
	defer m.Disconnect()

	var delivered atomic.Int64
	if _, err := disp.Subscribe(model.EventTrafficData, func(model.Event) { delivered.Add(1) }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	handle := m.Handle()

	// 1. Drop the transport; the dialer still works, so one retry suffices
	dialer.transport().drop()
	waitFor(t, 2*time.Second, func() bool { return m.State() == Connected },
		"manager never reconnected")
	if m.Handle() != handle {
		t.Error("automatic reconnect must keep the same handle")
	}

	// 2. A sample arriving on the fresh transport is processed exactly once
	dialer.transport().emit(model.EventTrafficData,
		[]byte(`{"rates":[{"interface":"eth0","bytes_sent_sec":2048,"bytes_recv_sec":1024}]}`))
	if got := delivered.Load(); got != 1 {
		t.Errorf("expected exactly 1 delivery after reconnect, got %d", got)
	}
}

func TestManager_DisconnectCancelsReconnectAndDetachesHandlers(t *testing.T) {
	dialer := &scriptedDialer{}
	m, disp := newTestManager(t, dialer, true)

	var delivered atomic.Int64
	if _, err := disp.Subscribe(model.EventAlert, func(model.Event) { delivered.Add(1) }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	// 1. Enter the reconnect loop, then disconnect mid-wait
	dialer.setBroken(true)
	dialer.transport().drop()
	waitFor(t, time.Second, func() bool { return m.State() == ReconnectWait || m.State() == Disconnected },
		"drop was not observed")
	m.Disconnect()

	if m.State() != Disconnected {
		t.Errorf("expected Disconnected after explicit disconnect, got %s", m.State())
	}
	dialsAtDisconnect := dialer.dials.Load()
	time.Sleep(50 * time.Millisecond)
	if got := dialer.dials.Load(); got != dialsAtDisconnect {
		t.Errorf("reconnect attempts must stop after Disconnect, %d -> %d", dialsAtDisconnect, got)
	}

	// 2. Handlers are torn down with the connection
	disp.Dispatch(model.EventAlert, []byte(`{"message":"late","level":"info"}`))
	if got := delivered.Load(); got != 0 {
		t.Errorf("no handler may outlive its connection, delivered=%d", got)
	}

	// 3. Disconnecting again is a no-op
	m.Disconnect()
}
