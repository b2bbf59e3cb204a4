package state

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"NetPulse/internal/alert"
	"NetPulse/internal/config"
	"NetPulse/internal/dispatch"
	"NetPulse/internal/model"
	"NetPulse/internal/session"
	"NetPulse/internal/stream"
	"NetPulse/internal/timeseries"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type stubTransport struct{}

func (stubTransport) Subscribe(event string, fn func([]byte)) (io.Closer, error) {
	return nopCloser{}, nil
}

func (stubTransport) Close() {}

func newTestDashboard(t *testing.T) (*Dashboard, *dispatch.Dispatcher, *stream.Manager) {
	t.Helper()
	logger := zap.NewNop()

	store := session.NewStore(filepath.Join(t.TempDir(), "tokens.yaml"), logger)
	if err := store.Set("access", "refresh"); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}

	disp := dispatch.New(logger, nil)
	dialer := func(ctx context.Context, token string, onDrop func(error)) (stream.Transport, error) {
		return stubTransport{}, nil
	}
	manager, err := stream.NewManager(config.StreamConfig{ReconnectDelay: "10ms", ReconnectAttempts: 5},
		dialer, store, disp, logger, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	buffer := timeseries.NewBuffer(config.WindowConfig{MaxPoints: 60, NoiseThreshold: 100}, nil)
	coal, err := alert.NewCoalescer(config.AlertConfig{CheckInterval: "5s", Expiry: "30s"}, logger)
	if err != nil {
		t.Fatalf("NewCoalescer failed: %v", err)
	}

	health := config.HealthConfig{HighLoad: 5 * 1024 * 1024, Overload: 10 * 1024 * 1024}
	dash := NewDashboard(buffer, coal, manager, health, logger)
	if err := dash.Register(disp); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return dash, disp, manager
}

func TestDashboard_TrafficFlowsIntoOverview(t *testing.T) {
	dash, disp, _ := newTestDashboard(t)

	disp.Dispatch(model.EventTrafficData,
		[]byte(`{"rates":[{"interface":"eth0","bytes_sent_sec":2048,"bytes_recv_sec":1024}]}`))

	ov := dash.Overview()
	if ov.TotalSentSec != 2048 || ov.TotalRecvSec != 1024 {
		t.Errorf("expected totals 2048/1024, got %v/%v", ov.TotalSentSec, ov.TotalRecvSec)
	}
	if ov.Status != "Normal" {
		t.Errorf("expected Normal status for light traffic, got %s", ov.Status)
	}

	detailed, aggregate := dash.Traffic()
	if len(detailed) != 2 || len(aggregate) != 2 {
		t.Errorf("expected 2 detailed and 2 aggregate samples, got %d/%d", len(detailed), len(aggregate))
	}
}

func TestDashboard_AlertForcesOverload(t *testing.T) {
	dash, disp, _ := newTestDashboard(t)

	disp.Dispatch(model.EventTrafficData, []byte(`{"rates":[{"interface":"eth0","bytes_sent_sec":10,"bytes_recv_sec":10}]}`))
	disp.Dispatch(model.EventAlert, []byte(`{"message":"threshold breached","level":"error"}`))

	ov := dash.Overview()
	if ov.Status != "Overload" {
		t.Errorf("an active alert must force the worst tier, got %s", ov.Status)
	}
	if ov.Alert == nil || ov.Alert.Message != "threshold breached" {
		t.Errorf("overview should carry the held alert, got %+v", ov.Alert)
	}
}

func TestDashboard_HostStatusKeepsLatestPerClient(t *testing.T) {
	dash, disp, _ := newTestDashboard(t)

	disp.Dispatch(model.EventHostStatus, []byte(`{"client_id":"c1","client_name":"lab-1","type":"System Start","timestamp":100}`))
	disp.Dispatch(model.EventHostStatus, []byte(`{"client_id":"c1","client_name":"lab-1","type":"System Shut Down","timestamp":200}`))
	disp.Dispatch(model.EventHostStatus, []byte(`{"client_id":"c2","client_name":"lab-2","type":"IE Start","timestamp":150}`))

	hosts := dash.Hosts()
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}
	if hosts["c1"].Type != "System Shut Down" {
		t.Errorf("latest status must win, got %q", hosts["c1"].Type)
	}
}

func TestDashboard_PacketFeedIsBounded(t *testing.T) {
	dash, disp, _ := newTestDashboard(t)

	for i := 0; i < maxRecentPackets+50; i++ {
		disp.Dispatch(model.EventNewPacket, []byte(`{"summary":"TCP 10.0.0.1 -> 10.0.0.2"}`))
	}
	if got := len(dash.Packets()); got != maxRecentPackets {
		t.Errorf("expected packet feed capped at %d, got %d", maxRecentPackets, got)
	}
}

func TestDashboard_StateEndpointServesOverview(t *testing.T) {
	dash, disp, manager := newTestDashboard(t)
	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer manager.Disconnect()

	disp.Dispatch(model.EventSnifferError, []byte(`{"error":"pcap handle lost"}`))

	server := httptest.NewServer(NewRouter(dash, prometheus.NewRegistry(), zap.NewNop()))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/state")
	if err != nil {
		t.Fatalf("GET /api/v1/state failed: %v", err)
	}
	defer resp.Body.Close()

	var ov Overview
	if err := json.NewDecoder(resp.Body).Decode(&ov); err != nil {
		t.Fatalf("failed to decode overview: %v", err)
	}
	if !ov.Connected {
		t.Error("overview should report the live connection")
	}
	if ov.SnifferError != "pcap handle lost" {
		t.Errorf("sniffer error must be surfaced as-is, got %q", ov.SnifferError)
	}
}
