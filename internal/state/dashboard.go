// Package state aggregates everything the presentation layer reads:
// connection status, sliding-window traffic, protocol distribution, the
// live packet feed, host statuses and the current alert/load tier. It is
// a read-only consumer of the synchronization core.
package state

import (
	"sync"
	"time"

	"NetPulse/internal/alert"
	"NetPulse/internal/config"
	"NetPulse/internal/dispatch"
	"NetPulse/internal/model"
	"NetPulse/internal/stream"
	"NetPulse/internal/timeseries"

	"go.uber.org/zap"
)

// maxRecentPackets bounds the live packet feed.
const maxRecentPackets = 100

// Dashboard is the in-memory view of the realtime feed.
type Dashboard struct {
	buffer  *timeseries.Buffer
	coal    *alert.Coalescer
	manager *stream.Manager
	health  config.HealthConfig
	logger  *zap.Logger

	mu           sync.RWMutex
	totalSent    float64
	totalRecv    float64
	protocols    model.ProtocolCounts
	packets      []string
	hosts        map[string]model.HostStatus
	snifferError string
	degraded     bool
}

// NewDashboard creates an empty dashboard view.
func NewDashboard(buffer *timeseries.Buffer, coal *alert.Coalescer, manager *stream.Manager, health config.HealthConfig, logger *zap.Logger) *Dashboard {
	return &Dashboard{
		buffer:  buffer,
		coal:    coal,
		manager: manager,
		health:  health,
		logger:  logger,
		hosts:   make(map[string]model.HostStatus),
	}
}

// Register attaches the dashboard's handlers for every inbound event.
// Re-registering after a reconnect is safe: the dispatcher replaces the
// previous handler instead of stacking a duplicate.
func (d *Dashboard) Register(disp *dispatch.Dispatcher) error {
	handlers := map[string]dispatch.Handler{
		model.EventTrafficData:    d.onTrafficData,
		model.EventProtocolCounts: d.onProtocolCounts,
		model.EventNewPacket:      d.onNewPacket,
		model.EventSnifferError:   d.onSnifferError,
		model.EventHostStatus:     d.onHostStatus,
		model.EventAlert:          d.onAlert,
	}
	for name, h := range handlers {
		if _, err := disp.Subscribe(name, h); err != nil {
			return err
		}
	}
	return nil
}

// SetDegraded records that the reconnect loop gave up. The flag resets on
// the next successful traffic tick.
func (d *Dashboard) SetDegraded() {
	d.mu.Lock()
	d.degraded = true
	d.mu.Unlock()
}

func (d *Dashboard) onTrafficData(ev model.Event) {
	data, ok := ev.(model.TrafficDataEvent)
	if !ok {
		return
	}
	sent, recv := d.buffer.AppendRates(data.Rates, time.Now())
	d.mu.Lock()
	d.totalSent = sent
	d.totalRecv = recv
	d.degraded = false
	d.mu.Unlock()
}

func (d *Dashboard) onProtocolCounts(ev model.Event) {
	data, ok := ev.(model.ProtocolCountsEvent)
	if !ok {
		return
	}
	d.mu.Lock()
	d.protocols = data.ProtocolCounts
	d.mu.Unlock()
}

func (d *Dashboard) onNewPacket(ev model.Event) {
	data, ok := ev.(model.NewPacketEvent)
	if !ok {
		return
	}
	d.mu.Lock()
	d.packets = append(d.packets, data.Summary)
	if len(d.packets) > maxRecentPackets {
		d.packets = append([]string(nil), d.packets[len(d.packets)-maxRecentPackets:]...)
	}
	d.mu.Unlock()
}

func (d *Dashboard) onSnifferError(ev model.Event) {
	data, ok := ev.(model.SnifferErrorEvent)
	if !ok {
		return
	}
	// Backend-reported sniffer failures are surfaced as-is, not retried.
	d.mu.Lock()
	d.snifferError = data.Error
	d.mu.Unlock()
	d.logger.Warn("sniffer reported an error", zap.String("error", data.Error))
}

func (d *Dashboard) onHostStatus(ev model.Event) {
	data, ok := ev.(model.HostStatusEvent)
	if !ok {
		return
	}
	d.mu.Lock()
	d.hosts[data.ClientID] = data.HostStatus
	d.mu.Unlock()
}

func (d *Dashboard) onAlert(ev model.Event) {
	data, ok := ev.(model.AlertEvent)
	if !ok {
		return
	}
	d.coal.OnAlert(data.Message, data.Level)
}

// Overview is the headline view served at /api/v1/state.
type Overview struct {
	Connected    bool               `json:"connected"`
	State        string             `json:"state"`
	Degraded     bool               `json:"degraded"`
	Status       string             `json:"status"`
	TotalSentSec float64            `json:"total_sent_sec"`
	TotalRecvSec float64            `json:"total_recv_sec"`
	Alert        *model.AlertNotice `json:"alert,omitempty"`
	SnifferError string             `json:"sniffer_error,omitempty"`
}

// Overview assembles the current headline state.
func (d *Dashboard) Overview() Overview {
	d.mu.RLock()
	sent, recv := d.totalSent, d.totalRecv
	degraded := d.degraded
	snifferErr := d.snifferError
	d.mu.RUnlock()

	active := d.coal.Active()
	return Overview{
		Connected:    d.manager.Connected(),
		State:        d.manager.State().String(),
		Degraded:     degraded,
		Status:       alert.HealthFor(sent+recv, active, d.health).String(),
		TotalSentSec: sent,
		TotalRecvSec: recv,
		Alert:        d.coal.Current(),
		SnifferError: snifferErr,
	}
}

// HealthView reports the load tier and what produced it.
type HealthView struct {
	Status       string             `json:"status"`
	TotalRateSec float64            `json:"total_rate_sec"`
	Alert        *model.AlertNotice `json:"alert,omitempty"`
}

// Health computes the current load tier from the latest totals.
func (d *Dashboard) Health() HealthView {
	d.mu.RLock()
	total := d.totalSent + d.totalRecv
	d.mu.RUnlock()

	return HealthView{
		Status:       alert.HealthFor(total, d.coal.Active(), d.health).String(),
		TotalRateSec: total,
		Alert:        d.coal.Current(),
	}
}

// Protocols returns the latest protocol distribution.
func (d *Dashboard) Protocols() model.ProtocolCounts {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.protocols
}

// Packets returns a copy of the recent packet summaries, oldest first.
func (d *Dashboard) Packets() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.packets...)
}

// Hosts returns a copy of the latest status per monitored host.
func (d *Dashboard) Hosts() map[string]model.HostStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]model.HostStatus, len(d.hosts))
	for k, v := range d.hosts {
		out[k] = v
	}
	return out
}

// Traffic returns copies of both sliding windows.
func (d *Dashboard) Traffic() (detailed, aggregate []model.TrafficSample) {
	return d.buffer.Detailed(), d.buffer.Aggregate()
}
