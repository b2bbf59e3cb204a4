// Package timeseries keeps bounded sliding windows over incoming traffic
// samples. Window size is a function of the point cap and the current
// active-category count only, never of stream uptime.
package timeseries

import (
	"sync"
	"time"

	"NetPulse/internal/config"
	"NetPulse/internal/metrics"
	"NetPulse/internal/model"
)

// Categories of the aggregated window.
const (
	TotalSent     = "Total Sent"
	TotalReceived = "Total Received"
)

// Buffer holds two independent windows: a per-interface "detailed" window
// and a single aggregated total sent/received window. Both evict oldest
// points first.
type Buffer struct {
	mu        sync.RWMutex
	maxPoints int
	noise     float64
	detailed  []model.TrafficSample
	aggregate []model.TrafficSample
	metrics   *metrics.Metrics
}

// NewBuffer creates an empty buffer sized by cfg.
func NewBuffer(cfg config.WindowConfig, m *metrics.Metrics) *Buffer {
	return &Buffer{
		maxPoints: cfg.MaxPoints,
		noise:     cfg.NoiseThreshold,
		metrics:   m,
	}
}

// AppendRates ingests one traffic_data tick. Interfaces whose rate clears
// the noise threshold contribute a sent/received sample pair to the
// detailed window; the totals summed across every reported interface are
// appended to the aggregate window. Returns the totals so the caller can
// derive the load tier without re-reducing.
//
// The detailed window is truncated to maxPoints x activeCategories x 2,
// sized by the current active count: when the active set shrinks, the
// window shrinks with it on the next append. Ticks with no active
// interfaces leave the detailed window untouched, so an idle lull does not
// wipe history. Stale categories age out as newer samples displace them.
func (b *Buffer) AppendRates(rates []model.TrafficRate, now time.Time) (totalSent, totalRecv float64) {
	ts := now.Format("15:04:05")

	var active []model.TrafficRate
	for _, r := range rates {
		totalSent += r.BytesSentSec
		totalRecv += r.BytesRecvSec
		if r.BytesSentSec > b.noise || r.BytesRecvSec > b.noise {
			active = append(active, r)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(active) > 0 {
		for _, r := range active {
			b.detailed = append(b.detailed,
				model.TrafficSample{Category: r.Interface + " - Sent", Value: r.BytesSentSec, Timestamp: ts},
				model.TrafficSample{Category: r.Interface + " - Received", Value: r.BytesRecvSec, Timestamp: ts},
			)
		}
		b.detailed = truncate(b.detailed, b.maxPoints*len(active)*2)
	}

	b.aggregate = append(b.aggregate,
		model.TrafficSample{Category: TotalSent, Value: totalSent, Timestamp: ts},
		model.TrafficSample{Category: TotalReceived, Value: totalRecv, Timestamp: ts},
	)
	b.aggregate = truncate(b.aggregate, b.maxPoints*2)

	if b.metrics != nil {
		b.metrics.WindowSize.WithLabelValues("detailed").Set(float64(len(b.detailed)))
		b.metrics.WindowSize.WithLabelValues("aggregate").Set(float64(len(b.aggregate)))
	}
	return totalSent, totalRecv
}

// Detailed returns a copy of the per-interface window.
func (b *Buffer) Detailed() []model.TrafficSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.TrafficSample(nil), b.detailed...)
}

// Aggregate returns a copy of the total sent/received window.
func (b *Buffer) Aggregate() []model.TrafficSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.TrafficSample(nil), b.aggregate...)
}

// truncate drops the oldest samples beyond limit. The survivors are
// copied into a fresh slice so the evicted backing array does not linger.
func truncate(window []model.TrafficSample, limit int) []model.TrafficSample {
	if over := len(window) - limit; over > 0 {
		return append([]model.TrafficSample(nil), window[over:]...)
	}
	return window
}
