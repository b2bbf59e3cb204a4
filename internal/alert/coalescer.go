// Package alert coalesces backend alerts into a single "most recent
// unacknowledged" slot with time-based auto-clear, and derives the
// three-tier load status the dashboard displays.
package alert

import (
	"fmt"
	"sync"
	"time"

	"NetPulse/internal/config"
	"NetPulse/internal/model"

	"go.uber.org/zap"
)

// Status is the derived system load tier.
type Status int

const (
	StatusNormal Status = iota
	StatusHighLoad
	StatusOverload
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "Normal"
	case StatusHighLoad:
		return "High Load"
	case StatusOverload:
		return "Overload"
	default:
		return "unknown"
	}
}

// Coalescer holds at most one alert notice, last-write-wins. A periodic
// check discards the notice once it has been held longer than the expiry.
type Coalescer struct {
	mu     sync.RWMutex
	notice *model.AlertNotice

	checkInterval time.Duration
	expiry        time.Duration
	clock         func() time.Time

	done   chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewCoalescer creates a coalescer in the Idle state.
func NewCoalescer(cfg config.AlertConfig, logger *zap.Logger) (*Coalescer, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid alert check_interval: %w", err)
	}
	expiry, err := time.ParseDuration(cfg.Expiry)
	if err != nil {
		return nil, fmt.Errorf("invalid alert expiry: %w", err)
	}

	return &Coalescer{
		checkInterval: interval,
		expiry:        expiry,
		clock:         time.Now,
		done:          make(chan struct{}),
		logger:        logger,
	}, nil
}

// Start begins the periodic auto-clear check.
func (c *Coalescer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.done:
				return
			}
		}
	}()
}

// Stop halts the auto-clear loop.
func (c *Coalescer) Stop() {
	close(c.done)
	c.wg.Wait()
}

// OnAlert replaces any held notice with the new one and resets the
// auto-clear clock. There is no queue; superseded notices are discarded.
func (c *Coalescer) OnAlert(message string, level model.AlertLevel) {
	notice := &model.AlertNotice{
		Message:   message,
		Level:     level,
		Timestamp: c.clock(),
	}
	c.mu.Lock()
	c.notice = notice
	c.mu.Unlock()
	c.logger.Info("alert received", zap.String("level", string(level)), zap.String("message", message))
}

// Current returns a copy of the held notice, nil when idle.
func (c *Coalescer) Current() *model.AlertNotice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.notice == nil {
		return nil
	}
	n := *c.notice
	return &n
}

// Active reports whether an alert is currently held.
func (c *Coalescer) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notice != nil
}

// sweep clears the notice once its age exceeds the expiry.
func (c *Coalescer) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice != nil && c.clock().Sub(c.notice.Timestamp) > c.expiry {
		c.logger.Info("alert expired", zap.String("message", c.notice.Message))
		c.notice = nil
	}
}

// HealthFor maps the aggregate sent+received rate to a load tier. An
// active alert overrides the heuristic and forces the worst tier
// regardless of current traffic volume.
func HealthFor(totalBytesPerSec float64, alertActive bool, cfg config.HealthConfig) Status {
	if alertActive {
		return StatusOverload
	}
	switch {
	case totalBytesPerSec > cfg.Overload:
		return StatusOverload
	case totalBytesPerSec > cfg.HighLoad:
		return StatusHighLoad
	default:
		return StatusNormal
	}
}
