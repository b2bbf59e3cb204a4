// Package api wraps the telemetry backend's REST surface. All calls go
// through an authenticating transport that attaches the bearer token and
// replays a rejected request exactly once after refreshing it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"NetPulse/internal/config"
	"NetPulse/internal/metrics"
	"NetPulse/internal/model"
	"NetPulse/internal/session"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Client is the REST client for the telemetry backend. Auth endpoints
// mutate the session store; everything else is pass-through for the
// presentation layer.
type Client struct {
	baseURL string
	http    *http.Client
	store   *session.Store
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a backend client. onExpired is invoked once whenever a
// terminal refresh failure clears the session.
func NewClient(cfg config.BackendConfig, store *session.Store, logger *zap.Logger, m *metrics.Metrics, onExpired func()) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", cfg.BaseURL)
	}
	timeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid request_timeout: %w", err)
	}

	transport := newAuthTransport(nil, store, base.JoinPath("/api/auth/refresh").String(), onExpired, logger, m)

	// Read paths share one breaker so a dead backend fails fast instead of
	// stacking up timeouts.
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "netpulse-backend",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		baseURL: base.String(),
		http:    &http.Client{Transport: transport, Timeout: timeout},
		store:   store,
		logger:  logger,
		breaker: cb,
	}, nil
}

// Login authenticates against the backend and stores the issued token pair.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	payload := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", payload, &resp); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return fmt.Errorf("login response missing tokens")
	}
	if err := c.store.Set(resp.AccessToken, resp.RefreshToken); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	c.logger.Info("logged in", zap.String("username", username))
	return nil
}

// Register creates a new backend account. It does not sign in.
func (c *Client) Register(ctx context.Context, username, password string) error {
	payload := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", payload, nil); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	return nil
}

// Logout tells the backend to drop the session and destroys local tokens.
// The local session is cleared even when the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.store.Clear()
	if err != nil {
		return fmt.Errorf("logout call failed: %w", err)
	}
	return nil
}

// Devices lists the network interfaces visible to the backend probe.
func (c *Client) Devices(ctx context.Context) ([]model.Device, error) {
	var out []model.Device
	if err := c.read(ctx, "/api/devices", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clients lists the monitored hosts configured on the backend.
func (c *Client) Clients(ctx context.Context) ([]model.Client, error) {
	var out []model.Client
	if err := c.read(ctx, "/api/clients", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Thresholds lists the backend's alerting rules.
func (c *Client) Thresholds(ctx context.Context) ([]model.ThresholdRule, error) {
	var out []model.ThresholdRule
	if err := c.read(ctx, "/api/thresholds", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateThreshold adds an alerting rule and returns it with its assigned ID.
func (c *Client) CreateThreshold(ctx context.Context, rule model.ThresholdRule) (model.ThresholdRule, error) {
	var out model.ThresholdRule
	if err := c.do(ctx, http.MethodPost, "/api/thresholds", rule, &out); err != nil {
		return model.ThresholdRule{}, err
	}
	return out, nil
}

// UpdateThreshold replaces an existing alerting rule.
func (c *Client) UpdateThreshold(ctx context.Context, rule model.ThresholdRule) error {
	path := "/api/thresholds/" + strconv.FormatInt(rule.ID, 10)
	return c.do(ctx, http.MethodPut, path, rule, nil)
}

// DeleteThreshold removes an alerting rule.
func (c *Client) DeleteThreshold(ctx context.Context, id int64) error {
	path := "/api/thresholds/" + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Alerts returns the backend's stored alert history.
func (c *Client) Alerts(ctx context.Context) ([]model.AlertNotice, error) {
	var out []model.AlertNotice
	if err := c.read(ctx, "/api/alerts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TrafficHistory queries the backend's durable traffic history. iface may
// be empty to fetch all interfaces; limit <= 0 leaves paging to the server.
func (c *Client) TrafficHistory(ctx context.Context, iface string, limit int) ([]model.HistoryEntry, error) {
	q := url.Values{}
	if iface != "" {
		q.Set("interface", iface)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/history/traffic"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []model.HistoryEntry
	if err := c.read(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// read issues a breaker-guarded GET.
func (c *Client) read(ctx context.Context, path string, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, http.MethodGet, path, nil, out)
	})
	return err
}

// do issues one JSON request against the backend and decodes the response
// into out when provided. Non-2xx statuses become errors carrying the
// backend's error message when one is present.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
