package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"NetPulse/internal/metrics"
	"NetPulse/internal/model"
	"NetPulse/internal/session"

	"go.uber.org/zap"
)

// replayedKey marks a request that has already been through one
// refresh-and-replay cycle. A second 401 on such a request is terminal.
type replayedKey struct{}

// refreshCall is a single in-flight token refresh shared across every
// request that hits a 401 while it runs.
type refreshCall struct {
	done chan struct{}
	err  error
}

// authTransport wraps outbound HTTP calls: it attaches the bearer token
// from the session store and, on an authorization failure, performs one
// refresh-and-replay cycle before giving up.
type authTransport struct {
	base       http.RoundTripper
	store      *session.Store
	refreshURL string
	onExpired  func()
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	inflight *refreshCall
}

func newAuthTransport(base http.RoundTripper, store *session.Store, refreshURL string, onExpired func(), logger *zap.Logger, m *metrics.Metrics) *authTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{
		base:       base,
		store:      store,
		refreshURL: refreshURL,
		onExpired:  onExpired,
		logger:     logger,
		metrics:    m,
	}
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if tok := t.store.Access(); tok != "" {
		out.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// A 401 from the auth endpoints means bad credentials, not a stale
	// access token; refreshing would loop.
	if strings.HasPrefix(req.URL.Path, "/api/auth/") {
		return resp, nil
	}
	// A second rejection on an already replayed request is terminal.
	if req.Context().Value(replayedKey{}) != nil {
		return resp, nil
	}
	// A consumed one-shot body cannot be replayed.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	resp.Body.Close()

	if err := t.refresh(req.Context(), out.Header.Get("Authorization")); err != nil {
		return nil, err
	}

	replay := req.Clone(context.WithValue(req.Context(), replayedKey{}, true))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		replay.Body = body
	}
	replay.Header.Set("Authorization", "Bearer "+t.store.Access())
	t.logger.Debug("replaying request with refreshed token", zap.String("path", req.URL.Path))
	return t.RoundTrip(replay)
}

// refresh runs, or joins, the single in-flight token refresh. rejected is
// the Authorization header the failed request carried: when the stored
// token already differs, another caller finished a refresh in the
// meantime and this one just reuses it.
func (t *authTransport) refresh(ctx context.Context, rejected string) error {
	t.mu.Lock()
	if call := t.inflight; call != nil {
		t.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if tok := t.store.Access(); tok != "" && "Bearer "+tok != rejected {
		t.mu.Unlock()
		return nil
	}
	call := &refreshCall{done: make(chan struct{})}
	t.inflight = call
	t.mu.Unlock()

	call.err = t.doRefresh(ctx)
	close(call.done)

	t.mu.Lock()
	t.inflight = nil
	t.mu.Unlock()
	return call.err
}

func (t *authTransport) doRefresh(ctx context.Context) error {
	refresh := t.store.Refresh()
	if refresh == "" {
		t.expire()
		return model.ErrSessionExpired
	}
	epoch := t.store.Epoch()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.refreshURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+refresh)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		// Transport failure, not a token rejection: the session survives,
		// the original request fails.
		t.countRefresh("error")
		return fmt.Errorf("token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.logger.Warn("refresh token rejected", zap.Int("status", resp.StatusCode))
		t.expire()
		return fmt.Errorf("%w: status %d", model.ErrRefreshFailed, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		t.expire()
		return fmt.Errorf("%w: unusable refresh response", model.ErrRefreshFailed)
	}

	if !t.store.UpdateAccess(body.AccessToken, epoch) {
		// Session was cleared or replaced while the refresh was in flight.
		t.countRefresh("stale")
		return model.ErrSessionExpired
	}

	t.countRefresh("success")
	t.logger.Info("access token refreshed")
	return nil
}

// expire clears the session after a terminal refresh failure and signals
// the rest of the application to re-authenticate.
func (t *authTransport) expire() {
	t.countRefresh("failure")
	t.store.Clear()
	if t.onExpired != nil {
		t.onExpired()
	}
}

func (t *authTransport) countRefresh(result string) {
	if t.metrics != nil {
		t.metrics.TokenRefreshes.WithLabelValues(result).Inc()
	}
}
