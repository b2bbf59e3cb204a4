package model

import "errors"

// Error taxonomy for the synchronization core. Transient conditions are
// retried internally and never surface until exhausted; terminal
// conditions surface as a session-expired state requiring a fresh login.
var (
	// ErrAuthRequired means no access token is present; a connection is
	// not attempted at all.
	ErrAuthRequired = errors.New("no access token, authentication required")

	// ErrAuthRejected means the stream handshake rejected the token.
	// Terminal: reconnecting would repeat the same failure.
	ErrAuthRejected = errors.New("stream authentication rejected")

	// ErrRefreshFailed means the refresh token itself was rejected. The
	// session is cleared and the caller must re-authenticate.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrSessionExpired is reported to callers once a terminal auth
	// failure has cleared the session.
	ErrSessionExpired = errors.New("session expired")

	// ErrMalformedPayload marks an inbound event whose payload is missing
	// expected fields. Such events are dropped, never propagated.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// Terminal reports whether err is an authentication failure that retrying
// cannot fix; the caller needs a fresh login.
func Terminal(err error) bool {
	return errors.Is(err, ErrAuthRequired) ||
		errors.Is(err, ErrAuthRejected) ||
		errors.Is(err, ErrRefreshFailed) ||
		errors.Is(err, ErrSessionExpired)
}
