package model

import "time"

// Session is the paired access/refresh credential identifying an
// authenticated client. Exactly one Session is active per signed-in
// context; it is owned by the session store and read everywhere else.
type Session struct {
	AccessToken  string `yaml:"access_token" json:"access_token"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token"`
}

// Active reports whether the session carries an access token. Token
// presence is the sole signal used to decide whether to open the stream.
func (s Session) Active() bool {
	return s.AccessToken != ""
}

// TrafficRate is one interface's momentary throughput as reported by the
// backend in a traffic_data event.
type TrafficRate struct {
	Interface    string  `json:"interface"`
	BytesSentSec float64 `json:"bytes_sent_sec"`
	BytesRecvSec float64 `json:"bytes_recv_sec"`
}

// TrafficSample is a single chart point. Category composes an interface
// identifier with a direction tag, e.g. "eth0 - Sent". Samples are
// immutable once appended to a window.
type TrafficSample struct {
	Category  string  `json:"category"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"time"`
}

// AlertLevel classifies an AlertNotice.
type AlertLevel string

const (
	LevelInfo    AlertLevel = "info"
	LevelWarning AlertLevel = "warning"
	LevelError   AlertLevel = "error"
)

// AlertNotice is the latest backend alert. At most one notice is retained
// at a time; superseded notices are discarded, not queued.
type AlertNotice struct {
	Message   string     `json:"message"`
	Level     AlertLevel `json:"level"`
	Timestamp time.Time  `json:"timestamp"`
}

// ProtocolCounts is the per-protocol packet distribution pushed by the
// backend sniffer.
type ProtocolCounts struct {
	Counts      map[string]uint64  `json:"counts"`
	Percentages map[string]float64 `json:"percentages"`
}

// HostStatus is a lifecycle event for a monitored client host. The type
// field carries backend-defined values such as "System Start" or
// "System Shut Down".
type HostStatus struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
}

// ThresholdRule is a backend-evaluated alerting rule. The core carries
// these as configuration references only; it never evaluates them.
type ThresholdRule struct {
	ID      int64   `json:"id"`
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
	Enabled bool    `json:"enabled"`
}

// Client is a monitored host registered with the backend.
type Client struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IP          string `json:"ip"`
	Description string `json:"description"`
}

// Device is a network interface visible to the backend probe.
type Device struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HistoryEntry is one row of the backend's durable traffic history. The
// core consumes history read-only; it never writes samples anywhere.
type HistoryEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Interface    string    `json:"interface"`
	BytesSentSec float64   `json:"bytes_sent_sec"`
	BytesRecvSec float64   `json:"bytes_recv_sec"`
}
