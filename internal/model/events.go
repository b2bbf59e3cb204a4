package model

import (
	"encoding/json"
	"fmt"
)

// Names of the inbound stream events pushed by the backend.
const (
	EventTrafficData    = "traffic_data"
	EventProtocolCounts = "protocol_counts"
	EventNewPacket      = "new_packet"
	EventSnifferError   = "sniffer_error"
	EventHostStatus     = "host_status"
	EventAlert          = "alert"
)

// EventNames lists every event the core knows how to decode, in the order
// the state layer subscribes to them.
var EventNames = []string{
	EventTrafficData,
	EventProtocolCounts,
	EventNewPacket,
	EventSnifferError,
	EventHostStatus,
	EventAlert,
}

// Event is the closed union of inbound stream events. Payloads are decoded
// into one variant per known event at the transport boundary, so consumers
// never see raw string-keyed dispatch.
type Event interface {
	EventName() string
}

// TrafficDataEvent carries per-interface throughput rates.
type TrafficDataEvent struct {
	Rates []TrafficRate `json:"rates"`
}

func (TrafficDataEvent) EventName() string { return EventTrafficData }

// ProtocolCountsEvent carries the sniffer's protocol distribution.
type ProtocolCountsEvent struct {
	ProtocolCounts
}

func (ProtocolCountsEvent) EventName() string { return EventProtocolCounts }

// NewPacketEvent carries a pre-rendered one-line packet summary.
type NewPacketEvent struct {
	Summary string `json:"summary"`
}

func (NewPacketEvent) EventName() string { return EventNewPacket }

// SnifferErrorEvent carries a backend sniffer failure, surfaced as-is.
type SnifferErrorEvent struct {
	Error string `json:"error"`
}

func (SnifferErrorEvent) EventName() string { return EventSnifferError }

// HostStatusEvent carries a monitored host lifecycle change.
type HostStatusEvent struct {
	HostStatus
}

func (HostStatusEvent) EventName() string { return EventHostStatus }

// AlertEvent carries a backend threshold alert.
type AlertEvent struct {
	Message string     `json:"message"`
	Level   AlertLevel `json:"level"`
}

func (AlertEvent) EventName() string { return EventAlert }

// DecodeEvent parses the raw payload for the named event into its typed
// variant. Unknown names and payloads missing required fields return an
// error wrapping ErrMalformedPayload; the caller drops such events.
func DecodeEvent(name string, data []byte) (Event, error) {
	switch name {
	case EventTrafficData:
		var ev TrafficDataEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if ev.Rates == nil {
			return nil, fmt.Errorf("%w: %s: missing rates", ErrMalformedPayload, name)
		}
		return ev, nil
	case EventProtocolCounts:
		var ev ProtocolCountsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if ev.Counts == nil {
			return nil, fmt.Errorf("%w: %s: missing counts", ErrMalformedPayload, name)
		}
		return ev, nil
	case EventNewPacket:
		var ev NewPacketEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if ev.Summary == "" {
			return nil, fmt.Errorf("%w: %s: missing summary", ErrMalformedPayload, name)
		}
		return ev, nil
	case EventSnifferError:
		var ev SnifferErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if ev.Error == "" {
			return nil, fmt.Errorf("%w: %s: missing error", ErrMalformedPayload, name)
		}
		return ev, nil
	case EventHostStatus:
		var ev HostStatusEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if ev.ClientID == "" {
			return nil, fmt.Errorf("%w: %s: missing client_id", ErrMalformedPayload, name)
		}
		return ev, nil
	case EventAlert:
		var ev AlertEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		if ev.Message == "" {
			return nil, fmt.Errorf("%w: %s: missing message", ErrMalformedPayload, name)
		}
		if ev.Level == "" {
			ev.Level = LevelInfo
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedPayload, name)
	}
}
