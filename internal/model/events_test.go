package model

import (
	"errors"
	"testing"
)

func TestDecodeEvent_TrafficData(t *testing.T) {
	ev, err := DecodeEvent(EventTrafficData,
		[]byte(`{"rates":[{"interface":"eth0","bytes_sent_sec":2048,"bytes_recv_sec":1024}]}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	data, ok := ev.(TrafficDataEvent)
	if !ok {
		t.Fatalf("expected TrafficDataEvent, got %T", ev)
	}
	if len(data.Rates) != 1 || data.Rates[0].Interface != "eth0" || data.Rates[0].BytesSentSec != 2048 {
		t.Errorf("unexpected payload: %+v", data)
	}
}

func TestDecodeEvent_AlertDefaultsToInfo(t *testing.T) {
	ev, err := DecodeEvent(EventAlert, []byte(`{"message":"disk filling"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := ev.(AlertEvent).Level; got != LevelInfo {
		t.Errorf("missing level should default to info, got %q", got)
	}
}

func TestDecodeEvent_MalformedPayloads(t *testing.T) {
	cases := []struct {
		name    string
		event   string
		payload string
	}{
		{"traffic without rates", EventTrafficData, `{"foo":1}`},
		{"traffic not json", EventTrafficData, `garbage`},
		{"alert without message", EventAlert, `{"level":"error"}`},
		{"host status without client_id", EventHostStatus, `{"client_name":"lab-1"}`},
		{"packet without summary", EventNewPacket, `{}`},
		{"sniffer error without error", EventSnifferError, `{}`},
		{"protocol counts without counts", EventProtocolCounts, `{"percentages":{}}`},
		{"unknown event", "telemetry_v2", `{}`},
	}
	for _, tc := range cases {
		if _, err := DecodeEvent(tc.event, []byte(tc.payload)); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("%s: expected ErrMalformedPayload, got %v", tc.name, err)
		}
	}
}
