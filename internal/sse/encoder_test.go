package sse

import (
	"testing"

	hub "github.com/beaconhub/beacon/internal"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event hub.Event
		want  string
	}{
		{
			name:  "single line",
			event: hub.Event{Name: "msg", Data: "hello"},
			want:  "event: msg\r\ndata: hello\r\n\r\n",
		},
		{
			name:  "multiline LF",
			event: hub.Event{Name: "msg", Data: "a\nb"},
			want:  "event: msg\r\ndata: a\r\ndata: b\r\n\r\n",
		},
		{
			name:  "multiline CRLF",
			event: hub.Event{Name: "msg", Data: "a\r\nb"},
			want:  "event: msg\r\ndata: a\r\ndata: b\r\n\r\n",
		},
		{
			name:  "empty data",
			event: hub.Event{Name: "event", Data: ""},
			want:  "event: event\r\ndata: \r\n\r\n",
		},
		{
			name:  "empty name falls back to default",
			event: hub.Event{Data: "x"},
			want:  "event: event\r\ndata: x\r\n\r\n",
		},
		{
			name:  "lone CR is not a line break",
			event: hub.Event{Name: "msg", Data: "a\rb"},
			want:  "event: msg\r\ndata: a\rb\r\n\r\n",
		},
		{
			name:  "trailing newline yields empty final line",
			event: hub.Event{Name: "msg", Data: "a\n"},
			want:  "event: msg\r\ndata: a\r\ndata: \r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := string(Encode(tt.event)); got != tt.want {
				t.Errorf("Encode(%+v) = %q, want %q", tt.event, got, tt.want)
			}
		})
	}
}

func TestHeartbeatFrame(t *testing.T) {
	t.Parallel()
	if got := string(Heartbeat()); got != "\r\n" {
		t.Errorf("Heartbeat() = %q, want %q", got, "\r\n")
	}
	if n := len(Heartbeat()); n != 2 {
		t.Errorf("len(Heartbeat()) = %d, want 2", n)
	}
}
