package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveStreams == nil {
		t.Error("ActiveStreams is nil")
	}
	if m.StreamsStarted == nil {
		t.Error("StreamsStarted is nil")
	}
	if m.StreamDuration == nil {
		t.Error("StreamDuration is nil")
	}
	if m.FramesSent == nil {
		t.Error("FramesSent is nil")
	}
	if m.EventsPublished == nil {
		t.Error("EventsPublished is nil")
	}
	if m.PublishDropped == nil {
		t.Error("PublishDropped is nil")
	}
	if m.RelayReconnects == nil {
		t.Error("RelayReconnects is nil")
	}
	if m.SessionQueueLen == nil {
		t.Error("SessionQueueLen is nil")
	}
}

func TestNewMetricsRegistersTwiceSafely(t *testing.T) {
	t.Parallel()

	// Separate registries: registering the same collectors twice on one
	// registry must panic, so each component gets its own.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
