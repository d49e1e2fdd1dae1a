package server

import (
	hub "github.com/beaconhub/beacon/internal"
	"github.com/beaconhub/beacon/internal/bus"
	"github.com/beaconhub/beacon/internal/history"
	"github.com/beaconhub/beacon/internal/telemetry"
)

// PublishResult reports what happened to one published event.
type PublishResult struct {
	ID        uint64 `json:"id,omitempty"` // history ID, 0 when history is disabled
	Delivered int    `json:"delivered"`
	Dropped   int    `json:"dropped"`
}

// Publisher is the single ingest path for events: record to history, fan out
// via the bus, count. Both the HTTP publish endpoint and the upstream relay
// go through it.
type Publisher struct {
	bus     *bus.Bus
	history *history.History
	metrics *telemetry.Metrics
}

// NewPublisher creates a Publisher. history and metrics may be nil.
func NewPublisher(b *bus.Bus, h *history.History, m *telemetry.Metrics) *Publisher {
	return &Publisher{bus: b, history: h, metrics: m}
}

// Publish ingests one event on channel.
func (p *Publisher) Publish(channel string, ev hub.Event) PublishResult {
	var res PublishResult
	if p.history != nil {
		res.ID = p.history.Append(channel, ev)
	}
	res.Delivered, res.Dropped = p.bus.Publish(channel, ev)

	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(channel).Inc()
		if res.Dropped > 0 {
			p.metrics.PublishDropped.WithLabelValues(channel).Add(float64(res.Dropped))
		}
	}
	return res
}

// PublishEvent satisfies the relay's publisher contract.
func (p *Publisher) PublishEvent(channel string, ev hub.Event) {
	p.Publish(channel, ev)
}
