// Package bus provides per-channel fan-out of events to SSE subscribers.
package bus

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	hub "github.com/beaconhub/beacon/internal"
)

// subscriberBufferSize is the buffer of each subscriber's event channel.
// A subscriber whose stream has fallen this far behind has events dropped
// rather than blocking publishers.
const subscriberBufferSize = 64

// ChannelInfo describes one live channel.
type ChannelInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

type subscriber struct {
	ch chan hub.Event
}

// Bus fans events out to all subscribers of a named channel. Channels come
// into existence on first subscribe or publish and vanish with their last
// subscriber.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]map[uint64]*subscriber
	next     uint64
	closed   bool
}

// New creates a ready-to-use Bus.
func New() *Bus {
	return &Bus{channels: make(map[string]map[uint64]*subscriber)}
}

// Publish delivers ev to every current subscriber of channel. Delivery is
// non-blocking: a subscriber with a full buffer has the event dropped, never
// stalling the publisher or other subscribers. It returns the number of
// subscribers reached and the number dropped.
func (b *Bus) Publish(channel string, ev hub.Event) (delivered, dropped int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.channels[channel] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		slog.LogAttrs(context.Background(), slog.LevelWarn, "events dropped for slow subscribers",
			slog.String("channel", channel),
			slog.Int("dropped", dropped),
		)
	}
	return delivered, dropped
}

// Subscribe registers a subscriber on channel and returns its event channel
// plus a cancel function. The event channel is closed on cancel or when the
// bus shuts down. Subscribe on a closed bus returns hub.ErrBusClosed.
func (b *Bus) Subscribe(channel string) (<-chan hub.Event, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, hub.ErrBusClosed
	}

	sub := &subscriber{ch: make(chan hub.Event, subscriberBufferSize)}
	id := b.next
	b.next++

	subs := b.channels[channel]
	if subs == nil {
		subs = make(map[uint64]*subscriber)
		b.channels[channel] = subs
	}
	subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.channels[channel][id]; !ok {
			return
		}
		delete(b.channels[channel], id)
		if len(b.channels[channel]) == 0 {
			delete(b.channels, channel)
		}
		close(sub.ch)
	}
	return sub.ch, cancel, nil
}

// Subscribers reports the current subscriber count of channel.
func (b *Bus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

// Channels lists live channels sorted by name.
func (b *Bus) Channels() []ChannelInfo {
	b.mu.RLock()
	infos := make([]ChannelInfo, 0, len(b.channels))
	for name, subs := range b.channels {
		infos = append(infos, ChannelInfo{Name: name, Subscribers: len(subs)})
	}
	b.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Close shuts the bus down: every subscriber channel is closed, which ends
// the streams feeding from them. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for name, subs := range b.channels {
		for id, sub := range subs {
			close(sub.ch)
			delete(subs, id)
		}
		delete(b.channels, name)
	}
}
