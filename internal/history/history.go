// Package history keeps a bounded per-channel record of recent events so
// reconnecting subscribers can catch up on what they missed.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	hub "github.com/beaconhub/beacon/internal"
)

// Entry is one recorded event with its channel-scoped monotonic ID.
type Entry struct {
	ID    uint64    `json:"id"`
	Event hub.Event `json:"event"`
}

// ring holds the most recent entries of one channel.
type ring struct {
	mu      sync.Mutex
	nextID  uint64
	entries []Entry
}

// History is an in-memory replay buffer: at most perChannel entries per
// channel, with idle channels evicted by the otter cache underneath.
type History struct {
	mu         sync.Mutex // guards ring creation only
	rings      *otter.Cache[string, *ring]
	perChannel int
}

// New creates a History tracking at most maxChannels channels, each holding
// up to perChannel entries. Channels untouched for idleTTL are evicted.
func New(maxChannels, perChannel int, idleTTL time.Duration) (*History, error) {
	c, err := otter.New[string, *ring](&otter.Options[string, *ring]{
		MaximumSize:      maxChannels,
		ExpiryCalculator: otter.ExpiryWriting[string, *ring](idleTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create history cache: %w", err)
	}
	return &History{rings: c, perChannel: perChannel}, nil
}

// Append records ev on channel and returns its assigned ID. IDs are
// monotonic within a channel, starting at 1, and reset if the channel is
// evicted after going idle.
func (h *History) Append(channel string, ev hub.Event) uint64 {
	r := h.ring(channel)

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, Entry{ID: id, Event: ev})
	if len(r.entries) > h.perChannel {
		r.entries = append(r.entries[:0], r.entries[len(r.entries)-h.perChannel:]...)
	}
	r.mu.Unlock()

	// Re-set refreshes the write-expiry so active channels stay cached.
	h.rings.Set(channel, r)
	return id
}

// Since returns the recorded entries of channel with ID greater than
// afterID, oldest first. afterID 0 returns everything still buffered.
func (h *History) Since(channel string, afterID uint64) []Entry {
	r, ok := h.rings.GetIfPresent(channel)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := 0
	for i < len(r.entries) && r.entries[i].ID <= afterID {
		i++
	}
	if i == len(r.entries) {
		return nil
	}
	out := make([]Entry, len(r.entries)-i)
	copy(out, r.entries[i:])
	return out
}

// Latest returns the highest assigned ID of channel, or 0 if the channel
// has no buffered history.
func (h *History) Latest(channel string) uint64 {
	r, ok := h.rings.GetIfPresent(channel)
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID
}

func (h *History) ring(channel string) *ring {
	if r, ok := h.rings.GetIfPresent(channel); ok {
		return r
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rings.GetIfPresent(channel); ok {
		return r
	}
	r := &ring{}
	h.rings.Set(channel, r)
	return r
}
