// Package hub defines domain types and context plumbing for the Beacon SSE hub.
// This package has no project imports -- it is the dependency root.
package hub

import (
	"context"
	"fmt"
	"time"
)

// DefaultEventName is the event name used when a producer supplies a bare
// value instead of a named event.
const DefaultEventName = "event"

// Event is a single application event destined for an SSE stream.
// Data may contain embedded line breaks; the encoder splits them into
// multiple data lines on the wire.
type Event struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// NewEvent builds a named event. An empty name falls back to DefaultEventName,
// so the record-vs-bare decision is made exactly once, here at the producer
// boundary.
func NewEvent(name, data string) Event {
	if name == "" {
		name = DefaultEventName
	}
	return Event{Name: name, Data: data}
}

// Anonymous coerces an arbitrary value into an event with the default name.
func Anonymous(v any) Event {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return Event{Name: DefaultEventName, Data: s}
}

// Frame is one wire-ready byte unit: either an encoded event record or a
// bare heartbeat. Frames are immutable once built.
type Frame []byte

// SessionRecord describes one finished stream, for asynchronous accounting.
type SessionRecord struct {
	ID             string    `json:"id"`
	Channel        string    `json:"channel"`
	EventsSent     int64     `json:"events_sent"`
	HeartbeatsSent int64     `json:"heartbeats_sent"`
	DurationMs     int64     `json:"duration_ms"`
	RequestID      string    `json:"request_id"`
	StartedAt      time.Time `json:"started_at"`
}

// SessionFilter narrows session queries.
type SessionFilter struct {
	Channel string
	Since   time.Time
	Limit   int
	Offset  int
}

// ChannelTotal aggregates finished sessions per channel.
type ChannelTotal struct {
	Channel    string `json:"channel"`
	Sessions   int64  `json:"sessions"`
	EventsSent int64  `json:"events_sent"`
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// Later middleware and the stream lifecycle fill in fields by mutating the
// same pointer, avoiding a context.WithValue + Request.WithContext per value.
type requestMeta struct {
	RequestID   string
	CORSHeaders map[string]string
	EndStream   func()
}

// metaFromContext returns the requestMeta stored in ctx, or nil.
func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// CORSHeadersFromContext extracts caller-supplied cross-origin headers.
// The hub merges these into SSE responses verbatim; it never computes them.
func CORSHeadersFromContext(ctx context.Context) map[string]string {
	if m := metaFromContext(ctx); m != nil {
		return m.CORSHeaders
	}
	return nil
}

// ContextWithCORSHeaders stores cross-origin headers in the existing
// requestMeta if present, falling back to fresh metadata (e.g., in tests).
func ContextWithCORSHeaders(ctx context.Context, h map[string]string) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.CORSHeaders = h
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{CORSHeaders: h})
}

// StreamEndFromContext returns the end function of the stream started for
// this request, or nil if no stream was started.
func StreamEndFromContext(ctx context.Context) func() {
	if m := metaFromContext(ctx); m != nil {
		return m.EndStream
	}
	return nil
}

// ContextWithStreamEnd attaches a stream's end function under the well-known
// request metadata key so later code on the request path can retrieve it.
func ContextWithStreamEnd(ctx context.Context, end func()) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.EndStream = end
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{EndStream: end})
}
