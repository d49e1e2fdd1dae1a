package sse

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	hub "github.com/beaconhub/beacon/internal"
)

// Defaults applied by StartStream when Options leaves a field zero.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultQueueCapacity     = 10
)

// Stream is one client connection's SSE session. It owns the bounded
// outbound frame queue, the heartbeat task, and the Open -> Closed state.
// The outbound queue is the single source of byte order on the wire: event
// and heartbeat frames interleave only through it, never via a second path.
type Stream struct {
	id        string
	channel   string
	startedAt time.Time

	out  chan hub.Frame
	done chan struct{}
	in   *EventQueue
	hb   *Task

	teardown sync.Once

	events     atomic.Int64
	heartbeats atomic.Int64
}

// ID returns the stream's unique identifier.
func (s *Stream) ID() string { return s.id }

// Channel returns the channel name this stream subscribes to.
func (s *Stream) Channel() string { return s.channel }

// StartedAt returns when the stream was created.
func (s *Stream) StartedAt() time.Time { return s.startedAt }

// Frames is the outbound queue. The response writer owns draining it; the
// channel is closed when the stream tears down, signaling a complete body.
func (s *Stream) Frames() <-chan hub.Frame { return s.out }

// Done is closed when the stream has transitioned to Closed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// EventsSent reports the number of event frames enqueued so far.
func (s *Stream) EventsSent() int64 { return s.events.Load() }

// HeartbeatsSent reports the number of heartbeat frames enqueued so far.
func (s *Stream) HeartbeatsSent() int64 { return s.heartbeats.Load() }

// End requests teardown. It is idempotent and callable from any goroutine:
// it closes the producer's input queue, which the pump observes and answers
// with the normal teardown sequence. Calling End on a closed stream is a
// no-op.
func (s *Stream) End() { s.in.Close() }

// Record summarizes the stream for session accounting.
func (s *Stream) Record(requestID string) hub.SessionRecord {
	return hub.SessionRecord{
		ID:             s.id,
		Channel:        s.channel,
		EventsSent:     s.events.Load(),
		HeartbeatsSent: s.heartbeats.Load(),
		DurationMs:     time.Since(s.startedAt).Milliseconds(),
		RequestID:      requestID,
		StartedAt:      s.startedAt,
	}
}

// enqueue places f on the outbound queue. It blocks while the queue is full
// (the sole backpressure mechanism) and fails with hub.ErrStreamClosed once
// the stream is Closed. cancel aborts a pending enqueue; a nil cancel never
// fires.
func (s *Stream) enqueue(f hub.Frame, cancel <-chan struct{}) error {
	select {
	case <-s.done:
		return hub.ErrStreamClosed
	default:
	}
	select {
	case s.out <- f:
		return nil
	case <-s.done:
		return hub.ErrStreamClosed
	case <-cancel:
		return errEnqueueCancelled
	}
}

// enqueueHeartbeat sends one keep-alive frame, counting it on success.
func (s *Stream) enqueueHeartbeat(cancel <-chan struct{}) error {
	if err := s.enqueue(heartbeatFrame, cancel); err != nil {
		return err
	}
	s.heartbeats.Add(1)
	return nil
}

// closeStream performs the once-only Open -> Closed transition: stop the
// heartbeat task (waiting for its goroutine to exit, so no sender is left in
// flight), reject further enqueues, then close the outbound queue. Only the
// pump calls this.
func (s *Stream) closeStream() {
	s.teardown.Do(func() {
		s.hb.Cancel()
		close(s.done)
		close(s.out)
	})
}

// Producer is the application-supplied setup function for a stream. It runs
// on its own goroutine, pushes events into q, and closes q when done. ctx is
// the request context the stream was started with.
type Producer func(ctx context.Context, q *EventQueue)

// Options configures a single stream.
type Options struct {
	Channel           string
	HeartbeatInterval time.Duration
	OutboundCapacity  int
	InputCapacity     int
}

// Manager creates streams and owns their shared heartbeat scheduler.
type Manager struct {
	scheduler *Scheduler
}

// NewManager returns a Manager scheduling heartbeats on sch.
func NewManager(sch *Scheduler) *Manager {
	return &Manager{scheduler: sch}
}

// StartStream builds a stream: outbound queue, heartbeat task, input queue,
// producer goroutine, and pump. It returns immediately; the request-handling
// goroutine does no further work beyond draining Frames. The returned
// context carries the stream's End reference (hub.StreamEndFromContext).
//
// A panic in the producer is caught, logged, and converted into immediate
// teardown -- it never propagates to the caller.
func (m *Manager) StartStream(ctx context.Context, producer Producer, opts Options) (context.Context, *Stream) {
	interval := opts.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	outCap := opts.OutboundCapacity
	if outCap <= 0 {
		outCap = DefaultQueueCapacity
	}
	inCap := opts.InputCapacity
	if inCap <= 0 {
		inCap = DefaultQueueCapacity
	}

	s := &Stream{
		id:        uuid.Must(uuid.NewV7()).String(),
		channel:   opts.Channel,
		startedAt: time.Now(),
		out:       make(chan hub.Frame, outCap),
		done:      make(chan struct{}),
		in:        newEventQueue(inCap),
	}
	s.hb = m.scheduler.Schedule(s, interval)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.LogAttrs(ctx, slog.LevelError, "producer panic, ending stream",
					slog.Any("error", rec),
					slog.String("stream_id", s.id),
					slog.String("channel", s.channel),
				)
				s.End()
			}
		}()
		producer(ctx, s.in)
	}()

	go s.pump()

	return hub.ContextWithStreamEnd(ctx, s.End), s
}

// Pre-allocated header value slices for SSE responses. Direct map assignment
// avoids the []string{v} alloc that Header.Set creates.
var (
	sseContentType  = []string{"text/event-stream; charset=UTF-8"}
	sseConnection   = []string{"close"}
	sseCacheControl = []string{"no-cache"}
)

// Headers returns the response headers for an SSE stream: the fixed
// event-stream set plus any caller-supplied cross-origin headers, merged in
// verbatim (never computed here).
func Headers(cors map[string]string) http.Header {
	h := make(http.Header, 3+len(cors))
	h["Content-Type"] = sseContentType
	h["Connection"] = sseConnection
	h["Cache-Control"] = sseCacheControl
	for k, v := range cors {
		h.Set(k, v)
	}
	return h
}
