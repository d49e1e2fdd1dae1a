package sse

import (
	"context"
	"log/slog"

	hub "github.com/beaconhub/beacon/internal"
)

// pump is the stream's dedicated worker: it drains the input queue, encodes
// each event, and blocking-enqueues the frame onto the outbound queue. That
// enqueue suspending on a full queue is the backpressure path -- a producer
// that outpaces the network writer is slowed, never silently dropped.
//
// When the input queue is observed closed (producer completion or End), the
// pump flushes events already buffered, cancels the heartbeat task, marks
// the stream Closed, and closes the outbound queue. It runs once and is
// never restarted.
func (s *Stream) pump() {
	defer s.closeStream()

	for {
		select {
		case ev := <-s.in.ch:
			if err := s.deliver(ev); err != nil {
				return
			}
		case <-s.in.done:
			s.flush()
			return
		}
	}
}

// flush delivers events that were already buffered when the input queue
// closed, so a producer that pushes N events and then closes still gets all
// N frames on the wire, in order.
func (s *Stream) flush() {
	for {
		select {
		case ev := <-s.in.ch:
			if err := s.deliver(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

// deliver encodes one event and enqueues its frame. A write failure is
// stream-local: it is logged with full detail and returned to the pump,
// which tears this stream down without touching any other stream.
func (s *Stream) deliver(ev hub.Event) error {
	if err := s.enqueue(Encode(ev), nil); err != nil {
		slog.LogAttrs(context.Background(), slog.LevelError, "outbound enqueue failed",
			slog.String("error", err.Error()),
			slog.String("stream_id", s.id),
			slog.String("channel", s.channel),
			slog.String("event", ev.Name),
		)
		return err
	}
	s.events.Add(1)
	return nil
}
