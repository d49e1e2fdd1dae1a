package server

import (
	"log/slog"
	"net/http"
	"time"

	hub "github.com/beaconhub/beacon/internal"
	"github.com/beaconhub/beacon/internal/sse"
)

// writeStreamHeaders sets the SSE response headers: the fixed event-stream
// set from the core plus the cross-origin headers carried on the request
// context, merged verbatim.
func writeStreamHeaders(w http.ResponseWriter, cors map[string]string) {
	h := w.Header()
	for k, v := range sse.Headers(cors) {
		h[k] = v
	}
	w.WriteHeader(http.StatusOK)
}

// drainStream is the response-writer side of a stream: it moves frames from
// the outbound queue to the socket, flushing after each one, until the queue
// closes (stream complete) or the client goes away. It is the only reader
// of the outbound queue, so wire byte order is exactly queue order.
func drainStream(w http.ResponseWriter, r *http.Request, s *sse.Stream) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("ResponseWriter does not implement http.Flusher")
		endAndDiscard(s)
		return
	}
	flusher.Flush()

	for {
		select {
		case frame, ok := <-s.Frames():
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				slog.LogAttrs(r.Context(), slog.LevelWarn, "client write failed, ending stream",
					slog.String("error", err.Error()),
					slog.String("stream_id", s.ID()),
					slog.String("channel", s.Channel()),
				)
				endAndDiscard(s)
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			endAndDiscard(s)
			return
		}
	}
}

// endAndDiscard requests teardown and keeps receiving from the outbound
// queue, discarding frames, until the pump closes it. The pump's enqueue
// blocks on a full queue until space frees or the stream closes; once the
// writer stops sending to the client, this drain is what frees that space,
// letting the pump flush, close the stream, and exit.
func endAndDiscard(s *sse.Stream) {
	s.End()
	for range s.Frames() {
	}
}

// recordSession hands the finished stream to the accounting worker and
// updates stream metrics.
func (s *server) recordSession(r *http.Request, st *sse.Stream) {
	if m := s.deps.Metrics; m != nil {
		m.ActiveStreams.Dec()
		m.StreamDuration.WithLabelValues(st.Channel()).Observe(time.Since(st.StartedAt()).Seconds())
		m.FramesSent.WithLabelValues("event").Add(float64(st.EventsSent()))
		m.FramesSent.WithLabelValues("heartbeat").Add(float64(st.HeartbeatsSent()))
	}
	if s.deps.Sessions != nil {
		s.deps.Sessions.Record(st.Record(hub.RequestIDFromContext(r.Context())))
	}
}
