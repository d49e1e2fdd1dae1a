package server

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	hub "github.com/beaconhub/beacon/internal"
	"github.com/beaconhub/beacon/internal/sse"
	"github.com/beaconhub/beacon/internal/telemetry"
)

// maxPublishBytes bounds the publish request body.
const maxPublishBytes = 1 << 20 // 1MB

// handleSubscribe starts an SSE stream fed by the channel's bus
// subscription and drains it to the client until either side ends it.
func (s *server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	afterID, replay := replayPoint(r)

	sub, unsubscribe, err := s.deps.Bus.Subscribe(channel)
	if err != nil {
		writeJSON(w, errorStatus(err), errorResponse("hub shutting down"))
		return
	}

	producer := func(ctx context.Context, q *sse.EventQueue) {
		defer unsubscribe()
		defer q.Close()

		// Catch a reconnecting client up before live traffic. Replayed
		// events go through the same input queue, so ordering and
		// backpressure hold.
		if replay && s.deps.History != nil {
			for _, entry := range s.deps.History.Since(channel, afterID) {
				if q.Push(entry.Event) != nil {
					return
				}
			}
		}

		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return // bus shut down
				}
				if q.Push(ev) != nil {
					return
				}
			case <-q.Done():
				return // stream ended from the response side
			}
		}
	}

	opts := s.deps.StreamOptions
	opts.Channel = channel
	ctx, stream := s.deps.Streams.StartStream(r.Context(), producer, opts)

	if m := s.deps.Metrics; m != nil {
		m.ActiveStreams.Inc()
		m.StreamsStarted.WithLabelValues(channel).Inc()
	}

	r = r.WithContext(ctx)
	writeStreamHeaders(w, hub.CORSHeadersFromContext(ctx))
	drainStream(w, r, stream)
	s.recordSession(r, stream)
}

// replayPoint reads the client's catch-up position from the since query
// parameter or the Last-Event-ID header. replay is false when neither is
// present: a fresh subscriber gets live events only.
func replayPoint(r *http.Request) (afterID uint64, replay bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// handlePublish ingests one event into a channel.
func (s *server) handlePublish(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("read body: "+err.Error()))
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse("empty body"))
		return
	}

	_, span := telemetry.Tracer("server").Start(r.Context(), "publish",
		trace.WithAttributes(attribute.String("channel", channel)))
	res := s.deps.Publisher.Publish(channel, eventFromBody(body))
	span.SetAttributes(
		attribute.Int("delivered", res.Delivered),
		attribute.Int("dropped", res.Dropped),
	)
	span.End()

	writeJSON(w, http.StatusAccepted, res)
}

// eventFromBody resolves the record-vs-bare decision once, at the ingest
// boundary. A JSON object carrying a data field is a structured event;
// anything else -- a bare JSON scalar, or a non-JSON body -- is coerced to
// a value with the default event name.
func eventFromBody(body []byte) hub.Event {
	if gjson.ValidBytes(body) {
		v := gjson.ParseBytes(body)
		if v.IsObject() {
			if data := v.Get("data"); data.Exists() {
				d := data.Raw
				if data.Type == gjson.String {
					d = data.String()
				}
				return hub.NewEvent(v.Get("name").String(), d)
			}
		}
		if v.Type == gjson.String {
			return hub.Anonymous(v.String())
		}
	}
	return hub.Anonymous(string(body))
}
