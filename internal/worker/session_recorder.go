package worker

import (
	"context"
	"log/slog"
	"time"

	hub "github.com/beaconhub/beacon/internal"
)

const (
	sessionChanSize   = 1000
	sessionBatchSize  = 100
	sessionFlushEvery = 5 * time.Second
	sessionDrainTime  = 30 * time.Second
)

// SessionStore is the persistence interface consumed by SessionRecorder.
type SessionStore interface {
	InsertSessions(ctx context.Context, records []hub.SessionRecord) error
}

// QueueGauge receives the recorder's pending-record count; satisfied by a
// prometheus gauge. Nil disables reporting.
type QueueGauge interface {
	Set(float64)
}

// SessionRecorder buffers finished-stream records and batch-flushes them to
// the store. Records are dropped if the channel is full -- accounting must
// never stall a stream teardown.
type SessionRecorder struct {
	ch    chan hub.SessionRecord
	store SessionStore
	gauge QueueGauge
}

// NewSessionRecorder creates a SessionRecorder backed by store.
func NewSessionRecorder(store SessionStore, gauge QueueGauge) *SessionRecorder {
	return &SessionRecorder{
		ch:    make(chan hub.SessionRecord, sessionChanSize),
		store: store,
		gauge: gauge,
	}
}

// Name returns the worker identifier.
func (r *SessionRecorder) Name() string { return "session_recorder" }

// Record enqueues a session record. It never blocks; drops on full channel.
func (r *SessionRecorder) Record(rec hub.SessionRecord) {
	select {
	case r.ch <- rec:
		if r.gauge != nil {
			r.gauge.Set(float64(len(r.ch)))
		}
	default:
		slog.Warn("session record dropped, channel full",
			"stream_id", rec.ID, "channel", rec.Channel)
	}
}

// Run processes records until ctx is cancelled, then drains remaining records.
func (r *SessionRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(sessionFlushEvery)
	defer ticker.Stop()

	buf := make([]hub.SessionRecord, 0, sessionBatchSize)

	for {
		select {
		case rec := <-r.ch:
			buf = append(buf, rec)
			if len(buf) >= sessionBatchSize {
				r.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ticker.C:
			if len(buf) > 0 {
				r.flush(ctx, buf)
				buf = buf[:0]
			}
			if r.gauge != nil {
				r.gauge.Set(float64(len(r.ch)))
			}

		case <-ctx.Done():
			// Drain remaining records with a timeout.
			r.drain(buf)
			return nil
		}
	}
}

func (r *SessionRecorder) drain(buf []hub.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionDrainTime)
	defer cancel()

	for {
		select {
		case rec := <-r.ch:
			buf = append(buf, rec)
			if len(buf) >= sessionBatchSize {
				r.flush(ctx, buf)
				buf = buf[:0]
			}
		default:
			// Channel empty, flush remaining.
			if len(buf) > 0 {
				r.flush(ctx, buf)
			}
			return
		}
	}
}

func (r *SessionRecorder) flush(ctx context.Context, buf []hub.SessionRecord) {
	// Copy to avoid aliasing the caller's slice.
	batch := make([]hub.SessionRecord, len(buf))
	copy(batch, buf)

	if err := r.store.InsertSessions(ctx, batch); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "session flush failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
	}
}
