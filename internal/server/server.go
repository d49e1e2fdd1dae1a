// Package server implements the HTTP transport layer for the Beacon hub.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	hub "github.com/beaconhub/beacon/internal"
	"github.com/beaconhub/beacon/internal/bus"
	"github.com/beaconhub/beacon/internal/history"
	"github.com/beaconhub/beacon/internal/sse"
	"github.com/beaconhub/beacon/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// SessionSink records finished-stream sessions asynchronously.
type SessionSink interface {
	Record(hub.SessionRecord)
}

// SessionQueries reads back persisted session records.
type SessionQueries interface {
	QuerySessions(ctx context.Context, f hub.SessionFilter) ([]hub.SessionRecord, error)
	ChannelTotals(ctx context.Context) ([]hub.ChannelTotal, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Bus            *bus.Bus
	Publisher      *Publisher
	Streams        *sse.Manager
	StreamOptions  sse.Options        // per-stream defaults (heartbeat, buffers)
	CORS           map[string]string  // merged into SSE responses verbatim
	History        *history.History   // nil = no replay buffer
	Sessions       SessionSink        // nil = no session accounting
	SessionQueries SessionQueries     // nil = sessions endpoint returns 404
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Metrics        *telemetry.Metrics // nil = no metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Hub API
	r.Route("/v1", func(r chi.Router) {
		r.Get("/channels", s.handleListChannels)
		r.Get("/channels/{channel}/events", s.handleSubscribe)
		r.Post("/channels/{channel}/events", s.handlePublish)
		r.Get("/channels/{channel}/history", s.handleHistory)
		r.Get("/sessions", s.handleListSessions)
	})

	return r
}

type server struct {
	deps Deps
}
