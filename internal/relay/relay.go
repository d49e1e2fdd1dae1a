package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	hub "github.com/beaconhub/beacon/internal"
	"github.com/beaconhub/beacon/internal/config"
	"github.com/beaconhub/beacon/internal/telemetry"
)

// Publisher receives events decoded from the upstream feed. Satisfied by the
// server's publish path (bus + history).
type Publisher interface {
	PublishEvent(channel string, ev hub.Event)
}

// Relay is a worker that subscribes to an upstream SSE endpoint and
// republishes its events into a local channel. Connection loss is answered
// with capped exponential backoff, forever -- the relay only stops with the
// process.
type Relay struct {
	cfg     config.RelayConfig
	client  *http.Client
	pub     Publisher
	metrics *telemetry.Metrics
}

// New creates a Relay publishing into pub. metrics may be nil.
func New(cfg config.RelayConfig, pub Publisher, metrics *telemetry.Metrics) *Relay {
	resolver := &dnscache.Resolver{}
	return &Relay{
		cfg:     cfg,
		client:  newClient(cfg.Auth, resolver),
		pub:     pub,
		metrics: metrics,
	}
}

// Name returns the worker identifier.
func (r *Relay) Name() string { return "relay" }

// backoffBounds normalizes the configured reconnect backoff window. Both
// bounds are clamped here, once, and only the normalized values are used --
// a zero min from config must never feed the doubling loop, or reconnects
// hot-loop (0*2 == 0).
func backoffBounds(cfg config.RelayConfig) (minBackoff, maxBackoff time.Duration) {
	minBackoff = cfg.MinBackoff
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	maxBackoff = cfg.MaxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = 30 * time.Second
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	return minBackoff, maxBackoff
}

// Run connects and consumes the upstream feed until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	minBackoff, maxBackoff := backoffBounds(r.cfg)
	backoff := minBackoff

	for {
		start := time.Now()
		err := r.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		slog.LogAttrs(ctx, slog.LevelWarn, "relay disconnected, will retry",
			slog.String("url", r.cfg.URL),
			slog.String("error", errString(err)),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		// A connection that survived a while earns a fresh backoff.
		if time.Since(start) > maxBackoff {
			backoff = minBackoff
		} else if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// consume opens one upstream connection and republishes events until the
// stream breaks or ctx is cancelled.
func (r *Relay) consume(ctx context.Context) error {
	if r.metrics != nil {
		r.metrics.RelayReconnects.Inc()
	}

	ctx, span := telemetry.Tracer("relay").Start(ctx, "connect",
		trace.WithAttributes(attribute.String("url", r.cfg.URL)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	slog.LogAttrs(ctx, slog.LevelInfo, "relay connected",
		slog.String("url", r.cfg.URL),
		slog.String("channel", r.cfg.Channel),
	)

	scanner := newScanner(resp.Body)
	var name string
	var data []string
	seen := false

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			// Dispatch boundary.
			if seen {
				r.pub.PublishEvent(r.cfg.Channel, hub.NewEvent(name, strings.Join(data, "\n")))
			}
			name, data, seen = "", nil, false
			continue
		}
		field, value, ok := parseLine(line)
		if !ok {
			continue
		}
		switch field {
		case "event":
			name = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("read stream: %w", err)
	}
	return errors.New("stream ended")
}

func errString(err error) string {
	if err == nil {
		return "EOF"
	}
	return err.Error()
}
