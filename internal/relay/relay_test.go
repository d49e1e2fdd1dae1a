package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	hub "github.com/beaconhub/beacon/internal"
	"github.com/beaconhub/beacon/internal/config"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []hub.Event
}

func (c *capturePublisher) PublishEvent(_ string, ev hub.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capturePublisher) snapshot() []hub.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hub.Event(nil), c.events...)
}

func TestBackoffBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.RelayConfig
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "zero min is clamped, never hot-loops",
			cfg:     config.RelayConfig{MinBackoff: 0, MaxBackoff: 10 * time.Second},
			wantMin: time.Second,
			wantMax: 10 * time.Second,
		},
		{
			name:    "negative min is clamped",
			cfg:     config.RelayConfig{MinBackoff: -time.Second, MaxBackoff: 10 * time.Second},
			wantMin: time.Second,
			wantMax: 10 * time.Second,
		},
		{
			name:    "unset max defaults above min",
			cfg:     config.RelayConfig{MinBackoff: 2 * time.Second},
			wantMin: 2 * time.Second,
			wantMax: 30 * time.Second,
		},
		{
			name:    "max never drops below min",
			cfg:     config.RelayConfig{MinBackoff: time.Minute, MaxBackoff: time.Second},
			wantMin: time.Minute,
			wantMax: time.Minute,
		},
		{
			name:    "sane window passes through",
			cfg:     config.RelayConfig{MinBackoff: 500 * time.Millisecond, MaxBackoff: 8 * time.Second},
			wantMin: 500 * time.Millisecond,
			wantMax: 8 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotMin, gotMax := backoffBounds(tt.cfg)
			if gotMin != tt.wantMin || gotMax != tt.wantMax {
				t.Errorf("backoffBounds(%+v) = (%s, %s), want (%s, %s)",
					tt.cfg, gotMin, gotMax, tt.wantMin, tt.wantMax)
			}
			if gotMin <= 0 {
				t.Errorf("normalized min %s would hot-loop the doubling", gotMin)
			}
		})
	}
}

func TestRelayRepublishesUpstreamEvents(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w,
			": hello\n"+
				"event: order\ndata: first\n\n"+
				"data: bare payload\n\n"+
				"event: multi\ndata: a\ndata: b\n\n",
		)
	}))
	defer upstream.Close()

	pub := &capturePublisher{}
	r := New(config.RelayConfig{
		URL:        upstream.URL,
		Channel:    "upstream",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	}, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	want := []hub.Event{
		{Name: "order", Data: "first"},
		{Name: "event", Data: "bare payload"},
		{Name: "multi", Data: "a\nb"},
	}
	deadline := time.After(5 * time.Second)
	for len(pub.snapshot()) < len(want) {
		select {
		case <-deadline:
			t.Fatalf("got %d events, want %d", len(pub.snapshot()), len(want))
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	got := pub.snapshot()[:len(want)]
	for i, ev := range want {
		if got[i] != ev {
			t.Errorf("event[%d] = %+v, want %+v", i, got[i], ev)
		}
	}
}

func TestRelayReconnects(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	connects := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		connects++
		n := connects
		mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "event: ping\ndata: %d\n\n", n)
		// Handler returns: upstream closes the stream, forcing a reconnect.
	}))
	defer upstream.Close()

	pub := &capturePublisher{}
	r := New(config.RelayConfig{
		URL:        upstream.URL,
		Channel:    "upstream",
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: 10 * time.Millisecond,
	}, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for len(pub.snapshot()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("saw %d events across reconnects, want at least 3", len(pub.snapshot()))
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestRelayAuthInjectsBearer(t *testing.T) {
	t.Parallel()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	sawAuth := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sawAuth <- r.Header.Get("Authorization"):
		default:
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	r := New(config.RelayConfig{
		URL:        upstream.URL,
		Channel:    "upstream",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		Auth: config.RelayAuth{
			TokenURL:     tokenSrv.URL,
			ClientID:     "beacon",
			ClientSecret: "secret",
		},
	}, &capturePublisher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	select {
	case auth := <-sawAuth:
		if auth != "Bearer tok-123" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer tok-123")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("upstream never saw a request")
	}
}
