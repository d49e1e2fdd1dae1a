package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beaconhub/beacon/internal/bus"
	"github.com/beaconhub/beacon/internal/config"
	"github.com/beaconhub/beacon/internal/history"
	"github.com/beaconhub/beacon/internal/relay"
	"github.com/beaconhub/beacon/internal/server"
	"github.com/beaconhub/beacon/internal/sse"
	"github.com/beaconhub/beacon/internal/storage/sqlite"
	"github.com/beaconhub/beacon/internal/telemetry"
	"github.com/beaconhub/beacon/internal/worker"
)

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting beacon", "version", version, "addr", cfg.Server.Addr)

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(context.Background(),
			cfg.Telemetry.Tracing.Endpoint, "beacon", version, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	// Session store
	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	// Core: bus, replay buffer, heartbeat scheduler, stream manager
	b := bus.New()

	var hist *history.History
	if cfg.History.Enabled {
		hist, err = history.New(cfg.History.MaxChannels, cfg.History.PerChannel, cfg.History.IdleTTL)
		if err != nil {
			return err
		}
	}

	scheduler := sse.NewScheduler()
	manager := sse.NewManager(scheduler)

	pub := server.NewPublisher(b, hist, metrics)

	// Background workers
	var gauge worker.QueueGauge
	if metrics != nil {
		gauge = metrics.SessionQueueLen
	}
	recorder := worker.NewSessionRecorder(store, gauge)

	workers := []worker.Worker{recorder}
	if cfg.Relay.Enabled {
		workers = append(workers, relay.New(cfg.Relay, pub, metrics))
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- worker.NewRunner(workers...).Run(workerCtx)
	}()

	handler := server.New(server.Deps{
		Bus:       b,
		Publisher: pub,
		Streams:   manager,
		StreamOptions: sse.Options{
			HeartbeatInterval: cfg.Stream.HeartbeatInterval,
			OutboundCapacity:  cfg.Stream.OutboundBuffer,
			InputCapacity:     cfg.Stream.InputBuffer,
		},
		CORS:           cfg.Stream.CORS,
		History:        hist,
		Sessions:       recorder,
		SessionQueries: store,
		ReadyCheck:     store.Ping,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})

	// No WriteTimeout: SSE responses stay open indefinitely.
	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     handler,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("beacon ready", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	case err := <-workerErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Closing the bus ends every subscriber's producer, which tears down the
	// streams and unblocks their in-flight responses, so Shutdown can finish
	// inside the timeout.
	b.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Streams are gone; stop heartbeats, then let the workers drain.
	scheduler.Close()
	stopWorkers()
	if err := <-workerErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("beacon stopped")
	return nil
}
