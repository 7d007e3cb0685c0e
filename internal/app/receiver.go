// Package app wires the netmic subsystems into runnable applications.
//
// Receiver owns the virtual microphone lifecycle and the relay server;
// Transmitter owns the capture pipeline and the sender. Both follow the same
// shape: New connects the subsystems, Run blocks until the context is
// cancelled or a fatal error occurs, and teardown happens inside Run so a
// plain context cancellation is a complete shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kzeller/netmic/internal/config"
	"github.com/kzeller/netmic/internal/health"
	"github.com/kzeller/netmic/internal/observe"
	"github.com/kzeller/netmic/internal/relay"
	"github.com/kzeller/netmic/internal/virtualmic"
)

// cleanupTimeout bounds the post-run control-plane teardown. Cleanup shells
// out to the control plane, so it gets its own deadline independent of the
// already-cancelled run context.
const cleanupTimeout = 10 * time.Second

// Receiver runs the receiving side: virtual microphone setup, the TCP relay
// server, and an optional debug HTTP server.
type Receiver struct {
	cfg     *config.Config
	mic     *virtualmic.Manager
	server  *relay.Server
	metrics *observe.Metrics
	log     *slog.Logger
}

// ReceiverOption injects test doubles into [NewReceiver].
type ReceiverOption func(*receiverDeps)

type receiverDeps struct {
	controlPlane virtualmic.ControlPlane
	sink         relay.SinkOpener
	metrics      *observe.Metrics
}

// WithControlPlane injects an audio control-plane client instead of the
// default pactl-backed one.
func WithControlPlane(cp virtualmic.ControlPlane) ReceiverOption {
	return func(d *receiverDeps) { d.controlPlane = cp }
}

// WithSinkOpener injects a sink opener instead of the FIFO-backed default.
func WithSinkOpener(s relay.SinkOpener) ReceiverOption {
	return func(d *receiverDeps) { d.sink = s }
}

// WithReceiverMetrics injects a metrics instance, for tests that assert on
// recorded values.
func WithReceiverMetrics(m *observe.Metrics) ReceiverOption {
	return func(d *receiverDeps) { d.metrics = m }
}

// NewReceiver wires the receiver application from cfg.
func NewReceiver(cfg *config.Config, opts ...ReceiverOption) (*Receiver, error) {
	deps := &receiverDeps{}
	for _, opt := range opts {
		opt(deps)
	}
	if deps.controlPlane == nil {
		deps.controlPlane = &virtualmic.PactlClient{}
	}
	if deps.sink == nil {
		deps.sink = &relay.FIFOSink{Path: cfg.Receiver.FifoPath}
	}
	if deps.metrics == nil {
		deps.metrics = observe.DefaultMetrics()
	}

	cp := virtualmic.Instrument(deps.controlPlane, deps.metrics)
	mic := virtualmic.NewManager(cfg.Receiver.MicrophoneName, cfg.Receiver.FifoPath, cp)

	server, err := relay.NewServer(relay.ServerConfig{
		Addr:       fmt.Sprintf("%s:%d", cfg.Receiver.Host, cfg.Receiver.Port),
		BufferSize: cfg.Receiver.BufferSize,
		Sink:       deps.sink,
		Metrics:    deps.metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Receiver{
		cfg:     cfg,
		mic:     mic,
		server:  server,
		metrics: deps.metrics,
		log:     slog.With("component", "receiver"),
	}, nil
}

// Run sets up the virtual microphone, serves the relay until ctx is
// cancelled, and tears the microphone down afterwards.
//
// A control-plane refusal during setup is degraded, not fatal: the relay
// still runs and fills the pipe, leaving device wiring to the operator.
// Teardown failures are logged, never returned; by then the run outcome is
// already decided.
func (r *Receiver) Run(ctx context.Context) error {
	result, err := r.mic.Setup(ctx)
	if err != nil {
		return fmt.Errorf("app: virtual microphone setup: %w", err)
	}
	switch result {
	case virtualmic.ResultSuccess:
		r.log.Info("virtual microphone ready",
			"source", r.cfg.Receiver.MicrophoneName,
			"pipe", r.cfg.Receiver.FifoPath,
		)
	case virtualmic.ResultFailed:
		r.log.Warn("running degraded: pipe exists but the audio server did not register it",
			"pipe", r.cfg.Receiver.FifoPath,
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.server.ListenAndServe(gctx)
	})
	if r.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return r.serveDebug(gctx)
		})
	}

	runErr := g.Wait()
	r.teardown()

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// teardown unloads the microphone module and removes the pipe, best effort.
func (r *Receiver) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	unloaded, err := r.mic.Cleanup(ctx)
	if err != nil {
		r.log.Warn("virtual microphone cleanup failed", "error", err)
	} else if unloaded {
		r.log.Info("virtual microphone removed")
	}
	if err := r.mic.RemovePipe(); err != nil {
		r.log.Warn("pipe removal failed", "error", err)
	}
}

// serveDebug runs the debug HTTP server exposing /metrics, /healthz, and
// /readyz until ctx is cancelled.
func (r *Receiver) serveDebug(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(r.healthCheckers()...).Register(mux)

	srv := &http.Server{Addr: r.cfg.MetricsAddr, Handler: mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	r.log.Info("debug server listening", "addr", r.cfg.MetricsAddr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.log.Warn("debug server shutdown failed", "error", err)
		}
		return ctx.Err()
	case err := <-errc:
		return fmt.Errorf("app: debug server: %w", err)
	}
}

// healthCheckers builds the readiness probes: the pipe must exist, and the
// virtual microphone module should be registered with the audio server.
func (r *Receiver) healthCheckers() []health.Checker {
	return []health.Checker{
		{
			Name: "pipe",
			Check: func(context.Context) error {
				if _, err := os.Stat(r.cfg.Receiver.FifoPath); err != nil {
					return fmt.Errorf("pipe missing: %w", err)
				}
				return nil
			},
		},
		{
			Name: "virtual-mic",
			Check: func(ctx context.Context) error {
				_, found, err := r.mic.Find(ctx)
				if err != nil {
					return err
				}
				if !found {
					return errors.New("module not loaded")
				}
				return nil
			},
		},
	}
}
