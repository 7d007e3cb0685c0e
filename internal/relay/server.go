// Package relay implements the receiving half of netmic: a TCP server that
// relays inbound audio bytes into the named pipe feeding the virtual
// microphone.
//
// The pipe models a single physical microphone with one reader, so the
// server admits at most one relay session at a time. A second connection
// while a session holds the microphone is refused immediately — interleaved
// writers would corrupt the unframed byte stream.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kzeller/netmic/internal/config"
	"github.com/kzeller/netmic/internal/observe"
)

// ErrBusy signals that a relay session already holds the microphone.
var ErrBusy = errors.New("relay: microphone busy")

// SinkOpener opens the single-consumer byte sink that feeds the virtual
// device. The production implementation opens the named pipe; tests use a
// plain file.
type SinkOpener interface {
	OpenSink(ctx context.Context) (io.WriteCloser, error)
}

// FIFOSink opens the named pipe at Path for writing. A FIFO has no writer
// slot until the audio server holds the read end open, so the open polls
// until a reader appears or ctx is cancelled.
type FIFOSink struct {
	Path string
}

// fifoRetryInterval is how often a reader-less pipe open is retried.
const fifoRetryInterval = 50 * time.Millisecond

// OpenSink implements [SinkOpener]. A missing pipe is a hard error: it
// means setup never ran or something removed the pipe underneath us.
// With no reader on the pipe (degraded mode), the open waits on ctx
// instead of parking the goroutine in an uninterruptible syscall.
func (f *FIFOSink) OpenSink(ctx context.Context) (io.WriteCloser, error) {
	if _, err := os.Stat(f.Path); err != nil {
		return nil, fmt.Errorf("relay: audio pipe does not exist at %s: %w", f.Path, err)
	}
	for {
		fd, err := unix.Open(f.Path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			// The descriptor stays non-blocking so the runtime poller owns
			// it: writes park the goroutine, and a concurrent Close from
			// the shutdown hook interrupts them.
			return os.NewFile(uintptr(fd), f.Path), nil
		}
		if err != unix.ENXIO {
			return nil, fmt.Errorf("relay: open audio pipe %s: %w", f.Path, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("relay: open audio pipe %s: %w", f.Path, ctx.Err())
		case <-time.After(fifoRetryInterval):
		}
	}
}

// ServerConfig configures a [Server].
type ServerConfig struct {
	// Addr is the host:port to bind.
	Addr string

	// BufferSize is the socket read buffer in bytes, validated against
	// [config.ValidateBufferSize].
	BufferSize int

	// Sink opens the byte sink for each admitted session.
	Sink SinkOpener

	// Metrics receives relay instrumentation. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server accepts inbound connections and relays their bytes into the sink,
// one session at a time.
type Server struct {
	addr       string
	bufferSize int
	sink       SinkOpener
	metrics    *observe.Metrics
	log        *slog.Logger

	mu     sync.Mutex
	active bool

	wg sync.WaitGroup
}

// NewServer creates a Server, validating the buffer size up front — an
// invalid buffer size is a fatal configuration error, not something to
// discover mid-session.
func NewServer(cfg ServerConfig) (*Server, error) {
	if _, err := config.ValidateBufferSize(cfg.BufferSize); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		addr:       cfg.Addr,
		bufferSize: cfg.BufferSize,
		sink:       cfg.Sink,
		metrics:    metrics,
		log:        slog.With("component", "relay"),
	}, nil
}

// ListenAndServe binds the configured address and serves until ctx is
// cancelled. Bind failure is fatal.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("relay: bind %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr, "buffer_size", s.bufferSize)
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Exposed separately
// so tests can inject a listener on an ephemeral port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Sessions get their own context so a fatal accept error can wind them
	// down; Serve never returns with a session still relaying.
	sctx, cancelSessions := context.WithCancel(ctx)
	// Closing the listener is what actually unblocks Accept on cancel.
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer s.wg.Wait()
	defer cancelSessions()
	defer ln.Close()
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("relay: accept: %w", err)
		}

		if !s.tryAcquire() {
			s.log.Warn("refusing connection",
				"remote", conn.RemoteAddr().String(),
				"error", ErrBusy,
			)
			s.metrics.SessionsRefused.Add(ctx, 1)
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			s.runSession(sctx, conn)
		}()
	}
}

// tryAcquire claims the exclusive session lease. It reports false when a
// session already holds it.
func (s *Server) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// Active reports whether a relay session currently holds the microphone.
func (s *Server) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
