package transmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/kzeller/netmic/internal/observe"
)

// Default sender parameters.
const (
	defaultBackoff     = 1 * time.Second
	defaultDialTimeout = 5 * time.Second
)

// ErrRetriesExhausted is returned by [Sender.Run] when the reconnection
// budget is spent. It is fatal: audio can no longer be delivered, and
// continuing silently would be misleading.
var ErrRetriesExhausted = errors.New("transmit: reconnection attempts exhausted")

// State describes the sender's connection state machine.
type State int32

const (
	// StateConnected means writes are succeeding.
	StateConnected State = iota

	// StateReconnecting means a write failed and the sender is trying to
	// re-establish the connection.
	StateReconnecting

	// StateFailed is terminal: the retry budget is exhausted.
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dialer establishes the outbound connection to the receiver. It exists as
// an interface so tests can script connection outcomes.
type Dialer interface {
	DialContext(ctx context.Context) (net.Conn, error)
}

// NetDialer dials a fixed TCP address with a timeout.
type NetDialer struct {
	// Addr is the receiver's host:port.
	Addr string

	// Timeout bounds each dial attempt. Defaults to 5s.
	Timeout time.Duration
}

// DialContext implements [Dialer].
func (d *NetDialer) DialContext(ctx context.Context) (net.Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "tcp", d.Addr)
}

// SenderConfig configures a [Sender].
type SenderConfig struct {
	// Dialer establishes connections to the receiver.
	Dialer Dialer

	// Queue is the capture-side hand-off queue to drain.
	Queue *Queue

	// MaxAttempts is the reconnection budget: the number of consecutive
	// failed dials tolerated before the sender gives up.
	MaxAttempts int

	// Backoff is the fixed delay before each reconnection attempt.
	// Defaults to 1s if zero.
	Backoff time.Duration

	// Metrics receives sender instrumentation. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Sender drains the hand-off queue and delivers every chunk, in order, to
// the remote receiver. Transient connection failures are healed by
// re-dialing under a bounded retry budget; chunks already handed to a dead
// socket are not recovered (a best-effort live stream, not a reliable log).
type Sender struct {
	dialer      Dialer
	queue       *Queue
	maxAttempts int
	backoff     time.Duration
	metrics     *observe.Metrics
	log         *slog.Logger

	state    atomic.Int32
	attempts int
}

// NewSender creates a Sender from cfg.
func NewSender(cfg SenderConfig) *Sender {
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Sender{
		dialer:      cfg.Dialer,
		queue:       cfg.Queue,
		maxAttempts: cfg.MaxAttempts,
		backoff:     backoff,
		metrics:     metrics,
		log:         slog.With("component", "sender"),
	}
}

// State returns the current connection state. Safe for concurrent use.
func (s *Sender) State() State {
	return State(s.state.Load())
}

func (s *Sender) setState(st State) {
	s.state.Store(int32(st))
}

// Run connects to the receiver and streams queued chunks until the queue is
// closed and drained, ctx is cancelled, or the retry budget is exhausted.
// The initial connection failing is a fatal setup error.
func (s *Sender) Run(ctx context.Context) error {
	conn, err := s.dialer.DialContext(ctx)
	if err != nil {
		return fmt.Errorf("transmit: connect: %w", err)
	}
	defer func() { conn.Close() }()
	s.setState(StateConnected)
	s.log.Info("connected to receiver")

	for {
		chunk, ok := s.queue.Pop(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.log.Debug("capture queue closed, sender done")
			return nil
		}
		if err := s.sendChunk(ctx, &conn, chunk); err != nil {
			return err
		}
	}
}

// sendChunk writes one chunk, reconnecting as needed. The same chunk is
// retried on every fresh connection until it is delivered or the budget
// runs out; ordering is therefore preserved for everything that reaches the
// wire.
func (s *Sender) sendChunk(ctx context.Context, conn *net.Conn, chunk []byte) error {
	for {
		_, err := (*conn).Write(chunk)
		if err == nil {
			s.attempts = 0
			s.setState(StateConnected)
			s.metrics.SentBytes.Add(ctx, int64(len(chunk)))
			return nil
		}
		s.log.Warn("send failed", "error", err)

		if err := s.reconnect(ctx, conn); err != nil {
			return err
		}
	}
}

// reconnect re-establishes the connection, sleeping the fixed backoff before
// each attempt. Consecutive dial failures count against the budget; a
// successful dial resets it.
func (s *Sender) reconnect(ctx context.Context, conn *net.Conn) error {
	s.setState(StateReconnecting)

	for s.attempts < s.maxAttempts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff):
		}

		s.log.Info("attempting reconnection",
			"attempt", s.attempts+1,
			"max_attempts", s.maxAttempts,
		)

		fresh, err := s.dialer.DialContext(ctx)
		if err == nil {
			(*conn).Close()
			*conn = fresh
			s.attempts = 0
			s.metrics.RecordReconnect(ctx, "ok")
			s.log.Info("reconnected")
			return nil
		}

		s.attempts++
		s.metrics.RecordReconnect(ctx, "error")
		s.log.Warn("reconnection attempt failed",
			"attempt", s.attempts,
			"max_attempts", s.maxAttempts,
			"error", err,
		)
	}

	s.setState(StateFailed)
	s.log.Error("reconnection budget exhausted", "max_attempts", s.maxAttempts)
	return ErrRetriesExhausted
}
