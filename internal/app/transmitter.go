package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kzeller/netmic/internal/config"
	"github.com/kzeller/netmic/internal/observe"
	"github.com/kzeller/netmic/internal/transmit"
	"github.com/kzeller/netmic/pkg/audio"
	"github.com/kzeller/netmic/pkg/audio/pulse"
)

// wireFormat is the stream format every transmitter converges on before
// bytes hit the socket: CD-quality stereo S16LE, matching the pipe source
// registered on the receiving end.
var wireFormat = audio.Format{SampleRate: 44100, Channels: 2}

// Transmitter runs the sending side: microphone capture, normalisation to
// the wire format, and ordered delivery to the receiver.
type Transmitter struct {
	cfg     *config.Config
	source  audio.CaptureSource
	queue   *transmit.Queue
	sender  *transmit.Sender
	conv    *audio.FormatConverter
	metrics *observe.Metrics
	log     *slog.Logger
}

// TransmitterOption injects test doubles into [NewTransmitter].
type TransmitterOption func(*transmitterDeps)

type transmitterDeps struct {
	source  audio.CaptureSource
	dialer  transmit.Dialer
	metrics *observe.Metrics
}

// WithCaptureSource injects a capture source instead of the parec-backed
// default.
func WithCaptureSource(s audio.CaptureSource) TransmitterOption {
	return func(d *transmitterDeps) { d.source = s }
}

// WithDialer injects a dialer instead of the TCP default.
func WithDialer(dl transmit.Dialer) TransmitterOption {
	return func(d *transmitterDeps) { d.dialer = dl }
}

// WithTransmitterMetrics injects a metrics instance.
func WithTransmitterMetrics(m *observe.Metrics) TransmitterOption {
	return func(d *transmitterDeps) { d.metrics = m }
}

// NewTransmitter wires the transmitter application from cfg.
func NewTransmitter(cfg *config.Config, opts ...TransmitterOption) (*Transmitter, error) {
	deps := &transmitterDeps{}
	for _, opt := range opts {
		opt(deps)
	}
	if deps.metrics == nil {
		deps.metrics = observe.DefaultMetrics()
	}
	if deps.source == nil {
		src, err := pulse.NewSource(pulse.SourceConfig{
			Device:   cfg.Transmitter.Device,
			ReadSize: cfg.Transmitter.BufferSize,
		})
		if err != nil {
			return nil, fmt.Errorf("app: capture source: %w", err)
		}
		deps.source = src
	}
	if deps.dialer == nil {
		// The host flag may carry its own port ("host:9000") or be blank;
		// a bare host is paired with the configured port.
		addr := cfg.Transmitter.Host
		if !strings.Contains(addr, ":") && addr != "" {
			addr = fmt.Sprintf("%s:%d", addr, cfg.Transmitter.Port)
		}
		deps.dialer = &transmit.NetDialer{Addr: config.ParseServerAddress(addr)}
	}

	queue := transmit.NewQueue(cfg.Transmitter.QueueCapacity)
	sender := transmit.NewSender(transmit.SenderConfig{
		Dialer:      deps.dialer,
		Queue:       queue,
		MaxAttempts: cfg.Transmitter.ReconnectAttempts,
		Metrics:     deps.metrics,
	})

	return &Transmitter{
		cfg:     cfg,
		source:  deps.source,
		queue:   queue,
		sender:  sender,
		conv:    &audio.FormatConverter{Target: wireFormat},
		metrics: deps.metrics,
		log:     slog.With("component", "transmitter"),
	}, nil
}

// Run starts capture and streams normalised audio to the receiver until ctx
// is cancelled or the sender's reconnection budget is exhausted.
func (t *Transmitter) Run(ctx context.Context) error {
	streamCfg := t.source.Config()
	if err := t.source.Start(t.handleBuffer(streamCfg)); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}
	t.log.Info("capture started",
		"format", string(streamCfg.Format),
		"rate", streamCfg.SampleRate,
		"channels", streamCfg.Channels,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.sender.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		// Stop capture first so nothing races new chunks into the closing
		// queue, then let the sender drain what is already buffered.
		if err := t.source.Stop(); err != nil {
			t.log.Warn("capture stop reported an error", "error", err)
		}
		t.queue.Close()
		return gctx.Err()
	})

	err := g.Wait()

	if dropped := t.queue.Dropped(); dropped > 0 {
		t.log.Warn("chunks dropped under backlog pressure", "dropped", dropped)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleBuffer returns the capture callback: normalise each buffer to S16LE
// bytes, convert to the wire format, and hand the chunk to the queue. Push
// never blocks; under backlog the oldest chunk is dropped so the stream
// stays near-live.
func (t *Transmitter) handleBuffer(streamCfg audio.Config) func(audio.Buffer) {
	start := time.Now()
	return func(b audio.Buffer) {
		data := b.Bytes()
		if len(data) == 0 {
			return
		}
		frame := t.conv.Convert(audio.Frame{
			Data:       data,
			SampleRate: streamCfg.SampleRate,
			Channels:   streamCfg.Channels,
			Timestamp:  time.Since(start),
		})
		if len(frame.Data) == 0 {
			return
		}
		before := t.queue.Dropped()
		t.queue.Push(frame.Data)
		if d := t.queue.Dropped() - before; d > 0 {
			t.metrics.DroppedChunks.Add(context.Background(), int64(d))
		}
	}
}
