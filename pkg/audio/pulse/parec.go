// Package pulse provides an [audio.CaptureSource] backed by the PulseAudio
// `parec` record client. The capture process is external: parec owns the
// device, netmic just drains its stdout.
package pulse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"

	"github.com/kzeller/netmic/pkg/audio"
)

// defaultReadSize is the byte size of one capture buffer handed to the
// callback when SourceConfig.ReadSize is zero.
const defaultReadSize = 4096

// SourceConfig configures a [Source].
type SourceConfig struct {
	// Device is the PulseAudio source to record from. Empty means the
	// server's default input.
	Device string

	// Stream is the negotiated capture format. Zero value means
	// [audio.DefaultConfig].
	Stream audio.Config

	// ReadSize is the byte size of each buffer read from parec. Defaults to
	// 4096.
	ReadSize int

	// Binary overrides the parec executable name, for tests.
	Binary string
}

// Source captures microphone audio by running parec and decoding its raw
// stdout into typed sample buffers.
type Source struct {
	cfg SourceConfig

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stopOnce sync.Once
	done     chan struct{}
}

// NewSource creates a Source. The parec process is not started until
// [Source.Start].
func NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.Stream == (audio.Config{}) {
		cfg.Stream = audio.DefaultConfig()
	}
	if err := cfg.Stream.Validate(); err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = defaultReadSize
	}
	if cfg.Binary == "" {
		cfg.Binary = "parec"
	}
	return &Source{cfg: cfg, done: make(chan struct{})}, nil
}

// Config implements [audio.CaptureSource].
func (s *Source) Config() audio.Config {
	return s.cfg.Stream
}

// Start implements [audio.CaptureSource]. It launches parec and decodes its
// output into typed buffers on a dedicated goroutine until Stop is called or
// the process exits.
func (s *Source) Start(cb func(audio.Buffer)) error {
	args := []string{
		"--format=" + string(s.cfg.Stream.Format),
		fmt.Sprintf("--rate=%d", s.cfg.Stream.SampleRate),
		fmt.Sprintf("--channels=%d", s.cfg.Stream.Channels),
		"--raw",
	}
	if s.cfg.Device != "" {
		args = append(args, "--device="+s.cfg.Device)
	}
	cmd := exec.Command(s.cfg.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pulse: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("pulse: start %s: %w", s.cfg.Binary, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdout = stdout
	s.mu.Unlock()

	go s.readLoop(stdout, cb)
	return nil
}

// Stop implements [audio.CaptureSource]. It terminates the parec process and
// waits for the read loop to finish.
func (s *Source) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cmd := s.cmd
		stdout := s.stdout
		s.mu.Unlock()

		if stdout != nil {
			stdout.Close()
		}
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
			// The kill makes an exit error the normal outcome of Wait;
			// only other failures are worth reporting.
			var exitErr *exec.ExitError
			if werr := cmd.Wait(); werr != nil && !errors.As(werr, &exitErr) {
				err = werr
			}
		}
		<-s.done
	})
	return err
}

// readLoop drains raw PCM from parec, decodes it to the negotiated sample
// type, and hands each buffer to cb.
func (s *Source) readLoop(r io.Reader, cb func(audio.Buffer)) {
	defer close(s.done)

	buf := make([]byte, s.cfg.ReadSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if b, ok := s.decode(buf[:n]); ok {
				cb(b)
			}
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF && err != io.ErrClosedPipe {
				slog.Warn("parec read ended", "error", err)
			}
			return
		}
	}
}

// decode converts raw little-endian bytes into a typed sample buffer.
// Trailing bytes that do not form a whole sample are discarded.
func (s *Source) decode(raw []byte) (audio.Buffer, bool) {
	switch s.cfg.Stream.Format {
	case audio.F32LE:
		n := len(raw) / 4
		if n == 0 {
			return audio.Buffer{}, false
		}
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return audio.Buffer{Float32: samples}, true
	case audio.S16LE:
		n := len(raw) / 2
		if n == 0 {
			return audio.Buffer{}, false
		}
		samples := make([]int16, n)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		return audio.Buffer{Int16: samples}, true
	}
	return audio.Buffer{}, false
}
