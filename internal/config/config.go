// Package config provides the configuration schema, defaults, loader, and
// validation helpers for netmic.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Network defaults shared by both ends of the relay.
const (
	DefaultPort       = 8080
	DefaultTargetHost = "127.0.0.1"
	DefaultBindHost   = "0.0.0.0"
)

// MaxBufferSize is the upper bound for socket read buffers (64 KiB).
const MaxBufferSize = 65536

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for netmic. It is typically
// assembled from defaults, an optional YAML file, and CLI flag overrides.
type Config struct {
	// LogLevel controls verbosity for both subcommands.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr, when non-empty, enables the debug HTTP server exposing
	// /metrics, /healthz, and /readyz on that address.
	MetricsAddr string `yaml:"metrics_addr"`

	Receiver    ReceiverConfig    `yaml:"receiver"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
}

// ReceiverConfig holds settings for the receiving (virtual microphone) side.
type ReceiverConfig struct {
	// Host is the address the relay server binds to.
	Host string `yaml:"host"`

	// Port is the TCP port the relay server listens on.
	Port int `yaml:"port"`

	// BufferSize is the socket read buffer in bytes. Valid range (0, 65536].
	BufferSize int `yaml:"buffer_size"`

	// MicrophoneName is the virtual microphone source name registered with
	// the audio control plane.
	MicrophoneName string `yaml:"microphone_name"`

	// FifoPath is where the named pipe feeding the virtual device lives.
	FifoPath string `yaml:"fifo_path"`
}

// TransmitterConfig holds settings for the capturing (sending) side.
type TransmitterConfig struct {
	// Host is the receiver address to connect to. ParseServerAddress rules
	// apply: a missing port defaults to 8080.
	Host string `yaml:"host"`

	// Port is the receiver TCP port.
	Port int `yaml:"port"`

	// BufferSize is the capture read buffer in bytes. Valid range (0, 65536].
	BufferSize int `yaml:"buffer_size"`

	// ReconnectAttempts is the retry budget for re-establishing the
	// connection after a send failure. Exhausting it is fatal.
	ReconnectAttempts int `yaml:"reconnect_attempts"`

	// QueueCapacity bounds the capture-to-sender hand-off queue in chunks.
	// When the backlog exceeds it, the oldest chunk is dropped.
	QueueCapacity int `yaml:"queue_capacity"`

	// Device selects the capture device. Empty means the system default.
	Device string `yaml:"device"`
}

// Default returns a Config populated with the stock settings: CD-quality
// relay on port 8080, 4 KiB buffers, five reconnection attempts.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Receiver: ReceiverConfig{
			Host:           DefaultBindHost,
			Port:           DefaultPort,
			BufferSize:     4096,
			MicrophoneName: "netmic_virtual_microphone",
			FifoPath:       "/tmp/netmic_audio_pipe",
		},
		Transmitter: TransmitterConfig{
			Host:              DefaultTargetHost,
			Port:              DefaultPort,
			BufferSize:        4096,
			ReconnectAttempts: 5,
			QueueCapacity:     256,
		},
	}
}

// Load reads the YAML configuration file at path, layered over [Default],
// and returns a validated Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Receiver.Port < 1 || cfg.Receiver.Port > 65535 {
		errs = append(errs, fmt.Errorf("receiver.port %d is out of range [1, 65535]", cfg.Receiver.Port))
	}
	if _, err := ValidateBufferSize(cfg.Receiver.BufferSize); err != nil {
		errs = append(errs, fmt.Errorf("receiver.buffer_size: %w", err))
	}
	if cfg.Receiver.MicrophoneName == "" {
		errs = append(errs, errors.New("receiver.microphone_name is required"))
	}
	if cfg.Receiver.FifoPath == "" {
		errs = append(errs, errors.New("receiver.fifo_path is required"))
	}

	if cfg.Transmitter.Port < 1 || cfg.Transmitter.Port > 65535 {
		errs = append(errs, fmt.Errorf("transmitter.port %d is out of range [1, 65535]", cfg.Transmitter.Port))
	}
	if _, err := ValidateBufferSize(cfg.Transmitter.BufferSize); err != nil {
		errs = append(errs, fmt.Errorf("transmitter.buffer_size: %w", err))
	}
	if cfg.Transmitter.ReconnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("transmitter.reconnect_attempts must be >= 1, got %d", cfg.Transmitter.ReconnectAttempts))
	}
	if cfg.Transmitter.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("transmitter.queue_capacity must be >= 1, got %d", cfg.Transmitter.QueueCapacity))
	}

	return errors.Join(errs...)
}

// ValidateBufferSize checks that size is usable as a socket read buffer.
// Sizes must be positive and no larger than [MaxBufferSize]. The size is
// returned unchanged on success so callers can validate inline.
func ValidateBufferSize(size int) (int, error) {
	switch {
	case size <= 0:
		return 0, errors.New("buffer size must be positive")
	case size > MaxBufferSize:
		return 0, fmt.Errorf("buffer size %d exceeds maximum %d", size, MaxBufferSize)
	}
	return size, nil
}

// ParseServerAddress normalises a user-supplied server address. A bare host
// gets the default port appended; an empty or blank address falls back to
// localhost on the default port. Addresses already carrying a port pass
// through unchanged.
func ParseServerAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Sprintf("%s:%d", DefaultTargetHost, DefaultPort)
	}
	if strings.Contains(addr, ":") {
		return addr
	}
	return fmt.Sprintf("%s:%d", addr, DefaultPort)
}
