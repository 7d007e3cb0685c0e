// Package audio defines the PCM types and sample-format conversions used by
// the netmic streaming pipeline.
//
// The wire representation is always interleaved signed 16-bit little-endian
// PCM ("S16LE"). Capture devices may negotiate other sample formats; the
// encode functions in this package normalise them before anything touches
// the network.
package audio

import (
	"fmt"
	"time"
)

// SampleFormat identifies the element type of a PCM stream.
type SampleFormat string

const (
	// S16LE is signed 16-bit little-endian PCM, the canonical wire format.
	S16LE SampleFormat = "s16le"

	// F32LE is 32-bit floating point little-endian PCM, common on capture
	// devices that do their own mixing.
	F32LE SampleFormat = "f32le"
)

// IsValid reports whether f is a recognised sample format.
func (f SampleFormat) IsValid() bool {
	return f == S16LE || f == F32LE
}

// Config describes the negotiated format of an audio stream. It is built
// once from capture-device negotiation (or defaults) and treated as
// immutable for the lifetime of the session.
type Config struct {
	// SampleRate in Hz (e.g. 44100, 48000). Must be > 0.
	SampleRate int

	// Channels is the interleaved channel count. Must be >= 1.
	Channels int

	// Format is the sample element type.
	Format SampleFormat
}

// DefaultConfig returns the fixed wire-side stream configuration:
// 44100 Hz stereo S16LE. The virtual microphone on the receiving host is
// registered with exactly this format.
func DefaultConfig() Config {
	return Config{
		SampleRate: 44100,
		Channels:   2,
		Format:     S16LE,
	}
}

// Validate checks the Config invariants: positive sample rate, at least one
// channel, and a known sample format.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels < 1 {
		return fmt.Errorf("audio: channel count must be >= 1, got %d", c.Channels)
	}
	if !c.Format.IsValid() {
		return fmt.Errorf("audio: unknown sample format %q", c.Format)
	}
	return nil
}

// Wire returns the format of c as seen past the normaliser. Sample rate and
// channel count are preserved; the element type is always S16LE.
func (c Config) Wire() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// Format describes the sample rate and channel count of an S16LE PCM stream.
// Unlike [Config] it carries no element type: everything past the normaliser
// is S16LE by construction.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable description, e.g. "44100Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Frame is one chunk of S16LE PCM flowing through the pipeline, tagged with
// its format so converters can coerce it. Frame boundaries are a sender-side
// convenience only; the wire protocol is an unframed byte stream.
type Frame struct {
	// Data is interleaved S16LE PCM.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}
