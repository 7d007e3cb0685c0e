package audio

import "fmt"

// Buffer is one typed buffer of raw samples handed to the capture callback.
// Exactly one of the slices is non-nil, matching the format the capture
// device negotiated.
type Buffer struct {
	Float32 []float32
	Int16   []int16
	Uint16  []uint16
}

// Len returns the number of samples in the buffer.
func (b Buffer) Len() int {
	switch {
	case b.Float32 != nil:
		return len(b.Float32)
	case b.Int16 != nil:
		return len(b.Int16)
	case b.Uint16 != nil:
		return len(b.Uint16)
	}
	return 0
}

// Bytes normalises the buffer to canonical S16LE wire bytes. An empty buffer
// yields an empty (non-nil) slice.
func (b Buffer) Bytes() []byte {
	switch {
	case b.Float32 != nil:
		return EncodeFloat32(b.Float32)
	case b.Int16 != nil:
		return EncodeInt16(b.Int16)
	case b.Uint16 != nil:
		return EncodeUint16(b.Uint16)
	}
	return []byte{}
}

// CaptureSource is an external provider of raw microphone sample buffers.
//
// Implementations own the real-time capture context. The callback passed to
// Start runs on that context and must never block: no I/O, no unbounded
// lock waits. Anything slower than a channel hand-off belongs on the far
// side of a queue.
type CaptureSource interface {
	// Config reports the negotiated stream format. It is fixed for the
	// lifetime of the source.
	Config() Config

	// Start begins delivering capture buffers to cb until Stop is called.
	// It returns immediately once capture is running.
	Start(cb func(Buffer)) error

	// Stop ends capture and releases the device. After Stop returns no
	// further callbacks are delivered.
	Stop() error
}

// ErrNoCaptureDevice is returned by capture source constructors when no
// usable input device is available.
var ErrNoCaptureDevice = fmt.Errorf("audio: no capture device available")
