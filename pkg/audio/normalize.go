package audio

import (
	"encoding/binary"
	"math"
)

// The encode functions below normalise typed capture buffers into canonical
// S16LE wire bytes. They are pure, perform no I/O, and allocate exactly the
// output (2 bytes per sample), so they are safe to call from the capture
// callback. They are explicit, type-directed serialisers — capture buffers
// are never reinterpreted through pointer aliasing.

// EncodeFloat32 converts 32-bit float samples in nominal range [-1.0, 1.0]
// to S16LE bytes. Out-of-range values (including ±Inf) clamp to the range
// bounds rather than wrapping, and NaN encodes as silence. The scaled value
// truncates toward zero, so ±1.0 maps to ±32767, never -32768.
func EncodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1.0:
			v = 1.0
		case v < -1.0:
			v = -1.0
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}

// EncodeUint16 converts unsigned 16-bit samples to S16LE bytes by shifting
// the midpoint: 0 maps to -32768, 32768 to 0, 65535 to 32767.
func EncodeUint16(samples []uint16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(int32(s)-32768)))
	}
	return out
}

// EncodeInt16 serialises signed 16-bit samples to little-endian bytes. This
// is a byte-identical passthrough of the sample values.
func EncodeInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
