package audio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/kzeller/netmic/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian bytes.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestEncodeFloat32(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want []int16
	}{
		{"silence", []float32{0}, []int16{0}},
		{"full scale positive", []float32{1.0}, []int16{32767}},
		{"full scale negative", []float32{-1.0}, []int16{-32767}},
		{"half scale", []float32{0.5}, []int16{16383}},
		{"clamps above range", []float32{1.5}, []int16{32767}},
		{"clamps below range", []float32{-1.5}, []int16{-32767}},
		{"clamps positive infinity", []float32{float32(math.Inf(1))}, []int16{32767}},
		{"clamps negative infinity", []float32{float32(math.Inf(-1))}, []int16{-32767}},
		{"nan is silence", []float32{float32(math.NaN())}, []int16{0}},
		{"mixed", []float32{-1.0, 0, 1.0}, []int16{-32767, 0, 32767}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bytesToSamples(audio.EncodeFloat32(tt.in))
			if len(got) != len(tt.want) {
				t.Fatalf("length mismatch: got %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEncodeFloat32_InRangeTruncation(t *testing.T) {
	// Scaled values truncate toward zero rather than rounding.
	for _, x := range []float32{0.1, 0.33, 0.9999, -0.1, -0.75} {
		got := bytesToSamples(audio.EncodeFloat32([]float32{x}))[0]
		want := int16(float64(x) * 32767)
		if got != want {
			t.Errorf("x=%v: got %d, want %d", x, got, want)
		}
	}
}

func TestEncodeUint16(t *testing.T) {
	in := []uint16{0, 1, 32767, 32768, 32769, 65535}
	want := []int16{-32768, -32767, -1, 0, 1, 32767}
	got := bytesToSamples(audio.EncodeUint16(in))
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("u=%d: got %d, want %d", in[i], got[i], want[i])
		}
	}
}

func TestEncodeInt16_Passthrough(t *testing.T) {
	in := []int16{-32768, -1, 0, 1, 32767}
	got := audio.EncodeInt16(in)
	if !bytes.Equal(got, samplesToBytes(in)) {
		t.Errorf("passthrough not byte-identical: got % x, want % x", got, samplesToBytes(in))
	}
}

func TestEncode_EmptyInput(t *testing.T) {
	if got := audio.EncodeFloat32(nil); len(got) != 0 {
		t.Errorf("EncodeFloat32(nil): got %d bytes, want 0", len(got))
	}
	if got := audio.EncodeUint16([]uint16{}); len(got) != 0 {
		t.Errorf("EncodeUint16(empty): got %d bytes, want 0", len(got))
	}
	if got := audio.EncodeInt16(nil); len(got) != 0 {
		t.Errorf("EncodeInt16(nil): got %d bytes, want 0", len(got))
	}
}

func TestEncode_OutputLength(t *testing.T) {
	// Every sample becomes exactly two bytes.
	if got := audio.EncodeFloat32(make([]float32, 441)); len(got) != 882 {
		t.Errorf("EncodeFloat32: got %d bytes, want 882", len(got))
	}
	if got := audio.EncodeUint16(make([]uint16, 441)); len(got) != 882 {
		t.Errorf("EncodeUint16: got %d bytes, want 882", len(got))
	}
}

func TestBufferBytes(t *testing.T) {
	f := audio.Buffer{Float32: []float32{1.0}}
	if got := bytesToSamples(f.Bytes()); got[0] != 32767 {
		t.Errorf("float buffer: got %d, want 32767", got[0])
	}
	i := audio.Buffer{Int16: []int16{-42}}
	if got := bytesToSamples(i.Bytes()); got[0] != -42 {
		t.Errorf("int16 buffer: got %d, want -42", got[0])
	}
	u := audio.Buffer{Uint16: []uint16{32768}}
	if got := bytesToSamples(u.Bytes()); got[0] != 0 {
		t.Errorf("uint16 buffer: got %d, want 0", got[0])
	}
	var empty audio.Buffer
	if got := empty.Bytes(); got == nil || len(got) != 0 {
		t.Errorf("empty buffer: got %v, want empty slice", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := audio.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	bad := []audio.Config{
		{SampleRate: 0, Channels: 2, Format: audio.S16LE},
		{SampleRate: 44100, Channels: 0, Format: audio.S16LE},
		{SampleRate: 44100, Channels: 2, Format: "u8"},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("config %+v should not validate", c)
		}
	}
}
