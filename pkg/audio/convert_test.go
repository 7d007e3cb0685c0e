package audio_test

import (
	"testing"

	"github.com/kzeller/netmic/pkg/audio"
)

func TestMonoToStereo(t *testing.T) {
	mono := samplesToBytes([]int16{100, 200, 300})
	got := bytesToSamples(audio.MonoToStereo(mono))
	want := []int16{100, 100, 200, 200, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	got := bytesToSamples(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	// Two max-positive samples must clamp to 32767, not overflow.
	stereo := samplesToBytes([]int16{32767, 32767})
	got := bytesToSamples(audio.StereoToMono(stereo))
	if len(got) != 1 || got[0] != 32767 {
		t.Errorf("got %v, want [32767]", got)
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 48000 -> 24000 halves the sample count.
	pcm := samplesToBytes(make([]int16, 480))
	out := audio.ResampleMono16(pcm, 48000, 24000)
	if len(out) != 480 {
		t.Fatalf("got %d bytes, want 480", len(out))
	}
}

func TestResampleStereo16_Upsample(t *testing.T) {
	// 24000 -> 48000 doubles the frame count; frames stay 4-byte aligned.
	pcm := samplesToBytes(make([]int16, 240))
	out := audio.ResampleStereo16(pcm, 24000, 48000)
	if len(out) != 960 {
		t.Fatalf("got %d bytes, want 960", len(out))
	}
	if len(out)%4 != 0 {
		t.Errorf("stereo output not frame aligned: %d bytes", len(out))
	}
}

func TestFormatConverter_FastPath(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 44100, Channels: 2}}
	in := audio.Frame{Data: samplesToBytes([]int16{1, 2, 3, 4}), SampleRate: 44100, Channels: 2}
	out := conv.Convert(in)
	if &out.Data[0] != &in.Data[0] {
		t.Error("matching format should return the frame unchanged")
	}
}

func TestFormatConverter_MonoToWire(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 44100, Channels: 2}}
	in := audio.Frame{Data: samplesToBytes([]int16{100, 200}), SampleRate: 44100, Channels: 1}
	out := conv.Convert(in)
	got := bytesToSamples(out.Data)
	want := []int16{100, 100, 200, 200}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
	if out.SampleRate != 44100 || out.Channels != 2 {
		t.Errorf("output format %d/%d, want 44100/2", out.SampleRate, out.Channels)
	}
}

func TestFormatConverter_OddByteCount(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 44100, Channels: 2}}
	out := conv.Convert(audio.Frame{Data: []byte{1, 2, 3}, SampleRate: 44100, Channels: 2})
	if len(out.Data) != 0 {
		t.Errorf("corrupt frame should come back empty, got %d bytes", len(out.Data))
	}
}
