package audio

import (
	"math"
	"testing"
	"time"
)

func TestFloatToInt16(t *testing.T) {
	tests := []struct {
		name  string
		input float32
		want  int16
	}{
		{"zero", 0, 0},
		{"full positive", 1, 32767},
		{"full negative", -1, -32768},
		{"clip positive", 1.5, 32767},
		{"clip negative", -3, -32768},
		{"half positive", 0.5, 16384}, // 16383.5 rounds away from zero
		{"half negative", -0.5, -16384},
		{"small positive", 0.0001, 3},
		{"small negative", -0.0001, -3},
		{"nan", float32(math.NaN()), 0},
		{"positive inf", float32(math.Inf(1)), 32767},
		{"negative inf", float32(math.Inf(-1)), -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FloatToInt16([]float32{tt.input})
			if got[0] != tt.want {
				t.Errorf("FloatToInt16(%v) = %d, want %d", tt.input, got[0], tt.want)
			}
		})
	}
}

func TestFloatToInt16Requantization(t *testing.T) {
	// A float derived from an int16 must quantize back to the same integer.
	for v := -32768; v <= 32767; v += 7 {
		f := Int16ToFloat(int16(v))
		got := FloatToInt16([]float32{f})[0]
		if int(got) != v {
			t.Fatalf("requantize %d -> %v -> %d", v, f, got)
		}
	}
	for _, v := range []int16{-32768, 32767, -1, 0, 1} {
		got := FloatToInt16([]float32{Int16ToFloat(v)})[0]
		if d := int(got) - int(v); d < -1 || d > 1 {
			t.Errorf("boundary %d requantized to %d", v, got)
		}
	}
}

func TestFloatToInt16Empty(t *testing.T) {
	if got := FloatToInt16(nil); len(got) != 0 {
		t.Errorf("FloatToInt16(nil) returned %d samples", len(got))
	}
}

func TestConcatPreservesOrder(t *testing.T) {
	chunks := []Chunk{
		{Seq: 0, Samples: []float32{1, 2}},
		{Seq: 1, Samples: nil},
		{Seq: 2, Samples: []float32{3}},
		{Seq: 3, Samples: []float32{4, 5, 6}},
	}
	got := Concat(chunks)
	want := []float32{1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("Concat() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Concat()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBufferFramesAndDuration(t *testing.T) {
	b := Buffer{Samples: make([]float32, 88200*2), Channels: 2, SampleRate: 44100}
	if b.Frames() != 88200 {
		t.Errorf("Frames() = %d, want 88200", b.Frames())
	}
	if b.Duration() != 2*time.Second {
		t.Errorf("Duration() = %v, want 2s", b.Duration())
	}

	var zero Buffer
	if zero.Frames() != 0 || zero.Duration() != 0 {
		t.Error("zero Buffer should have no frames and no duration")
	}
}
