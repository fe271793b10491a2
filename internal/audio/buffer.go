// Package audio holds the sample types shared by every capture path and the
// pure conversions that turn float samples into a canonical PCM16 mono WAV.
//
// Nothing in this package performs I/O. Both capture backends and the upload
// path go through FloatToInt16 and PackWAV, so there is exactly one encoder.
package audio

import "time"

// DefaultSampleRate is the canonical output rate in Hz.
const DefaultSampleRate = 16000

// Buffer is a block of interleaved float32 samples in [-1, 1].
// A Buffer handed to the converter must not be modified afterwards.
type Buffer struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Chunk is one block delivered by a live capture backend. The receiver owns
// Samples; the producer must not touch the slice after sending it.
type Chunk struct {
	Seq     uint64
	Samples []float32
}

// Concat joins chunks in the order given into one contiguous slice.
func Concat(chunks []Chunk) []float32 {
	total := 0
	for _, c := range chunks {
		total += len(c.Samples)
	}
	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c.Samples...)
	}
	return out
}
