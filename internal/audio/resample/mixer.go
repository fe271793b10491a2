package resample

import "github.com/chaz8081/murmurcap/internal/audio"

// MixToMono averages all channels of each frame into one sample.
// A buffer that is already mono is returned as is.
func MixToMono(buf audio.Buffer) audio.Buffer {
	if buf.Channels <= 1 {
		return buf
	}

	frames := buf.Frames()
	out := make([]float32, frames)
	ch := buf.Channels
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * ch
		for c := 0; c < ch; c++ {
			sum += float64(buf.Samples[base+c])
		}
		out[i] = float32(sum / float64(ch))
	}

	return audio.Buffer{
		Samples:    out,
		Channels:   1,
		SampleRate: buf.SampleRate,
	}
}
