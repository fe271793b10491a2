package resample

import "fmt"

// Resampler renders a complete mono signal from one sample rate to another
// using linear interpolation. It holds no state between Render calls.
type Resampler struct {
	inputRate  int
	outputRate int
}

// New creates a resampler from inputRate to outputRate.
func New(inputRate, outputRate int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("resample: rates must be positive, got %d -> %d", inputRate, outputRate)
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
	}, nil
}

// OutputLength returns ceil(n * outputRate / inputRate), the number of
// samples Render produces for n input samples.
func (r *Resampler) OutputLength(n int) int {
	if n <= 0 {
		return 0
	}
	num := int64(n) * int64(r.outputRate)
	den := int64(r.inputRate)
	return int((num + den - 1) / den)
}

// Render fills dst with src resampled to the output rate and returns dst.
// dst must hold exactly OutputLength(len(src)) samples; a nil dst is
// allocated. Positions past the last input sample hold that sample.
func (r *Resampler) Render(dst, src []float32) []float32 {
	n := r.OutputLength(len(src))
	if dst == nil {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	if n == 0 {
		return dst
	}

	if r.inputRate == r.outputRate {
		copy(dst, src)
		return dst
	}

	last := len(src) - 1
	for i := range dst {
		// Exact rational position keeps long buffers from drifting.
		num := int64(i) * int64(r.inputRate)
		idx := int(num / int64(r.outputRate))
		if idx >= last {
			dst[i] = src[last]
			continue
		}
		frac := float64(num%int64(r.outputRate)) / float64(r.outputRate)
		s0 := float64(src[idx])
		s1 := float64(src[idx+1])
		dst[i] = float32(s0 + (s1-s0)*frac)
	}
	return dst
}

// Resample converts mono samples from sourceRate to targetRate.
func Resample(mono []float32, sourceRate, targetRate int) ([]float32, error) {
	r, err := New(sourceRate, targetRate)
	if err != nil {
		return nil, err
	}
	return r.Render(nil, mono), nil
}
