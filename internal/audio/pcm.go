package audio

import "math"

// FloatToInt16 quantizes float samples to signed 16-bit PCM.
// Samples are clamped to [-1, 1]; negative values scale by 32768 and
// non-negative values by 32767, then round to the nearest integer.
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = floatToInt16(s)
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}

// Int16ToFloat is the inverse scaling of FloatToInt16.
func Int16ToFloat(s int16) float32 {
	if s < 0 {
		return float32(s) / 32768
	}
	return float32(s) / 32767
}
