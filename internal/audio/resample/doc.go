// Package resample converts captured or decoded audio into single-channel
// samples at the canonical rate.
//
// MixToMono folds any channel count down to one by arithmetic mean.
// Resample renders a mono signal through an offline Resampler whose output is
// sized to ceil(N * target / source) samples, the same sizing contract the
// browser's offline rendering context used.
//
// Example:
//
//	mono := resample.MixToMono(buf)
//	out, err := resample.Resample(mono.Samples, mono.SampleRate, 16000)
package resample
