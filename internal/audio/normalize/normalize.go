// Package normalize produces canonical PCM16 mono WAV files from decoded or
// captured audio. Both capture backends and the upload path funnel through
// the same mix, resample, quantize and pack sequence.
package normalize

import (
	"fmt"
	"mime"
	"strings"

	"github.com/chaz8081/murmurcap/internal/audio"
	"github.com/chaz8081/murmurcap/internal/audio/decode"
	"github.com/chaz8081/murmurcap/internal/audio/resample"
)

// ToCanonicalWAV decodes blob and re-encodes it as a canonical WAV at
// targetRate. A non-positive targetRate selects audio.DefaultSampleRate.
func ToCanonicalWAV(blob decode.Blob, targetRate int) ([]byte, error) {
	buf, err := decode.Decode(blob)
	if err != nil {
		return nil, err
	}
	return EncodeBuffer(buf, targetRate)
}

// EncodeBuffer mixes buf down to mono, resamples it to targetRate and packs
// it as a canonical WAV. It is the entry point for raw PCM that needs no
// container decode.
func EncodeBuffer(buf audio.Buffer, targetRate int) ([]byte, error) {
	if targetRate <= 0 {
		targetRate = audio.DefaultSampleRate
	}
	if buf.SampleRate <= 0 {
		return nil, &audio.EncodeError{SampleRate: buf.SampleRate, Reason: "source sample rate must be positive"}
	}

	mono := resample.MixToMono(buf)
	samples, err := resample.Resample(mono.Samples, mono.SampleRate, targetRate)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return audio.PackWAV(audio.FloatToInt16(samples), targetRate)
}

// Upload normalizes a user-supplied file. Only audio/* content types are
// accepted. Data whose bytes are already a canonical WAV at targetRate is
// returned as is; anything else, including canonical-format files with extra
// chunks or a ragged data chunk, is re-encoded.
func Upload(data []byte, contentType string, targetRate int) ([]byte, error) {
	if targetRate <= 0 {
		targetRate = audio.DefaultSampleRate
	}
	if !isAudioType(contentType) {
		return nil, &decode.DecodeError{Reason: fmt.Sprintf("content type %q is not audio", contentType)}
	}
	if audio.HasCanonicalLayout(data, targetRate) {
		return data, nil
	}
	return ToCanonicalWAV(decode.Blob{Data: data, MIMEType: contentType}, targetRate)
}

func isAudioType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "audio/")
}
