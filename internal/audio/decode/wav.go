package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/go-audio/wav"

	"github.com/chaz8081/murmurcap/internal/audio"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

func decodeWAV(data []byte) (audio.Buffer, error) {
	data = patchStreamingSizes(data)

	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return audio.Buffer{}, &DecodeError{Container: ContainerWAV, Reason: "invalid RIFF/WAVE header", Err: d.Err()}
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return audio.Buffer{}, &DecodeError{Container: ContainerWAV, Reason: "unsupported sample encoding"}
	}

	bits := int(d.BitDepth)
	if bits != 8 && bits != 16 && bits != 24 && bits != 32 {
		return audio.Buffer{}, &DecodeError{Container: ContainerWAV, Reason: "unsupported bit depth"}
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return audio.Buffer{}, &DecodeError{Container: ContainerWAV, Reason: "read pcm", Err: err}
	}
	if pcm == nil {
		return audio.Buffer{}, &DecodeError{Container: ContainerWAV, Reason: "missing data chunk"}
	}

	channels := int(d.NumChans)
	n := len(pcm.Data)
	if channels > 0 {
		n -= n % channels
	}
	samples := make([]float32, n)
	for i, v := range pcm.Data[:n] {
		if bits == 8 {
			v -= 128
		}
		samples[i] = scaleInt(v, bits)
	}

	return audio.Buffer{
		Samples:    samples,
		Channels:   channels,
		SampleRate: int(d.SampleRate),
	}, nil
}

// patchStreamingSizes rewrites the RIFF and data chunk sizes of a WAV that
// was written to a pipe, where recorders leave 0 or 0xFFFFFFFF in place of
// the real lengths. A data size that ends mid-frame is cut back to whole
// frames. Well-formed input is returned unchanged.
func patchStreamingSizes(data []byte) []byte {
	h, err := audio.ParseHeader(data)
	if err != nil {
		return data
	}

	available := len(data) - h.DataOffset
	declared := int64(binary.LittleEndian.Uint32(data[h.DataOffset-4:]))
	riff := int64(binary.LittleEndian.Uint32(data[4:8]))

	size := declared
	if (declared == 0 && available > 0) || declared > int64(available) {
		size = int64(available)
	}
	if align := int64(h.Channels) * int64((h.BitsPerSample+7)/8); align > 1 {
		size -= size % align
	}
	riffSize := riff
	if riff == 0 || riff > int64(len(data)-8) {
		riffSize = int64(len(data) - 8)
	}
	if size == declared && riffSize == riff {
		return data
	}

	out := make([]byte, len(data))
	copy(out, data)
	binary.LittleEndian.PutUint32(out[4:8], uint32(riffSize))
	binary.LittleEndian.PutUint32(out[h.DataOffset-4:], uint32(size))
	return out
}
