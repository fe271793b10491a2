package decode

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/chaz8081/murmurcap/internal/audio"
)

// go-mp3 always emits 16-bit little-endian stereo.
const (
	mp3Channels    = 2
	mp3FrameBytes  = 4
	mp3SampleBytes = 2
)

func decodeMP3(data []byte) (audio.Buffer, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, &DecodeError{Container: ContainerMP3, Reason: "open mpeg stream", Err: err}
	}

	pcm, err := io.ReadAll(d)
	if err != nil && len(pcm) == 0 {
		return audio.Buffer{}, &DecodeError{Container: ContainerMP3, Reason: "decode frames", Err: err}
	}
	pcm = pcm[:len(pcm)-len(pcm)%mp3FrameBytes]
	if len(pcm) == 0 {
		return audio.Buffer{}, &DecodeError{Container: ContainerMP3, Reason: "no audio frames"}
	}

	samples := make([]float32, len(pcm)/mp3SampleBytes)
	for i := range samples {
		samples[i] = audio.Int16ToFloat(int16(binary.LittleEndian.Uint16(pcm[i*mp3SampleBytes:])))
	}

	return audio.Buffer{
		Samples:    samples,
		Channels:   mp3Channels,
		SampleRate: d.SampleRate(),
	}, nil
}
