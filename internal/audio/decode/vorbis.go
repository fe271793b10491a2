package decode

import (
	"bytes"
	"errors"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/chaz8081/murmurcap/internal/audio"
)

const vorbisReadSize = 16384

func decodeVorbis(data []byte) (audio.Buffer, error) {
	r, err := oggvorbis.NewReader(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, &DecodeError{Container: ContainerOgg, Reason: "open vorbis stream", Err: err}
	}

	channels := r.Channels()
	var samples []float32
	block := make([]float32, vorbisReadSize)
	for {
		n, err := r.Read(block)
		samples = append(samples, block[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(samples) > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return audio.Buffer{}, &DecodeError{Container: ContainerOgg, Reason: "read vorbis packets", Err: err}
		}
	}

	if channels > 0 {
		samples = samples[:len(samples)-len(samples)%channels]
	}
	return audio.Buffer{
		Samples:    samples,
		Channels:   channels,
		SampleRate: r.SampleRate(),
	}, nil
}
