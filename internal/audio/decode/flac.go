package decode

import (
	"bytes"
	"errors"
	"io"

	"github.com/mewkiz/flac"

	"github.com/chaz8081/murmurcap/internal/audio"
)

func decodeFLAC(data []byte) (audio.Buffer, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, &DecodeError{Container: ContainerFLAC, Reason: "parse stream info", Err: err}
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bits := int(stream.Info.BitsPerSample)

	var samples []float32
	if stream.Info.NSamples > 0 {
		samples = make([]float32, 0, int(stream.Info.NSamples)*channels)
	}

	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Recorders interrupted mid-frame leave a truncated tail.
			if len(samples) > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return audio.Buffer{}, &DecodeError{Container: ContainerFLAC, Reason: "parse frame", Err: err}
		}
		if len(frame.Subframes) < channels {
			return audio.Buffer{}, &DecodeError{Container: ContainerFLAC, Reason: "frame channel count mismatch"}
		}

		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, scaleInt(int(frame.Subframes[ch].Samples[i]), bits))
			}
		}
	}

	return audio.Buffer{
		Samples:    samples,
		Channels:   channels,
		SampleRate: int(stream.Info.SampleRate),
	}, nil
}
