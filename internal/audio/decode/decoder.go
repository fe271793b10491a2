package decode

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"github.com/chaz8081/murmurcap/internal/audio"
)

// Container identifies an audio container format.
type Container string

const (
	ContainerUnknown Container = ""
	ContainerWAV     Container = "wav"
	ContainerFLAC    Container = "flac"
	ContainerOgg     Container = "ogg"
	ContainerMP3     Container = "mp3"
)

// MIMEType returns the canonical MIME type for the container.
func (c Container) MIMEType() string {
	switch c {
	case ContainerWAV:
		return "audio/wav"
	case ContainerFLAC:
		return "audio/flac"
	case ContainerOgg:
		return "audio/ogg"
	case ContainerMP3:
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

// Blob is an opaque encoded payload tagged with its MIME type.
type Blob struct {
	Data     []byte
	MIMEType string
}

// DecodeError reports input that could not be parsed as audio.
type DecodeError struct {
	Container Container
	Reason    string
	Err       error
}

func (e *DecodeError) Error() string {
	name := string(e.Container)
	if name == "" {
		name = "audio"
	}
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %s: %v", name, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode: %s: %s", name, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var decoders = map[Container]func([]byte) (audio.Buffer, error){
	ContainerWAV:  decodeWAV,
	ContainerFLAC: decodeFLAC,
	ContainerOgg:  decodeVorbis,
	ContainerMP3:  decodeMP3,
}

// Decode parses blob into an interleaved sample buffer at the source's own
// rate and channel count.
func Decode(blob Blob) (audio.Buffer, error) {
	if len(blob.Data) == 0 {
		return audio.Buffer{}, &DecodeError{Reason: "empty input"}
	}

	c := FromMIMEType(blob.MIMEType)
	if c == ContainerUnknown {
		c = Sniff(blob.Data)
	}
	dec, ok := decoders[c]
	if !ok {
		return audio.Buffer{}, &DecodeError{Reason: fmt.Sprintf("unrecognised container %q", blob.MIMEType)}
	}

	buf, err := dec(blob.Data)
	if err != nil {
		return audio.Buffer{}, err
	}
	if buf.Channels <= 0 || buf.SampleRate <= 0 {
		return audio.Buffer{}, &DecodeError{Container: c, Reason: "stream declares no audio format"}
	}
	return buf, nil
}

// FromMIMEType maps a MIME type, with or without parameters, to a container.
func FromMIMEType(contentType string) Container {
	if contentType == "" {
		return ContainerUnknown
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch mt {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return ContainerWAV
	case "audio/flac", "audio/x-flac":
		return ContainerFLAC
	case "audio/ogg", "application/ogg", "audio/vorbis":
		return ContainerOgg
	case "audio/mpeg", "audio/mp3", "audio/mpeg3":
		return ContainerMP3
	}
	return ContainerUnknown
}

// FromExtension maps a file extension such as ".flac" to a container.
func FromExtension(ext string) Container {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav", "wave":
		return ContainerWAV
	case "flac":
		return ContainerFLAC
	case "ogg", "oga":
		return ContainerOgg
	case "mp3":
		return ContainerMP3
	}
	return ContainerUnknown
}

// Sniff guesses the container from the leading magic bytes.
func Sniff(data []byte) Container {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return ContainerWAV
	case bytes.HasPrefix(data, []byte("fLaC")):
		return ContainerFLAC
	case bytes.HasPrefix(data, []byte("OggS")):
		return ContainerOgg
	case bytes.HasPrefix(data, []byte("ID3")):
		return ContainerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ContainerMP3
	}
	return ContainerUnknown
}

// scaleInt maps a signed integer sample of the given bit depth to [-1, 1].
func scaleInt(v int, bits int) float32 {
	if bits == 16 {
		return audio.Int16ToFloat(int16(v))
	}
	if bits <= 0 || bits > 32 {
		return 0
	}
	return float32(float64(v) / float64(int64(1)<<(bits-1)))
}
