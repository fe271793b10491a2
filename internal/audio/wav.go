package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the length of the canonical RIFF/WAVE header.
const HeaderSize = 44

const (
	formatPCM     = 1
	bitsPerSample = 16
	monoChannels  = 1
)

// canonicalHeader is the byte-exact layout PackWAV writes.
type canonicalHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data size
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // 2 * sample count
}

// EncodeError reports invalid parameters passed to the WAV encoder.
// It is a contract violation by the caller and is never retried.
type EncodeError struct {
	SampleRate int
	Reason     string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("audio: encode wav: %s (sample rate %d)", e.Reason, e.SampleRate)
}

// PackWAV wraps PCM16 mono samples in a 44-byte canonical WAV header.
// An empty sample slice produces a valid header-only file.
func PackWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, &EncodeError{SampleRate: sampleRate, Reason: "sample rate must be positive"}
	}

	dataSize := uint32(len(samples) * 2)
	blockAlign := uint16(monoChannels * bitsPerSample / 8)

	header := canonicalHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatPCM,
		NumChannels:   monoChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+int(dataSize)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("audio: write wav header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("audio: write wav data: %w", err)
	}
	return buf.Bytes(), nil
}

// Header describes the format chunk and data location of a WAV file.
type Header struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataOffset    int
	DataSize      int
}

// Canonical reports whether the header matches the canonical PCM16 mono
// layout at the given rate.
func (h *Header) Canonical(rate int) bool {
	return h.AudioFormat == formatPCM &&
		h.Channels == monoChannels &&
		h.BitsPerSample == bitsPerSample &&
		rate > 0 && h.SampleRate == uint32(rate)
}

// Samples returns the number of 16-bit samples the data chunk holds.
func (h *Header) Samples() int {
	return h.DataSize / 2
}

var (
	errNotRIFF  = errors.New("audio: not a RIFF/WAVE file")
	errNoFormat = errors.New("audio: missing fmt chunk")
	errNoData   = errors.New("audio: missing data chunk")
)

// ParseHeader walks the RIFF chunks of data and returns the format and data
// chunk location. Unknown chunks before or between "fmt " and "data" are
// skipped. A data chunk whose declared size overruns the buffer is clipped to
// the bytes actually present.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errNotRIFF
	}

	var (
		h       Header
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, fmt.Errorf("audio: fmt chunk truncated (%d bytes)", size)
			}
			h.AudioFormat = binary.LittleEndian.Uint16(data[body:])
			h.Channels = binary.LittleEndian.Uint16(data[body+2:])
			h.SampleRate = binary.LittleEndian.Uint32(data[body+4:])
			h.BitsPerSample = binary.LittleEndian.Uint16(data[body+14:])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errNoFormat
			}
			if size < 0 || body+size > len(data) {
				size = len(data) - body
			}
			h.DataOffset = body
			h.DataSize = size
			return &h, nil
		}

		next := body + size
		if size%2 == 1 {
			next++ // RIFF chunks are word aligned
		}
		if next <= pos || next > len(data) {
			break
		}
		pos = next
	}

	if !haveFmt {
		return nil, errNoFormat
	}
	return nil, errNoData
}

// IsCanonicalWAV reports whether data is already a PCM, mono, 16-bit WAV at
// exactly expectedRate. It inspects only the fmt chunk; use
// HasCanonicalLayout before passing a file through unchanged.
func IsCanonicalWAV(data []byte, expectedRate int) bool {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return false
	}
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		if id == "fmt " {
			body := pos + 8
			if size < 16 || body+16 > len(data) {
				return false
			}
			h := Header{
				AudioFormat:   binary.LittleEndian.Uint16(data[body:]),
				Channels:      binary.LittleEndian.Uint16(data[body+2:]),
				SampleRate:    binary.LittleEndian.Uint32(data[body+4:]),
				BitsPerSample: binary.LittleEndian.Uint16(data[body+14:]),
			}
			return h.Canonical(expectedRate)
		}
		next := pos + 8 + size
		if size%2 == 1 {
			next++
		}
		if next <= pos {
			return false
		}
		pos = next
	}
	return false
}

// HasCanonicalLayout reports whether data is a canonical WAV at expectedRate
// byte for byte: the canonical format, the data chunk right after a 44-byte
// header, an even data size, and RIFF and data sizes that match the length.
func HasCanonicalLayout(data []byte, expectedRate int) bool {
	if !IsCanonicalWAV(data, expectedRate) {
		return false
	}
	h, err := ParseHeader(data)
	if err != nil {
		return false
	}
	return h.DataOffset == HeaderSize &&
		h.DataSize%2 == 0 &&
		len(data) == HeaderSize+h.DataSize &&
		int(binary.LittleEndian.Uint32(data[40:44])) == h.DataSize &&
		int(binary.LittleEndian.Uint32(data[4:8])) == 36+h.DataSize
}
