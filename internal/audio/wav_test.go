package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-audio/wav"
)

func TestPackWAVSizes(t *testing.T) {
	tests := []struct {
		name    string
		samples int
		rate    int
	}{
		{"empty", 0, 16000},
		{"one sample", 1, 16000},
		{"odd count", 101, 8000},
		{"one second", 44100, 44100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := PackWAV(make([]int16, tt.samples), tt.rate)
			if err != nil {
				t.Fatalf("PackWAV() error = %v", err)
			}
			if len(data) != HeaderSize+2*tt.samples {
				t.Errorf("len = %d, want %d", len(data), HeaderSize+2*tt.samples)
			}
			dataSize := binary.LittleEndian.Uint32(data[40:44])
			if dataSize != uint32(2*tt.samples) {
				t.Errorf("data size = %d, want %d", dataSize, 2*tt.samples)
			}
			riffSize := binary.LittleEndian.Uint32(data[4:8])
			if riffSize != 36+dataSize {
				t.Errorf("riff size = %d, want %d", riffSize, 36+dataSize)
			}
			if dataSize%2 != 0 {
				t.Errorf("data size %d is odd", dataSize)
			}
		})
	}
}

func TestPackWAVHeaderLayout(t *testing.T) {
	data, err := PackWAV([]int16{1, -2}, 16000)
	if err != nil {
		t.Fatalf("PackWAV() error = %v", err)
	}

	want := []byte{
		'R', 'I', 'F', 'F', 40, 0, 0, 0, 'W', 'A', 'V', 'E',
		'f', 'm', 't', ' ', 16, 0, 0, 0,
		1, 0, // PCM
		1, 0, // mono
		0x80, 0x3E, 0, 0, // 16000
		0x00, 0x7D, 0, 0, // 32000 byte rate
		2, 0, // block align
		16, 0, // bits
		'd', 'a', 't', 'a', 4, 0, 0, 0,
		0x01, 0x00, 0xFE, 0xFF,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("PackWAV() =\n% x\nwant\n% x", data, want)
	}
}

func TestPackWAVInvalidRate(t *testing.T) {
	for _, rate := range []int{0, -1, -44100} {
		_, err := PackWAV([]int16{1, 2, 3}, rate)
		var encErr *EncodeError
		if !errors.As(err, &encErr) {
			t.Fatalf("PackWAV(rate=%d) error = %v, want *EncodeError", rate, err)
		}
		if encErr.SampleRate != rate {
			t.Errorf("EncodeError.SampleRate = %d, want %d", encErr.SampleRate, rate)
		}
	}
}

func TestPackWAVDecodesAsMono(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	data, err := PackWAV(samples, 22050)
	if err != nil {
		t.Fatalf("PackWAV() error = %v", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		t.Fatal("go-audio/wav rejected the file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error = %v", err)
	}
	if buf.Format.NumChannels != 1 {
		t.Errorf("channels = %d, want 1", buf.Format.NumChannels)
	}
	if buf.Format.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050", buf.Format.SampleRate)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	for i, s := range samples {
		if buf.Data[i] != int(s) {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], s)
		}
	}
}

func TestIsCanonicalWAV(t *testing.T) {
	data, err := PackWAV(make([]int16, 160), 16000)
	if err != nil {
		t.Fatalf("PackWAV() error = %v", err)
	}

	if !IsCanonicalWAV(data, 16000) {
		t.Error("IsCanonicalWAV(16000) = false, want true")
	}
	if IsCanonicalWAV(data, 44100) {
		t.Error("IsCanonicalWAV(44100) = true, want false")
	}
}

// withChunk inserts an extra RIFF chunk between the WAVE tag and "fmt ".
func withChunk(t *testing.T, wavData []byte, id string, body []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	out.Write(wavData[:12])
	out.WriteString(id)
	_ = binary.Write(&out, binary.LittleEndian, uint32(len(body)))
	out.Write(body)
	if len(body)%2 == 1 {
		out.WriteByte(0)
	}
	out.Write(wavData[12:])
	b := out.Bytes()
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(b)-8))
	return b
}

func TestIsCanonicalWAVSkipsLeadingChunks(t *testing.T) {
	data, err := PackWAV(make([]int16, 16), 16000)
	if err != nil {
		t.Fatalf("PackWAV() error = %v", err)
	}
	padded := withChunk(t, data, "LIST", []byte("INFOISFT\x03\x00\x00\x00go\x00"))

	if !IsCanonicalWAV(padded, 16000) {
		t.Error("IsCanonicalWAV should find fmt after a LIST chunk")
	}

	h, err := ParseHeader(padded)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if h.Samples() != 16 {
		t.Errorf("Samples() = %d, want 16", h.Samples())
	}
}

func TestIsCanonicalWAVRejects(t *testing.T) {
	mono, _ := PackWAV(make([]int16, 8), 16000)

	stereo := append([]byte(nil), mono...)
	binary.LittleEndian.PutUint16(stereo[22:24], 2)

	float := append([]byte(nil), mono...)
	binary.LittleEndian.PutUint16(float[20:22], 3)

	eightBit := append([]byte(nil), mono...)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("RIFF")},
		{"not wave", append([]byte("RIFF\x00\x00\x00\x00AVI "), mono[12:]...)},
		{"stereo", stereo},
		{"float format", float},
		{"8-bit", eightBit},
		{"fmt truncated", mono[:30]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsCanonicalWAV(tt.data, 16000) {
				t.Errorf("IsCanonicalWAV() = true, want false")
			}
		})
	}
}

func TestParseHeaderClipsStreamingSize(t *testing.T) {
	data, _ := PackWAV(make([]int16, 10), 16000)
	binary.LittleEndian.PutUint32(data[40:44], 0xFFFFFFFF)

	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if h.DataSize != 20 {
		t.Errorf("DataSize = %d, want 20", h.DataSize)
	}
	if h.DataOffset != HeaderSize {
		t.Errorf("DataOffset = %d, want %d", h.DataOffset, HeaderSize)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	if _, err := ParseHeader([]byte("nope")); err == nil {
		t.Error("ParseHeader should reject non-RIFF data")
	}

	data, _ := PackWAV(nil, 16000)
	if _, err := ParseHeader(data[:36]); err == nil {
		t.Error("ParseHeader should fail without a data chunk")
	}
}

func TestHasCanonicalLayout(t *testing.T) {
	data, err := PackWAV(make([]int16, 100), 16000)
	if err != nil {
		t.Fatalf("PackWAV() error = %v", err)
	}

	oddData := append(append([]byte(nil), data...), 0x7F)
	binary.LittleEndian.PutUint32(oddData[40:44], 201)
	binary.LittleEndian.PutUint32(oddData[4:8], uint32(len(oddData)-8))

	trailing := append(append([]byte(nil), data...), 0, 0)

	streaming := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(streaming[40:44], 0xFFFFFFFF)

	tests := []struct {
		name string
		data []byte
		rate int
		want bool
	}{
		{"packed", data, 16000, true},
		{"other rate", data, 8000, false},
		{"list chunk", withChunk(t, data, "LIST", []byte("INFOISFT\x03\x00\x00\x00go\x00")), 16000, false},
		{"odd data size", oddData, 16000, false},
		{"trailing bytes", trailing, 16000, false},
		{"placeholder data size", streaming, 16000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCanonicalLayout(tt.data, tt.rate); got != tt.want {
				t.Errorf("HasCanonicalLayout() = %v, want %v", got, tt.want)
			}
		})
	}
}
