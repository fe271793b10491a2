package preview

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chaz8081/murmurcap/internal/audio"
)

func TestPCMSectionCanonical(t *testing.T) {
	wav, err := audio.PackWAV([]int16{1, -1, 300, -300}, 16000)
	if err != nil {
		t.Fatalf("PackWAV() error = %v", err)
	}

	rate, channels, pcm, err := pcmSection(wav)
	if err != nil {
		t.Fatalf("pcmSection() error = %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("rate, channels = %d, %d; want 16000, 1", rate, channels)
	}
	if len(pcm) != 8 {
		t.Fatalf("len(pcm) = %d, want 8", len(pcm))
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[4:])); got != 300 {
		t.Errorf("third sample = %d, want 300", got)
	}
}

func TestPCMSectionTrimsPartialFrame(t *testing.T) {
	wav, err := audio.PackWAV([]int16{1, 2, 3}, 8000)
	if err != nil {
		t.Fatalf("PackWAV() error = %v", err)
	}
	// Rewrite as stereo: 6 data bytes hold one whole 4-byte frame.
	binary.LittleEndian.PutUint16(wav[22:], 2)

	_, channels, pcm, err := pcmSection(wav)
	if err != nil {
		t.Fatalf("pcmSection() error = %v", err)
	}
	if channels != 2 || len(pcm) != 4 {
		t.Errorf("channels = %d, len(pcm) = %d; want 2, 4", channels, len(pcm))
	}
}

func TestPCMSectionRejects(t *testing.T) {
	float, err := audio.PackWAV([]int16{0}, 8000)
	if err != nil {
		t.Fatalf("PackWAV() error = %v", err)
	}
	binary.LittleEndian.PutUint16(float[20:], 3)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("ID3\x03 not a wav file")},
		{"float format", float},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := pcmSection(tt.data); err == nil {
				t.Error("pcmSection() should fail")
			}
		})
	}
}

func TestPlayRejectsInvalidBeforeOpeningDevice(t *testing.T) {
	p := NewPlayer(zerolog.Nop())
	if err := p.Play(context.Background(), []byte("garbage")); err == nil {
		t.Fatal("Play() should reject non-WAV input")
	}
	if p.opened {
		t.Error("output device opened for invalid input")
	}
}

func TestPlayRefusesOtherFormatOnceOpen(t *testing.T) {
	p := NewPlayer(zerolog.Nop())
	p.opened, p.rate, p.channels = true, 16000, 1

	wav, err := audio.PackWAV(make([]int16, 80), 8000)
	if err != nil {
		t.Fatalf("PackWAV() error = %v", err)
	}
	if err := p.Play(context.Background(), wav); !errors.Is(err, ErrFormatMismatch) {
		t.Fatalf("Play() error = %v, want ErrFormatMismatch", err)
	}
}
