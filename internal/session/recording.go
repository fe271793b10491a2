package session

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/murmurcap/internal/audio"
	"github.com/chaz8081/murmurcap/internal/capture"
)

// Recording is one finished canonical WAV and where it came from.
type Recording struct {
	ID         uuid.UUID
	WAV        []byte
	SampleRate int
	Samples    int
	Duration   time.Duration
	Strategy   capture.Strategy
	CreatedAt  time.Time
}

// NewRecording wraps canonical WAV bytes produced by strategy.
func NewRecording(wav []byte, strategy capture.Strategy) (*Recording, error) {
	h, err := audio.ParseHeader(wav)
	if err != nil {
		return nil, fmt.Errorf("session: recording header: %w", err)
	}
	if !h.Canonical(int(h.SampleRate)) {
		return nil, fmt.Errorf("session: recording is not canonical PCM16 mono (format %d, %d ch, %d bit)",
			h.AudioFormat, h.Channels, h.BitsPerSample)
	}

	n := h.Samples()
	return &Recording{
		ID:         uuid.New(),
		WAV:        wav,
		SampleRate: int(h.SampleRate),
		Samples:    n,
		Duration:   time.Duration(n) * time.Second / time.Duration(h.SampleRate),
		Strategy:   strategy,
		CreatedAt:  time.Now(),
	}, nil
}

// Reader returns a fresh reader over the WAV bytes.
func (r *Recording) Reader() io.ReadSeeker {
	return bytes.NewReader(r.WAV)
}

// FileName is the name used when the recording is uploaded or saved.
func (r *Recording) FileName() string {
	return r.ID.String() + ".wav"
}
