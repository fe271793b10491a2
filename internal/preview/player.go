// Package preview plays a finished recording through the default output
// device.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/chaz8081/murmurcap/internal/audio"
)

const pollInterval = 50 * time.Millisecond

// ErrFormatMismatch is returned by Play when the output is already open at a
// different rate or channel count.
var ErrFormatMismatch = errors.New("preview: output already opened with a different format")

// Player plays 16-bit PCM WAV files. oto allows a single context per
// process, so the first file played fixes the output rate and channel count;
// later files in another format are refused.
type Player struct {
	log zerolog.Logger

	mu       sync.Mutex
	opened   bool
	otoCtx   *oto.Context
	rate     int
	channels int
}

// NewPlayer returns a player. No output device is opened until Play.
func NewPlayer(log zerolog.Logger) *Player {
	return &Player{log: log}
}

// Play plays wav and returns when playback finishes or ctx is cancelled.
func (p *Player) Play(ctx context.Context, wav []byte) error {
	rate, channels, pcm, err := pcmSection(wav)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.open(rate, channels); err != nil {
		return err
	}

	player := p.otoCtx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (p *Player) open(rate, channels int) error {
	if p.opened {
		if rate != p.rate || channels != p.channels {
			return fmt.Errorf("%w: open at %d Hz %d ch, file is %d Hz %d ch",
				ErrFormatMismatch, p.rate, p.channels, rate, channels)
		}
		return nil
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("preview: open output: %w", err)
	}
	<-ready

	p.otoCtx = otoCtx
	p.opened = true
	p.rate = rate
	p.channels = channels
	p.log.Debug().Int("rate", rate).Int("channels", channels).Msg("Audio output initialized")
	return nil
}

// pcmSection returns the data chunk of a 16-bit PCM WAV, trimmed to whole
// frames.
func pcmSection(wav []byte) (rate, channels int, pcm []byte, err error) {
	h, err := audio.ParseHeader(wav)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("preview: %w", err)
	}
	if h.AudioFormat != 1 || h.BitsPerSample != 16 || h.Channels == 0 || h.SampleRate == 0 {
		return 0, 0, nil, fmt.Errorf("preview: unsupported format (format %d, %d ch, %d bit)",
			h.AudioFormat, h.Channels, h.BitsPerSample)
	}
	frame := 2 * int(h.Channels)
	size := h.DataSize - h.DataSize%frame
	return int(h.SampleRate), int(h.Channels), wav[h.DataOffset : h.DataOffset+size], nil
}
