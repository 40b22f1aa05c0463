package tts

import (
	"context"
	"encoding/binary"
	"strings"
)

// mockEngine produces silence-free deterministic audio without any external
// backend. Useful for tests and for exercising the pipeline on machines
// with no synthesis engine installed.
type mockEngine struct {
	sampleRate int
	channels   int
}

// NewMockEngine returns an engine that fabricates PCM proportional to the
// input text length.
func NewMockEngine(sampleRate, channels int) Engine {
	return &mockEngine{sampleRate: sampleRate, channels: channels}
}

func (m *mockEngine) Name() string { return "mock" }

func (m *mockEngine) Available() bool { return true }

func (m *mockEngine) Synthesize(ctx context.Context, text string, opts Options) (Clip, error) {
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}
	// Roughly 60ms of audio per word keeps durations plausible.
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	frames := words * m.sampleRate * 60 / 1000
	pcm := make([]byte, frames*2*m.channels)
	for i := 0; i < len(pcm); i += 2 {
		// Low-amplitude square wave instead of silence.
		sample := int16(800)
		if (i/2)%64 >= 32 {
			sample = -800
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(sample))
	}
	return Clip{PCM: pcm, SampleRate: m.sampleRate, Channels: m.channels}, nil
}
