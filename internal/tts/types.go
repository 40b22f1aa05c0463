package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inkvox/inkvox/internal/config"
)

// ErrNetwork indicates the online engine could not reach its service.
var ErrNetwork = errors.New("speech service unreachable")

// Options are the per-run synthesis settings, applied uniformly to every
// chunk of one conversion.
type Options struct {
	Voice  string
	Rate   float64
	Volume float64
}

// Clip is the audio produced for exactly one chunk: 16-bit little-endian
// signed PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration reports the playing time of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / 2 / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Engine is the contract for producing audio from text. Implementations are
// not required to be reentrant; callers synthesize one clip at a time.
type Engine interface {
	Name() string
	// Available reports whether the engine can be expected to work without
	// attempting a synthesis: the subprocess binary resolves, the endpoint
	// is configured.
	Available() bool
	Synthesize(ctx context.Context, text string, opts Options) (Clip, error)
}

// FromConfig builds the engine selected by configuration. The selection is
// fixed for the lifetime of a conversion run.
func FromConfig(cfg config.EngineConfig) (Engine, error) {
	var (
		engine Engine
		err    error
	)
	switch cfg.Mode {
	case "offline":
		engine, err = NewExecEngine(cfg.Command, cfg.SampleRate, cfg.Channels)
	case "online":
		engine = NewHTTPEngine(cfg.Endpoint, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	case "mock":
		engine = NewMockEngine(cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	if !engine.Available() {
		return nil, fmt.Errorf("engine %q is not available, check its configuration", engine.Name())
	}
	return engine, nil
}
