package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/inkvox/inkvox/internal/audio"
	"github.com/inkvox/inkvox/internal/chunk"
	"github.com/inkvox/inkvox/internal/tts"
)

// SynthesisError reports which chunk could not be synthesized after the
// retry budget was spent.
type SynthesisError struct {
	Chunk int
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for chunk %d: %v", e.Chunk, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Progress describes one completed chunk.
type Progress struct {
	ChunkIndex int
	ChunkCount int
	Bytes      int
	Duration   time.Duration
	Retries    int
}

// Options hold the per-run settings. The engine options apply uniformly to
// every chunk of the run.
type Options struct {
	Synth      tts.Options
	MaxRetries int
	RetryDelay time.Duration
	Spool      bool
}

// Pipeline converts an ordered chunk sequence into an ordered clip sequence.
// It holds no per-run state; every Run operates purely on its inputs.
type Pipeline struct {
	engine tts.Engine
	log    *slog.Logger
}

func New(engine tts.Engine, log *slog.Logger) *Pipeline {
	return &Pipeline{
		engine: engine,
		log:    log.With(slog.String("component", "pipeline")),
	}
}

// Run synthesizes chunks strictly in order. Each chunk gets up to
// opts.MaxRetries retries; when the budget is spent the run aborts with a
// *SynthesisError and the clips produced so far are returned alongside it,
// so callers can inspect or partially export the prefix. Clip i always
// corresponds to chunk i.
func (p *Pipeline) Run(ctx context.Context, chunks []chunk.Chunk, opts Options, observe func(Progress)) ([]tts.Clip, error) {
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 250 * time.Millisecond
	}

	var spoolDir string
	if opts.Spool {
		dir, err := os.MkdirTemp("", "inkvox-run-")
		if err != nil {
			return nil, fmt.Errorf("create spool dir: %w", err)
		}
		spoolDir = dir
		defer os.RemoveAll(spoolDir)
	}

	clips := make([]tts.Clip, 0, len(chunks))
	for i, c := range chunks {
		clip, retries, err := p.synthesizeWithRetry(ctx, c.Content, opts, retryDelay)
		if err != nil {
			return clips, &SynthesisError{Chunk: i, Err: err}
		}
		clips = append(clips, clip)

		if spoolDir != "" {
			if err := p.spool(spoolDir, i, clip); err != nil {
				p.log.Warn("failed to spool chunk audio",
					slog.Int("chunk", i), slog.String("error", err.Error()))
			}
		}
		if observe != nil {
			observe(Progress{
				ChunkIndex: i,
				ChunkCount: len(chunks),
				Bytes:      len(clip.PCM),
				Duration:   clip.Duration(),
				Retries:    retries,
			})
		}
	}
	return clips, nil
}

func (p *Pipeline) synthesizeWithRetry(ctx context.Context, text string, opts Options, delay time.Duration) (tts.Clip, int, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return tts.Clip{}, attempt, err
		}
		clip, err := p.engine.Synthesize(ctx, text, opts.Synth)
		if err == nil {
			return clip, attempt, nil
		}
		lastErr = err
		if attempt < opts.MaxRetries {
			p.log.Warn("chunk synthesis failed, retrying",
				slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return tts.Clip{}, attempt, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return tts.Clip{}, opts.MaxRetries, lastErr
}

func (p *Pipeline) spool(dir string, index int, clip tts.Clip) error {
	path := filepath.Join(dir, fmt.Sprintf("chunk_%04d.wav", index))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	track := &audio.Track{SampleRate: clip.SampleRate, Channels: clip.Channels, PCM: clip.PCM}
	if err := audio.EncodeWAV(f, track); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
