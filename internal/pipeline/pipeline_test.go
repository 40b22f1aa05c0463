package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/inkvox/inkvox/internal/chunk"
	"github.com/inkvox/inkvox/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// flakyEngine fails a fixed number of times per chunk index before
// succeeding, or fails permanently for chunks listed in broken.
type flakyEngine struct {
	failures map[int]int
	broken   map[int]bool
	calls    []int
	next     int
	perChunk map[int]int
}

func newFlakyEngine() *flakyEngine {
	return &flakyEngine{
		failures: map[int]int{},
		broken:   map[int]bool{},
		perChunk: map[int]int{},
	}
}

func (e *flakyEngine) Name() string { return "flaky" }

func (e *flakyEngine) Available() bool { return true }

func (e *flakyEngine) Synthesize(ctx context.Context, text string, opts tts.Options) (tts.Clip, error) {
	idx := e.next
	e.calls = append(e.calls, idx)
	if e.broken[idx] {
		return tts.Clip{}, errors.New("engine unavailable")
	}
	if e.perChunk[idx] < e.failures[idx] {
		e.perChunk[idx]++
		return tts.Clip{}, errors.New("transient failure")
	}
	e.next++
	return tts.Clip{PCM: []byte{byte(idx), 0, byte(idx), 0}, SampleRate: 22050, Channels: 1}, nil
}

func makeChunks(n int) []chunk.Chunk {
	chunks := make([]chunk.Chunk, n)
	for i := range chunks {
		chunks[i] = chunk.Chunk{Index: i, Content: "text"}
	}
	return chunks
}

func TestRunProducesOrderedClips(t *testing.T) {
	engine := newFlakyEngine()
	p := New(engine, newLogger())

	var seen []int
	clips, err := p.Run(context.Background(), makeChunks(5), Options{MaxRetries: 2, RetryDelay: time.Millisecond}, func(pr Progress) {
		seen = append(seen, pr.ChunkIndex)
		if pr.ChunkCount != 5 {
			t.Fatalf("expected chunk count 5, got %d", pr.ChunkCount)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clips) != 5 {
		t.Fatalf("expected 5 clips, got %d", len(clips))
	}
	for i, clip := range clips {
		if clip.PCM[0] != byte(i) {
			t.Fatalf("clip %d does not correspond to chunk %d", i, i)
		}
	}
	for i, idx := range seen {
		if idx != i {
			t.Fatalf("progress out of order: %v", seen)
		}
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	engine := newFlakyEngine()
	engine.failures[1] = 2 // succeeds on the third attempt
	p := New(engine, newLogger())

	var retried int
	clips, err := p.Run(context.Background(), makeChunks(3), Options{MaxRetries: 2, RetryDelay: time.Millisecond}, func(pr Progress) {
		if pr.ChunkIndex == 1 {
			retried = pr.Retries
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(clips))
	}
	if retried != 2 {
		t.Fatalf("expected 2 retries reported for chunk 1, got %d", retried)
	}
}

func TestRunAbortsAfterRetryBudget(t *testing.T) {
	engine := newFlakyEngine()
	engine.broken[2] = true
	p := New(engine, newLogger())

	clips, err := p.Run(context.Background(), makeChunks(5), Options{MaxRetries: 2, RetryDelay: time.Millisecond}, nil)
	if err == nil {
		t.Fatal("expected synthesis error")
	}
	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("expected *SynthesisError, got %T", err)
	}
	if synthErr.Chunk != 2 {
		t.Fatalf("expected failure at chunk 2, got %d", synthErr.Chunk)
	}
	// Exactly the prefix 0..k-1 survives; the failed chunk never appears.
	if len(clips) != 2 {
		t.Fatalf("expected 2 prefix clips, got %d", len(clips))
	}
	attempts := 0
	for _, idx := range engine.calls {
		if idx == 2 {
			attempts++
		}
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries) for chunk 2, got %d", attempts)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	engine := newFlakyEngine()
	p := New(engine, newLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, makeChunks(3), Options{MaxRetries: 2, RetryDelay: time.Millisecond}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
