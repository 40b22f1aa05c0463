package tts

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inkvox/inkvox/internal/audio"
	"github.com/inkvox/inkvox/internal/config"
)

func TestMockEngineProducesAudio(t *testing.T) {
	engine := NewMockEngine(22050, 1)
	clip, err := engine.Synthesize(context.Background(), "hello there world", Options{Voice: "en-US", Rate: 1, Volume: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clip.PCM) == 0 {
		t.Fatal("expected non-empty PCM")
	}
	if clip.SampleRate != 22050 || clip.Channels != 1 {
		t.Fatalf("unexpected format: %dHz/%dch", clip.SampleRate, clip.Channels)
	}
	if clip.Duration() <= 0 {
		t.Fatalf("expected positive duration, got %v", clip.Duration())
	}
}

func TestHTTPEngineDecodesWAVResponse(t *testing.T) {
	track := &audio.Track{SampleRate: 22050, Channels: 1, PCM: bytes.Repeat([]byte{0x10, 0x00}, 2205)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var buf seekableBuffer
		if err := audio.EncodeWAV(&buf, track); err != nil {
			t.Errorf("encode fixture: %v", err)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL, 5*time.Second)
	clip, err := engine.Synthesize(context.Background(), "hello", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.SampleRate != 22050 || clip.Channels != 1 {
		t.Fatalf("unexpected format: %dHz/%dch", clip.SampleRate, clip.Channels)
	}
	if len(clip.PCM) != len(track.PCM) {
		t.Fatalf("expected %d PCM bytes, got %d", len(track.PCM), len(clip.PCM))
	}
}

func TestHTTPEngineNetworkError(t *testing.T) {
	// Nothing listens on this port.
	engine := NewHTTPEngine("http://127.0.0.1:1/api/tts", time.Second)
	if _, err := engine.Synthesize(context.Background(), "hello", Options{}); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestHTTPEngineBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL, time.Second)
	_, err := engine.Synthesize(context.Background(), "hello", Options{})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if errors.Is(err, ErrNetwork) {
		t.Fatalf("server error should not map to ErrNetwork: %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.EngineConfig{Mode: "mock", SampleRate: 16000, Channels: 1}
	engine, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.Name() != "mock" {
		t.Fatalf("expected mock engine, got %q", engine.Name())
	}

	if _, err := FromConfig(config.EngineConfig{Mode: "bogus"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}

	offline := config.EngineConfig{Mode: "offline", Command: "no-such-synth-binary", SampleRate: 16000, Channels: 1}
	if _, err := FromConfig(offline); err == nil {
		t.Fatal("expected error when the offline command cannot be resolved")
	}
}

// seekableBuffer adapts bytes.Buffer to the io.WriteSeeker the wav encoder
// needs when the target is memory instead of a file.
type seekableBuffer struct {
	data []byte
	pos  int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if b.pos+len(p) > len(b.data) {
		grown := make([]byte, b.pos+len(p))
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		b.pos = int(offset)
	case 1:
		b.pos += int(offset)
	case 2:
		b.pos = len(b.data) + int(offset)
	}
	return int64(b.pos), nil
}

func (b *seekableBuffer) Bytes() []byte { return b.data }
