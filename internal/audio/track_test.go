package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendFixesFormat(t *testing.T) {
	var tr Track
	if err := tr.Append(make([]byte, 400), 8000, 1); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := tr.Append(make([]byte, 400), 8000, 1); err != nil {
		t.Fatalf("second append: %v", err)
	}
	if err := tr.Append(make([]byte, 400), 16000, 1); err == nil {
		t.Fatalf("expected format mismatch error")
	}
	if len(tr.PCM) != 800 {
		t.Fatalf("expected 800 bytes after rejected append, got %d", len(tr.PCM))
	}
}

func TestTrackDuration(t *testing.T) {
	tr := Track{SampleRate: 8000, Channels: 1, PCM: make([]byte, 16000)}
	if got := tr.Duration(); got != time.Second {
		t.Fatalf("expected 1s, got %s", got)
	}
}

func TestExportWAVRoundTrip(t *testing.T) {
	tr := &Track{SampleRate: 8000, Channels: 1, PCM: make([]byte, 1600)}
	for i := range tr.PCM {
		tr.PCM[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := Export(path, tr, 0); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	pcm, rate, channels, err := DecodeWAV(f)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if rate != 8000 || channels != 1 {
		t.Fatalf("unexpected format %dHz/%dch", rate, channels)
	}
	if len(pcm) != len(tr.PCM) {
		t.Fatalf("expected %d bytes back, got %d", len(tr.PCM), len(pcm))
	}
}

func TestExportRejectsEmptyAndUnknown(t *testing.T) {
	dir := t.TempDir()

	if err := Export(filepath.Join(dir, "out.wav"), &Track{}, 0); !errors.Is(err, ErrExport) {
		t.Fatalf("expected ErrExport for empty track, got %v", err)
	}

	tr := &Track{SampleRate: 8000, Channels: 1, PCM: make([]byte, 16)}
	if err := Export(filepath.Join(dir, "out.ogg"), tr, 0); !errors.Is(err, ErrExport) {
		t.Fatalf("expected ErrExport for unknown extension, got %v", err)
	}
}
