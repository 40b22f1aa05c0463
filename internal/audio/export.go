package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/viert/go-lame"
)

// EncodeMP3 writes the track as an MP3 stream at the given bitrate.
func EncodeMP3(w io.Writer, t *Track, bitrateKbps int) error {
	enc := lame.NewEncoder(w)
	defer enc.Close()

	if err := enc.SetNumChannels(t.Channels); err != nil {
		return fmt.Errorf("set channels: %w", err)
	}
	if err := enc.SetInSamplerate(t.SampleRate); err != nil {
		return fmt.Errorf("set sample rate: %w", err)
	}
	if bitrateKbps > 0 {
		if err := enc.SetBrate(bitrateKbps); err != nil {
			return fmt.Errorf("set bitrate: %w", err)
		}
	}
	if _, err := enc.Write(t.PCM); err != nil {
		return fmt.Errorf("encode mp3: %w", err)
	}
	return nil
}

// Export writes the track to path, picking the container from the file
// extension (.mp3 or .wav). The playback position is untouched; export only
// reads the assembled stream.
func Export(path string, t *Track, bitrateKbps int) error {
	if t == nil || t.Empty() {
		return fmt.Errorf("%w: no audio to export", ErrExport)
	}

	var encode func(*os.File) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		encode = func(f *os.File) error { return EncodeMP3(f, t, bitrateKbps) }
	case ".wav":
		encode = func(f *os.File) error { return EncodeWAV(f, t) }
	default:
		return fmt.Errorf("%w: unsupported extension %q", ErrExport, filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	return nil
}
