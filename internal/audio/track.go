package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrExport wraps failures while writing the narration to disk.
var ErrExport = errors.New("audio export failed")

// Track is the continuous 16-bit PCM stream assembled from ordered audio
// segments. It is owned by a single session and grown append-only.
type Track struct {
	SampleRate int
	Channels   int
	PCM        []byte
}

// Append adds a segment to the end of the track. The first segment fixes the
// track format; later segments must match it.
func (t *Track) Append(pcm []byte, sampleRate, channels int) error {
	if len(pcm) == 0 {
		return nil
	}
	if t.SampleRate == 0 {
		t.SampleRate = sampleRate
		t.Channels = channels
	}
	if sampleRate != t.SampleRate || channels != t.Channels {
		return fmt.Errorf("segment format %dHz/%dch does not match track %dHz/%dch",
			sampleRate, channels, t.SampleRate, t.Channels)
	}
	t.PCM = append(t.PCM, pcm...)
	return nil
}

// Duration reports the total playing time of the track.
func (t *Track) Duration() time.Duration {
	if t.SampleRate <= 0 || t.Channels <= 0 {
		return 0
	}
	frames := len(t.PCM) / 2 / t.Channels
	return time.Duration(frames) * time.Second / time.Duration(t.SampleRate)
}

// Empty reports whether any audio has been appended.
func (t *Track) Empty() bool {
	return len(t.PCM) == 0
}

// Reset drops the assembled audio so the track can be reused.
func (t *Track) Reset() {
	t.SampleRate = 0
	t.Channels = 0
	t.PCM = nil
}
