package player

import (
	"errors"
	"time"
)

// ErrNoAudio is returned when transport operations run before Load.
var ErrNoAudio = errors.New("no audio loaded")

// Player streams one continuous PCM track with transport control. A player
// owns exactly one playback session at a time; Load resets it.
type Player interface {
	// Load replaces the current track and resets the position to zero.
	Load(sampleRate, channels int, pcm []byte) error

	// Play starts streaming from the current position. onDone fires once
	// if the track plays through to its end.
	Play(onDone func()) error

	// Pause halts streaming, retaining the position.
	Pause() error

	// Resume continues from the paused position.
	Resume() error

	// Stop halts streaming and resets the position to zero.
	Stop() error

	// SetVolume scales output between 0 and 1.
	SetVolume(v float64)

	// Position reports the current playback offset.
	Position() time.Duration

	// Close releases audio resources.
	Close() error
}
