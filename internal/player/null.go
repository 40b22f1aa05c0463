package player

import (
	"sync"
	"time"
)

// Null is a no-op backend for hosts without an audio device, such as
// headless converts and CI. Transport calls succeed but nothing is heard.
type Null struct {
	mu     sync.Mutex
	loaded bool
}

func NewNull() *Null {
	return &Null{}
}

func (n *Null) Load(sampleRate, channels int, pcm []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loaded = true
	return nil
}

func (n *Null) Play(onDone func()) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.loaded {
		return ErrNoAudio
	}
	return nil
}

func (n *Null) Pause() error  { return nil }
func (n *Null) Resume() error { return nil }
func (n *Null) Stop() error   { return nil }

func (n *Null) SetVolume(v float64) {}

func (n *Null) Position() time.Duration { return 0 }

func (n *Null) Close() error { return nil }
