package player

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioPlayer plays 16-bit PCM through the default output device.
type PortAudioPlayer struct {
	mu           sync.Mutex
	bufferFrames int
	volume       float64

	sampleRate int
	channels   int
	pcm        []byte

	posFrames int
	playing   bool
	paused    bool
	quit      chan struct{}
	finished  sync.WaitGroup
}

func NewPortAudio(bufferFrames int, volume float64) *PortAudioPlayer {
	if bufferFrames <= 0 {
		bufferFrames = 1024
	}
	return &PortAudioPlayer{bufferFrames: bufferFrames, volume: volume}
}

func (p *PortAudioPlayer) Load(sampleRate, channels int, pcm []byte) error {
	if err := p.Stop(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid audio format %dHz/%dch", sampleRate, channels)
	}
	p.sampleRate = sampleRate
	p.channels = channels
	p.pcm = pcm
	p.posFrames = 0
	return nil
}

func (p *PortAudioPlayer) Play(onDone func()) error {
	p.mu.Lock()
	if len(p.pcm) == 0 {
		p.mu.Unlock()
		return ErrNoAudio
	}
	if p.playing {
		p.mu.Unlock()
		return fmt.Errorf("already playing")
	}
	p.playing = true
	p.paused = false
	p.quit = make(chan struct{})
	quit := p.quit
	p.mu.Unlock()

	p.finished.Add(1)
	go p.stream(quit, onDone)
	return nil
}

func (p *PortAudioPlayer) stream(quit chan struct{}, onDone func()) {
	defer p.finished.Done()

	completed := false
	defer func() {
		p.mu.Lock()
		p.playing = false
		if completed {
			p.posFrames = 0
		}
		p.mu.Unlock()
		if completed && onDone != nil {
			// A Stop racing natural completion may already hold the
			// caller's locks while it waits for this goroutine, so the
			// callback must not run on it. Skip it entirely once a stop
			// was requested; the stopping side owns the transition.
			select {
			case <-quit:
			default:
				go onDone()
			}
		}
	}()

	if err := portaudio.Initialize(); err != nil {
		return
	}
	defer portaudio.Terminate()

	p.mu.Lock()
	channels := p.channels
	sampleRate := p.sampleRate
	frames := p.bufferFrames
	p.mu.Unlock()

	buffer := make([]float32, frames*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), frames, &buffer)
	if err != nil {
		return
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return
	}
	defer stream.Stop()

	for {
		select {
		case <-quit:
			return
		default:
		}

		p.mu.Lock()
		if p.paused {
			p.mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			continue
		}
		totalFrames := len(p.pcm) / 2 / channels
		if p.posFrames >= totalFrames {
			p.mu.Unlock()
			completed = true
			return
		}
		n := p.fillBuffer(buffer, channels)
		p.posFrames += n
		p.mu.Unlock()

		if err := stream.Write(); err != nil {
			return
		}
	}
}

// fillBuffer copies the next samples into buffer, scaled by volume, padding
// with silence past the end of the track. Caller holds the lock.
func (p *PortAudioPlayer) fillBuffer(buffer []float32, channels int) int {
	start := p.posFrames * channels
	written := 0
	for i := range buffer {
		sampleIndex := start + i
		byteIndex := sampleIndex * 2
		if byteIndex+1 >= len(p.pcm) {
			buffer[i] = 0
			continue
		}
		sample := int16(binary.LittleEndian.Uint16(p.pcm[byteIndex:]))
		buffer[i] = float32(sample) / 32768.0 * float32(p.volume)
		written++
	}
	frames := written / channels
	if written%channels != 0 {
		frames++
	}
	return frames
}

func (p *PortAudioPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return ErrNoAudio
	}
	p.paused = true
	return nil
}

func (p *PortAudioPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return ErrNoAudio
	}
	p.paused = false
	return nil
}

func (p *PortAudioPlayer) Stop() error {
	p.mu.Lock()
	if !p.playing {
		p.posFrames = 0
		p.mu.Unlock()
		return nil
	}
	quit := p.quit
	p.mu.Unlock()

	close(quit)
	p.finished.Wait()

	p.mu.Lock()
	p.posFrames = 0
	p.mu.Unlock()
	return nil
}

func (p *PortAudioPlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volume = v
}

func (p *PortAudioPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sampleRate <= 0 {
		return 0
	}
	return time.Duration(p.posFrames) * time.Second / time.Duration(p.sampleRate)
}

func (p *PortAudioPlayer) Close() error {
	return p.Stop()
}
