package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV writes the track as a 16-bit PCM WAV file.
func EncodeWAV(w io.WriteSeeker, t *Track) error {
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: t.Channels, SampleRate: t.SampleRate},
		Data:           pcmToInts(t.PCM),
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(w, t.SampleRate, 16, t.Channels, 1)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	return enc.Close()
}

// DecodeWAV reads a 16-bit PCM WAV stream and returns the raw samples.
func DecodeWAV(r io.ReadSeeker) (pcm []byte, sampleRate, channels int, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("not a valid wav stream")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, 0, 0, fmt.Errorf("unsupported wav bit depth %d", dec.BitDepth)
	}
	return intsToPCM(buf.Data), buf.Format.SampleRate, buf.Format.NumChannels, nil
}

func pcmToInts(pcm []byte) []int {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return samples
}

func intsToPCM(samples []int) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return pcm
}
