package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inkvox/inkvox/internal/audio"
)

// httpEngine talks to a network speech service that accepts a JSON request
// and answers with a 16-bit PCM WAV body.
type httpEngine struct {
	endpoint string
	client   *http.Client
}

type httpRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

// NewHTTPEngine returns the online engine bound to endpoint.
func NewHTTPEngine(endpoint string, timeout time.Duration) Engine {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &httpEngine{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *httpEngine) Name() string { return "online" }

func (e *httpEngine) Available() bool { return e.endpoint != "" }

func (e *httpEngine) Synthesize(ctx context.Context, text string, opts Options) (Clip, error) {
	body, err := json.Marshal(httpRequest{
		Text:   text,
		Voice:  opts.Voice,
		Rate:   opts.Rate,
		Volume: opts.Volume,
	})
	if err != nil {
		return Clip{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return Clip{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.client.Do(req)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Clip{}, fmt.Errorf("speech service returned status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	pcm, sampleRate, channels, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("decode speech response: %w", err)
	}
	if len(pcm) == 0 {
		return Clip{}, fmt.Errorf("speech service produced no audio")
	}
	return Clip{PCM: pcm, SampleRate: sampleRate, Channels: channels}, nil
}
