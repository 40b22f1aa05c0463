package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execEngine drives a local synthesis command (piper, espeak wrappers and
// similar). One JSON request goes to stdin; the command answers with JSON
// lines carrying base64 PCM until a final marker.
type execEngine struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Rate       float64 `json:"rate"`
	Volume     float64 `json:"volume"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecEngine parses command into argv and returns the offline engine.
func NewExecEngine(command string, sampleRate, channels int) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	return &execEngine{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execEngine) Name() string { return "offline" }

func (e *execEngine) Available() bool {
	_, err := exec.LookPath(e.cmd[0])
	return err == nil
}

func (e *execEngine) Synthesize(ctx context.Context, text string, opts Options) (Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := execRequest{
		Text:       text,
		Voice:      opts.Voice,
		Rate:       opts.Rate,
		Volume:     opts.Volume,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Clip{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Clip{}, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Clip{}, err
	}
	if err := cmd.Start(); err != nil {
		return Clip{}, fmt.Errorf("start engine command: %w", err)
	}

	if _, err := stdin.Write(data); err != nil {
		cmd.Wait()
		return Clip{}, err
	}
	stdin.Close()

	var pcm []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return Clip{}, fmt.Errorf("decode engine response: %w", err)
		}
		part, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			cmd.Wait()
			return Clip{}, fmt.Errorf("decode engine audio: %w", err)
		}
		pcm = append(pcm, part...)
		if resp.Final {
			break
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		cmd.Wait()
		return Clip{}, scanErr
	}
	if err := cmd.Wait(); err != nil {
		return Clip{}, fmt.Errorf("engine command failed: %w", err)
	}
	if len(pcm) == 0 {
		return Clip{}, fmt.Errorf("engine produced no audio")
	}
	return Clip{PCM: pcm, SampleRate: e.sampleRate, Channels: e.channels}, nil
}
