package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/inkvox/inkvox/internal/audio"
	"github.com/inkvox/inkvox/internal/bus"
	"github.com/inkvox/inkvox/internal/chunk"
	"github.com/inkvox/inkvox/internal/config"
	"github.com/inkvox/inkvox/internal/extract"
	"github.com/inkvox/inkvox/internal/library"
	"github.com/inkvox/inkvox/internal/pipeline"
	"github.com/inkvox/inkvox/internal/player"
	"github.com/inkvox/inkvox/internal/protocol"
	"github.com/inkvox/inkvox/internal/tts"
)

// State names one station of the narration session lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateConverting State = "converting"
	StateReady      State = "ready"
	StatePlaying    State = "playing"
	StatePaused     State = "paused"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

// ErrBusy rejects a conversion request while one is already converting or
// the current track is playing.
var ErrBusy = errors.New("a conversion or playback is already in progress")

// Session is the single narration session of the process. All state changes
// are serialized behind one mutex; conversion work runs on a background
// goroutine and reports back through the bus.
type Session struct {
	cfg    config.Config
	bus    *bus.Client
	store  *library.Store
	engine tts.Engine
	pipe   *pipeline.Pipeline
	player player.Player
	log    *slog.Logger

	mu           sync.Mutex
	state        State
	id           string
	sourcePath   string
	chunkCount   int
	track        audio.Track
	lastErr      error
	cancelRun    context.CancelFunc
	cancelWanted bool
	runDone      chan struct{}
	playSeq      uint64
	wg           sync.WaitGroup

	// postSynth, when set, runs after the pipeline returns and before the
	// session decides its final state. Tests use it to interleave operations.
	postSynth func()

	conversionsStarted metric.Int64Counter
	conversionsFailed  metric.Int64Counter
	chunksSynthesized  metric.Int64Counter
	synthesisRetries   metric.Int64Counter
	conversionDuration metric.Float64Histogram
	playbackState      metric.Int64Gauge
}

// New wires a session from its collaborators. The player is an interface so
// hosts without an audio device can supply their own.
func New(cfg config.Config, busClient *bus.Client, store *library.Store, engine tts.Engine, pipe *pipeline.Pipeline, plyr player.Player, logger *slog.Logger) *Session {
	s := &Session{
		cfg:    cfg,
		bus:    busClient,
		store:  store,
		engine: engine,
		pipe:   pipe,
		player: plyr,
		log:    logger.With(slog.String("component", "controller")),
		state:  StateIdle,
	}
	s.initMetrics()
	return s
}

func (s *Session) initMetrics() {
	meter := otel.Meter("github.com/inkvox/inkvox/narrate")
	var err error
	if s.conversionsStarted, err = meter.Int64Counter("inkvox.conversions.started", metric.WithDescription("Conversion runs started")); err != nil {
		s.log.Warn("metric registration failed", slogError(err))
	}
	if s.conversionsFailed, err = meter.Int64Counter("inkvox.conversions.failed", metric.WithDescription("Conversion runs that ended in failure")); err != nil {
		s.log.Warn("metric registration failed", slogError(err))
	}
	if s.chunksSynthesized, err = meter.Int64Counter("inkvox.chunks.synthesized", metric.WithDescription("Chunks successfully synthesized")); err != nil {
		s.log.Warn("metric registration failed", slogError(err))
	}
	if s.synthesisRetries, err = meter.Int64Counter("inkvox.synthesis.retries", metric.WithDescription("Chunk synthesis attempts beyond the first")); err != nil {
		s.log.Warn("metric registration failed", slogError(err))
	}
	if s.conversionDuration, err = meter.Float64Histogram("inkvox.conversion.duration",
		metric.WithDescription("Wall-clock time of completed conversion runs"),
		metric.WithUnit("s")); err != nil {
		s.log.Warn("metric registration failed", slogError(err))
	}
	if s.playbackState, err = meter.Int64Gauge("inkvox.playback.state", metric.WithDescription("Current session state as an ordinal")); err != nil {
		s.log.Warn("metric registration failed", slogError(err))
	}
}

// stateOrdinal gives each state a stable numeric value for the gauge.
func stateOrdinal(st State) int64 {
	switch st {
	case StateIdle:
		return 0
	case StateConverting:
		return 1
	case StateReady:
		return 2
	case StatePlaying:
		return 3
	case StatePaused:
		return 4
	case StateStopped:
		return 5
	case StateFailed:
		return 6
	}
	return -1
}

// State reports the current lifecycle station.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError reports the error that drove the session into Failed, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ID reports the identifier of the current conversion, empty while Idle.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SourcePath reports the document behind the current session.
func (s *Session) SourcePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourcePath
}

// Convert starts a conversion run for the document at path. It returns
// ErrBusy while a run is converting or the track is playing; otherwise it
// replaces the current session and returns immediately, with progress
// reported over the bus.
func (s *Session) Convert(path string) error {
	pages, err := extract.ParsePageRange(s.cfg.Extract.Pages)
	if err != nil {
		return fmt.Errorf("page range: %w", err)
	}

	s.mu.Lock()
	switch s.state {
	case StateConverting, StatePlaying:
		s.mu.Unlock()
		return ErrBusy
	case StatePaused:
		if err := s.player.Stop(); err != nil {
			s.log.Warn("stopping paused playback failed", slogError(err))
		}
	}

	s.id = uuid.NewString()
	s.sourcePath = path
	s.chunkCount = 0
	s.track.Reset()
	s.lastErr = nil
	s.cancelWanted = false

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel
	s.runDone = make(chan struct{})
	done := s.runDone
	id := s.id
	s.transitionLocked(StateConverting, nil)
	s.mu.Unlock()

	if s.conversionsStarted != nil {
		s.conversionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", s.engine.Name())))
	}
	s.recordConversion(id, path, "converting", 0, 0, "")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer close(done)
		s.runConversion(ctx, id, path, pages)
	}()
	return nil
}

// Done returns a channel closed when the current conversion reaches a
// terminal state. It returns a closed channel when no conversion ran yet.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runDone == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.runDone
}

// Engine names the speech engine selected for this session.
func (s *Session) Engine() string {
	return s.engine.Name()
}

func (s *Session) runConversion(ctx context.Context, id, path string, pages extract.PageRange) {
	started := time.Now()
	text, err := extract.Text(path, pages, func(page, chars int, skipped bool) {
		s.publish(protocol.SubjectExtractProgress, protocol.ExtractProgress{
			SessionID: id,
			Page:      page,
			Chars:     chars,
			Skipped:   skipped,
		})
	})
	if err != nil {
		s.finishFailed(id, fmt.Errorf("extract %s: %w", filepath.Base(path), err))
		return
	}

	chunks, err := chunk.Split(text, s.cfg.Chunker.MaxChunkSize)
	if err != nil {
		s.finishFailed(id, err)
		return
	}
	s.log.Info("document chunked",
		slog.String("session_id", id),
		slog.Int("chunks", len(chunks)),
		slog.String("engine", s.engine.Name()))

	opts := pipeline.Options{
		Synth: tts.Options{
			Voice:  s.cfg.Engine.Voice,
			Rate:   s.cfg.Engine.Rate,
			Volume: s.cfg.Engine.Volume,
		},
		MaxRetries: s.cfg.Engine.MaxRetries,
		Spool:      s.cfg.Engine.Mode == "offline",
	}
	clips, runErr := s.pipe.Run(ctx, chunks, opts, func(p pipeline.Progress) {
		if s.chunksSynthesized != nil {
			s.chunksSynthesized.Add(ctx, 1)
		}
		if p.Retries > 0 && s.synthesisRetries != nil {
			s.synthesisRetries.Add(ctx, int64(p.Retries))
		}
		s.publish(protocol.SubjectChunkProgress, protocol.ChunkProgress{
			SessionID:  id,
			ChunkIndex: p.ChunkIndex,
			ChunkCount: p.ChunkCount,
			Bytes:      p.Bytes,
			Duration:   p.Duration,
			Retries:    p.Retries,
		})
		s.recordChunkEvent(id, p)
	})

	s.mu.Lock()
	for _, clip := range clips {
		if err := s.track.Append(clip.PCM, clip.SampleRate, clip.Channels); err != nil {
			s.mu.Unlock()
			s.finishFailed(id, err)
			return
		}
	}
	s.chunkCount = len(clips)
	s.mu.Unlock()

	if s.postSynth != nil {
		s.postSynth()
	}

	// One critical section from the cancellation check through the Ready
	// transition, so a Cancel arriving after the pipeline finished cannot be
	// overtaken by the transition and lost.
	s.mu.Lock()
	if s.cancelWanted && (runErr == nil || errors.Is(runErr, context.Canceled)) {
		s.track.Reset()
		s.transitionLocked(StateIdle, nil)
		s.mu.Unlock()
		s.recordConversion(id, path, "canceled", len(clips), 0, "")
		s.log.Info("conversion canceled", slog.String("session_id", id))
		return
	}
	if runErr != nil {
		s.mu.Unlock()
		s.finishFailed(id, runErr)
		return
	}
	if err := s.player.Load(s.track.SampleRate, s.track.Channels, s.track.PCM); err != nil {
		s.mu.Unlock()
		s.finishFailed(id, err)
		return
	}
	duration := s.track.Duration()
	s.transitionLocked(StateReady, nil)
	s.mu.Unlock()

	if s.conversionDuration != nil {
		s.conversionDuration.Record(ctx, time.Since(started).Seconds(),
			metric.WithAttributes(attribute.String("engine", s.engine.Name())))
	}
	s.recordConversion(id, path, "ready", len(clips), duration, "")
	s.log.Info("conversion complete",
		slog.String("session_id", id),
		slog.Int("chunks", len(clips)),
		slog.Duration("duration", duration))
}

func (s *Session) finishFailed(id string, err error) {
	if s.conversionsFailed != nil {
		s.conversionsFailed.Add(context.Background(), 1)
	}
	s.mu.Lock()
	s.lastErr = err
	s.transitionLocked(StateFailed, err)
	path := s.sourcePath
	count := s.chunkCount
	duration := s.track.Duration()
	s.mu.Unlock()

	s.recordConversion(id, path, "failed", count, duration, "")
	s.log.Error("conversion failed", slog.String("session_id", id), slogError(err))
}

// Play starts playback from position zero, or from wherever a stopped track
// was reset to. It is valid from Ready and Stopped.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady && s.state != StateStopped {
		return fmt.Errorf("cannot play while %s", s.state)
	}
	s.playSeq++
	seq := s.playSeq
	if err := s.player.Play(func() { s.playbackDone(seq) }); err != nil {
		return err
	}
	s.transitionLocked(StatePlaying, nil)
	go s.publishStatusLoop()
	return nil
}

// Pause halts playback, retaining the position.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		return fmt.Errorf("cannot pause while %s", s.state)
	}
	if err := s.player.Pause(); err != nil {
		return err
	}
	s.transitionLocked(StatePaused, nil)
	return nil
}

// Resume continues from the paused position.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return fmt.Errorf("cannot resume while %s", s.state)
	}
	if err := s.player.Resume(); err != nil {
		return err
	}
	s.transitionLocked(StatePlaying, nil)
	go s.publishStatusLoop()
	return nil
}

// Stop halts playback and resets the position to zero.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying && s.state != StatePaused {
		return fmt.Errorf("cannot stop while %s", s.state)
	}
	if err := s.player.Stop(); err != nil {
		return err
	}
	s.transitionLocked(StateStopped, nil)
	return nil
}

// SetVolume adjusts playback volume between 0 and 1.
func (s *Session) SetVolume(v float64) {
	s.player.SetVolume(v)
}

// Position reports the current playback offset.
func (s *Session) Position() time.Duration {
	return s.player.Position()
}

// Export writes the assembled track to path. It is valid from Ready and
// Stopped, and from Failed to salvage the synthesized prefix. The playback
// position is unaffected. When path has no extension the configured export
// format decides the container.
func (s *Session) Export(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady, StateStopped, StateFailed:
	default:
		return fmt.Errorf("cannot export while %s", s.state)
	}
	if s.track.Empty() {
		return fmt.Errorf("%w: no synthesized audio", audio.ErrExport)
	}
	if filepath.Ext(path) == "" {
		path += "." + s.cfg.Export.Format
	}
	if err := audio.Export(path, &s.track, s.cfg.Export.Bitrate); err != nil {
		return err
	}
	s.log.Info("track exported", slog.String("session_id", s.id), slog.String("path", path))
	s.recordConversion(s.id, s.sourcePath, statusForExport(s.state), s.chunkCount, s.track.Duration(), path)
	if s.state != StateFailed {
		s.transitionLocked(StateReady, nil)
	}
	return nil
}

func statusForExport(st State) string {
	if st == StateFailed {
		return "failed"
	}
	return "ready"
}

// Cancel aborts whatever the session is doing and returns it to Idle,
// discarding any synthesized audio. During a conversion the current chunk's
// synthesis call is interrupted best-effort.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle:
		return nil
	case StateConverting:
		s.cancelWanted = true
		if s.cancelRun != nil {
			s.cancelRun()
		}
		return nil
	case StatePlaying, StatePaused:
		if err := s.player.Stop(); err != nil {
			return err
		}
	}
	s.track.Reset()
	s.lastErr = nil
	s.transitionLocked(StateIdle, nil)
	return nil
}

// Acknowledge clears a Failed session back to Idle, discarding the retained
// prefix. Export the prefix first if it is worth keeping.
func (s *Session) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFailed {
		return fmt.Errorf("cannot acknowledge while %s", s.state)
	}
	s.track.Reset()
	s.lastErr = nil
	s.transitionLocked(StateIdle, nil)
	return nil
}

// Close waits for any background conversion to finish and releases the player.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.cancelRun != nil {
		s.cancelWanted = true
		s.cancelRun()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return s.player.Close()
}

// Healthy reports whether the session is in a known state.
func (s *Session) Healthy() bool {
	switch s.State() {
	case StateIdle, StateConverting, StateReady, StatePlaying, StatePaused, StateStopped, StateFailed:
		return true
	}
	return false
}

// playbackDone reports natural completion of one playback. The sequence
// number drops callbacks from streams that were already stopped or replaced.
func (s *Session) playbackDone(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.playSeq || s.state != StatePlaying {
		return
	}
	s.transitionLocked(StateStopped, nil)
}

// publishStatusLoop streams playback positions over the bus while the track
// plays. It exits on the first tick after the state leaves Playing.
func (s *Session) publishStatusLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		st := s.state
		id := s.id
		total := s.track.Duration()
		s.mu.Unlock()
		if st != StatePlaying {
			return
		}
		s.publish(protocol.SubjectPlaybackStatus, protocol.PlaybackStatus{
			SessionID: id,
			State:     string(st),
			Position:  s.player.Position(),
			Total:     total,
		})
	}
}

// transitionLocked moves the state machine and broadcasts the change.
// Callers must hold s.mu.
func (s *Session) transitionLocked(to State, cause error) {
	from := s.state
	s.state = to
	msg := protocol.StateChange{
		SessionID: s.id,
		From:      string(from),
		To:        string(to),
		Timestamp: time.Now().UTC(),
	}
	if cause != nil {
		msg.Error = cause.Error()
	}
	if s.playbackState != nil {
		s.playbackState.Record(context.Background(), stateOrdinal(to),
			metric.WithAttributes(attribute.String("state", string(to))))
	}
	s.publish(protocol.SubjectStateChanged, msg)
	s.log.Debug("state changed", slog.String("from", string(from)), slog.String("to", string(to)))
}

// publish pushes a notification onto the bus. Notifications are advisory;
// a missing bus (headless runs, tests) drops them.
func (s *Session) publish(subject string, v any) {
	if s.bus == nil {
		return
	}
	s.bus.PublishJSON(subject, v)
}

func (s *Session) recordConversion(id, path, status string, chunkCount int, duration time.Duration, exportPath string) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.store.RecordConversion(ctx, library.Conversion{
		ID:         id,
		SourcePath: path,
		Engine:     s.engine.Name(),
		Voice:      s.cfg.Engine.Voice,
		ChunkCount: chunkCount,
		DurationMS: duration.Milliseconds(),
		Status:     status,
		ExportPath: exportPath,
	})
	if err != nil {
		s.log.Warn("history write failed", slogError(err))
	}
}

func (s *Session) recordChunkEvent(id string, p pipeline.Progress) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	detail := fmt.Sprintf("%d bytes, %s", p.Bytes, p.Duration.Round(time.Millisecond))
	if p.Retries > 0 {
		detail = fmt.Sprintf("%s after %d retries", detail, p.Retries)
	}
	err := s.store.RecordChunkEvent(ctx, library.ChunkEvent{
		ConversionID: id,
		ChunkIndex:   p.ChunkIndex,
		Type:         "synthesized",
		Detail:       detail,
	})
	if err != nil {
		s.log.Warn("history write failed", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
