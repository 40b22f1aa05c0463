package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inkvox/inkvox/internal/bus"
	"github.com/inkvox/inkvox/internal/config"
	"github.com/inkvox/inkvox/internal/controller"
	"github.com/inkvox/inkvox/internal/library"
	"github.com/inkvox/inkvox/internal/natsserver"
	"github.com/inkvox/inkvox/internal/pipeline"
	"github.com/inkvox/inkvox/internal/player"
	"github.com/inkvox/inkvox/internal/tts"
)

// Runtime owns the long-lived pieces of the application: telemetry, the
// embedded bus, the history store, the narration session and the ops HTTP
// server. Front-ends grab the session and bus once Started is signaled.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	telemetry  *telemetry

	natsServer *natsserver.EmbeddedServer
	busClient  *bus.Client
	store      *library.Store
	plyr       player.Player
	session    *controller.Session

	started chan struct{}
	ready   atomic.Bool
	wg      sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		started: make(chan struct{}),
	}
}

// SetPlayer overrides the audio backend before Start. Hosts without an
// output device (CI, headless converts) supply their own.
func (r *Runtime) SetPlayer(p player.Player) {
	r.plyr = p
}

// Started is closed once the session and bus are usable.
func (r *Runtime) Started() <-chan struct{} { return r.started }

// Session returns the narration session. Valid after Started.
func (r *Runtime) Session() *controller.Session { return r.session }

// Bus returns the bus client. Valid after Started.
func (r *Runtime) Bus() *bus.Client { return r.busClient }

// Store returns the conversion history store. Valid after Started.
func (r *Runtime) Store() *library.Store { return r.store }

// Start brings the stack up and blocks until ctx is canceled, then tears
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := newTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel

	if r.cfg.Bus.Embedded {
		srv, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.natsServer = srv
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	store, err := library.Open(ctx, r.cfg.Library, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	r.store = store

	engine, err := tts.FromConfig(r.cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to select engine: %w", err)
	}
	if r.plyr == nil {
		r.plyr = player.NewPortAudio(r.cfg.Playback.BufferFrames, r.cfg.Playback.Volume)
	}
	pipe := pipeline.New(engine, r.logger)
	r.session = controller.New(r.cfg, r.busClient, r.store, engine, pipe, r.plyr, r.logger)

	if r.cfg.HTTP.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", r.handleHealth)
		mux.HandleFunc("/readyz", r.handleReady)
		if r.telemetry.metrics != nil {
			mux.Handle("/metrics", r.telemetry.metrics)
		}

		addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
		r.httpServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("http server failed", slog.String("error", err.Error()))
			}
		}()
		r.logger.Info("ops server listening", slog.String("addr", addr))
	}

	r.ready.Store(true)
	close(r.started)
	r.logger.Info("runtime started",
		slog.String("engine", engine.Name()),
		slog.Bool("embedded_bus", r.cfg.Bus.Embedded))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if err := r.session.Close(); err != nil {
		r.logger.Error("session shutdown error", slog.String("error", err.Error()))
	}
	if err := r.store.Close(); err != nil {
		r.logger.Error("library shutdown error", slog.String("error", err.Error()))
	}
	r.busClient.Close()
	if r.natsServer != nil {
		r.natsServer.Shutdown()
	}

	if err := r.telemetry.Close(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.session.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
