package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inkvox/inkvox/internal/config"
	"github.com/inkvox/inkvox/internal/runtime"
	"github.com/inkvox/inkvox/internal/tui"
)

var (
	cfgFile string
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "inkvox",
	Short: "inkvox turns documents into narrated audio",
	Long: `inkvox extracts text from a PDF (or plain text) document, narrates it
with a speech engine in bounded chunks, and plays back or exports the
assembled track.

Running inkvox with no subcommand opens the interactive terminal front-end.

Keys:
  o       open a document
  enter   start the conversion
  space   play / pause / resume
  s       stop
  e       export to the configured format
  c       cancel
  q       quit`,
	RunE:         runTUI,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "inkvox.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write JSON logs to this file (TUI runs discard logs otherwise)")
}

func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "inkvox.yaml" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the JSON logger. The TUI owns the terminal, so logs go to
// a file when one is given and are discarded otherwise; headless commands
// pass os.Stderr.
func newLogger(cfg config.Config, fallback io.Writer) (*slog.Logger, func(), error) {
	w := fallback
	cleanup := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		cleanup = func() { _ = f.Close() }
	}
	if w == nil {
		w = io.Discard
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)})
	return slog.New(handler), cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt := runtime.New(cfg, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- rt.Start(ctx) }()

	select {
	case <-rt.Started():
	case err := <-errCh:
		if err != nil {
			return err
		}
		return fmt.Errorf("runtime stopped before startup completed")
	}

	uiErr := tui.Run(cfg, rt.Session(), rt.Bus(), rt.Session().Engine())
	cancel()
	if err := <-errCh; err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
	}
	return uiErr
}
