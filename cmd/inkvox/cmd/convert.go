package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkvox/inkvox/internal/controller"
	"github.com/inkvox/inkvox/internal/library"
	"github.com/inkvox/inkvox/internal/pipeline"
	"github.com/inkvox/inkvox/internal/player"
	"github.com/inkvox/inkvox/internal/tts"
)

var (
	convertOutput    string
	convertEngine    string
	convertVoice     string
	convertRate      float64
	convertPages     string
	convertChunkSize int
)

var convertCmd = &cobra.Command{
	Use:   "convert <document>",
	Short: "Convert a document to an audio file without the TUI",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output path (default: document name with the configured format)")
	convertCmd.Flags().StringVar(&convertEngine, "engine", "", "engine mode: offline, online or mock (default from config)")
	convertCmd.Flags().StringVar(&convertVoice, "voice", "", "voice identifier passed to the engine")
	convertCmd.Flags().Float64Var(&convertRate, "rate", 0, "speech rate multiplier (default from config)")
	convertCmd.Flags().StringVar(&convertPages, "pages", "", `page range for PDF sources, e.g. "3" or "1-5"`)
	convertCmd.Flags().IntVar(&convertChunkSize, "chunk-size", 0, "maximum chunk size in characters (default from config)")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if convertEngine != "" {
		cfg.Engine.Mode = convertEngine
	}
	if convertVoice != "" {
		cfg.Engine.Voice = convertVoice
	}
	if convertRate > 0 {
		cfg.Engine.Rate = convertRate
	}
	if convertPages != "" {
		cfg.Extract.Pages = convertPages
	}
	if convertChunkSize > 0 {
		cfg.Chunker.MaxChunkSize = convertChunkSize
	}
	logger, cleanup, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	store, err := library.Open(ctx, cfg.Library, logger)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer store.Close()

	engine, err := tts.FromConfig(cfg.Engine)
	if err != nil {
		return err
	}

	sess := controller.New(cfg, nil, store, engine, pipeline.New(engine, logger), player.NewNull(), logger)
	defer sess.Close()

	source := args[0]
	if err := sess.Convert(source); err != nil {
		return err
	}
	<-sess.Done()

	if sess.State() == controller.StateFailed {
		return fmt.Errorf("conversion failed: %w", sess.LastError())
	}

	out := convertOutput
	if out == "" {
		out = strings.TrimSuffix(source, filepath.Ext(source)) + "." + cfg.Export.Format
	}
	if err := sess.Export(out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
	return nil
}
