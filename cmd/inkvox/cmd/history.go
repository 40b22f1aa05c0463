package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkvox/inkvox/internal/library"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent conversions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of conversions to list")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := library.Open(context.Background(), cfg.Library, logger)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer store.Close()

	conversions, err := store.ListConversions(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(conversions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no conversions recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSTATUS\tCHUNKS\tDURATION\tENGINE\tSOURCE")
	for _, c := range conversions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			c.CreatedAt.Local().Format("2006-01-02 15:04"),
			c.Status,
			c.ChunkCount,
			(time.Duration(c.DurationMS) * time.Millisecond).Round(time.Second),
			c.Engine,
			c.SourcePath)
	}
	return w.Flush()
}
