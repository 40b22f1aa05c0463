package library

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/inkvox/inkvox/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.LibraryConfig{RetentionMode: "ephemeral"}
	st, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := st.RecordConversion(ctx, Conversion{ID: "c1", SourcePath: "book.pdf", Status: "ready"}); err != nil {
		t.Fatalf("record on ephemeral store: %v", err)
	}
	conversions, err := st.ListConversions(ctx, 10)
	if err != nil {
		t.Fatalf("list conversions: %v", err)
	}
	if len(conversions) != 0 {
		t.Fatalf("ephemeral store should retain nothing, got %d rows", len(conversions))
	}
}

func TestRecordAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.LibraryConfig{Path: filepath.Join(tmp, "library.db"), RetentionMode: "session"}
	st, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open library store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	conv := Conversion{
		ID:         "conv-123",
		SourcePath: "novel.pdf",
		Engine:     "mock",
		Voice:      "default",
		ChunkCount: 3,
		DurationMS: 12500,
		Status:     "ready",
	}
	if err := st.RecordConversion(context.Background(), conv); err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	if err := st.RecordChunkEvent(context.Background(), ChunkEvent{ConversionID: conv.ID, ChunkIndex: 0, Type: "synthesized"}); err != nil {
		t.Fatalf("record chunk event: %v", err)
	}

	conversions, err := st.ListConversions(context.Background(), 10)
	if err != nil {
		t.Fatalf("list conversions: %v", err)
	}
	if len(conversions) != 1 {
		t.Fatalf("expected 1 conversion, got %d", len(conversions))
	}
	if conversions[0].SourcePath != "novel.pdf" || conversions[0].ChunkCount != 3 {
		t.Fatalf("unexpected conversion row: %+v", conversions[0])
	}

	events, err := st.ListChunkEvents(context.Background(), conv.ID, 10)
	if err != nil {
		t.Fatalf("list chunk events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != "synthesized" {
		t.Fatalf("unexpected event type: %s", events[0].Type)
	}
}

func TestUpsertUpdatesStatus(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.LibraryConfig{Path: filepath.Join(tmp, "library.db"), RetentionMode: "session"}
	st, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open library store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.RecordConversion(context.Background(), Conversion{ID: "c1", SourcePath: "a.txt", Status: "converting"}); err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	if err := st.RecordConversion(context.Background(), Conversion{ID: "c1", SourcePath: "a.txt", Status: "ready", ChunkCount: 5, ExportPath: "a.mp3"}); err != nil {
		t.Fatalf("update conversion: %v", err)
	}
	conversions, err := st.ListConversions(context.Background(), 10)
	if err != nil {
		t.Fatalf("list conversions: %v", err)
	}
	if len(conversions) != 1 {
		t.Fatalf("expected upsert to keep 1 row, got %d", len(conversions))
	}
	if conversions[0].Status != "ready" || conversions[0].ExportPath != "a.mp3" {
		t.Fatalf("unexpected row after upsert: %+v", conversions[0])
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.LibraryConfig{Path: filepath.Join(tmp, "library.db"), RetentionMode: "persistent", RetentionDays: 1, MaxConversions: 1}
	st, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open library store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	st.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := st.RecordConversion(context.Background(), Conversion{ID: "old", SourcePath: "old.pdf", Status: "ready"}); err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	if err := st.RecordChunkEvent(context.Background(), ChunkEvent{ConversionID: "old", ChunkIndex: 0, Type: "synthesized"}); err != nil {
		t.Fatalf("record chunk event: %v", err)
	}

	st.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := st.RecordConversion(context.Background(), Conversion{ID: "new", SourcePath: "new.pdf", Status: "ready"}); err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	if err := st.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := st.ListChunkEvents(context.Background(), "old", 10)
	if err != nil {
		t.Fatalf("list chunk events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old conversion events pruned")
	}
	conversions, err := st.ListConversions(context.Background(), 10)
	if err != nil {
		t.Fatalf("list conversions: %v", err)
	}
	if len(conversions) != 1 || conversions[0].ID != "new" {
		t.Fatalf("expected only the newest conversion to survive, got %+v", conversions)
	}
}
