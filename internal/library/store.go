package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/inkvox/inkvox/internal/config"
	_ "modernc.org/sqlite"
)

// Conversion records one run of a document through the synthesis pipeline.
type Conversion struct {
	ID         string
	SourcePath string
	Engine     string
	Voice      string
	ChunkCount int
	DurationMS int64
	Status     string
	ExportPath string
	CreatedAt  time.Time
}

// ChunkEvent captures a per-chunk milestone within a conversion.
type ChunkEvent struct {
	ID           int64
	ConversionID string
	ChunkIndex   int
	Type         string
	Detail       string
	CreatedAt    time.Time
}

// Store wraps the SQLite-backed conversion history.
type Store struct {
	db    *sql.DB
	cfg   config.LibraryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the library store according to config.
func Open(ctx context.Context, cfg config.LibraryConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("library vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("library prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS conversions (
    conversion_id TEXT PRIMARY KEY,
    source_path TEXT NOT NULL,
    engine TEXT,
    voice TEXT,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    export_path TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS chunk_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversion_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    event_type TEXT,
    detail TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(conversion_id) REFERENCES conversions(conversion_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_chunk_events_conversion ON chunk_events(conversion_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordConversion inserts or updates a conversion row.
func (s *Store) RecordConversion(ctx context.Context, c Conversion) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions(conversion_id, source_path, engine, voice, chunk_count, duration_ms, status, export_path, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(conversion_id) DO UPDATE SET
		   chunk_count=excluded.chunk_count,
		   duration_ms=excluded.duration_ms,
		   status=excluded.status,
		   export_path=excluded.export_path`,
		c.ID, c.SourcePath, c.Engine, c.Voice, c.ChunkCount, c.DurationMS, c.Status, c.ExportPath, c.CreatedAt)
	return err
}

// RecordChunkEvent appends a per-chunk milestone for a conversion.
func (s *Store) RecordChunkEvent(ctx context.Context, evt ChunkEvent) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunk_events(conversion_id, chunk_index, event_type, detail, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		evt.ConversionID, evt.ChunkIndex, evt.Type, evt.Detail, evt.CreatedAt)
	return err
}

// ListConversions returns up to limit conversions ordered newest first.
func (s *Store) ListConversions(ctx context.Context, limit int) ([]Conversion, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversion_id, source_path, engine, voice, chunk_count, duration_ms, status, export_path, created_at
		 FROM conversions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversion
	for rows.Next() {
		var c Conversion
		var created string
		if err := rows.Scan(&c.ID, &c.SourcePath, &c.Engine, &c.Voice, &c.ChunkCount, &c.DurationMS, &c.Status, &c.ExportPath, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			c.CreatedAt = ts
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListChunkEvents retrieves up to limit events for a conversion ordered ascending by time.
func (s *Store) ListChunkEvents(ctx context.Context, conversionID string, limit int) ([]ChunkEvent, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversion_id, chunk_index, event_type, detail, created_at
		 FROM chunk_events WHERE conversion_id = ? ORDER BY created_at ASC LIMIT ?`, conversionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ChunkEvent
	for rows.Next() {
		var e ChunkEvent
		var created string
		if err := rows.Scan(&e.ID, &e.ConversionID, &e.ChunkIndex, &e.Type, &e.Detail, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionMode != "persistent" && s.cfg.RetentionMode != "session" {
		// nothing to prune
		return tx.Commit()
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM chunk_events WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM conversions WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxConversions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM conversions WHERE conversion_id IN (
			SELECT conversion_id FROM conversions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxConversions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Ensure verifies the ephemeral mode invariant.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
