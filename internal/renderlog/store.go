// Package renderlog persists per-tile render events to sqlite for offline
// analysis of scheduling and paint latency. Recording is optional: the
// plotter only calls in when a store is installed, and a lost event is never
// worth failing a render for.
package renderlog

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/tileplot/internal/monitoring"
	"github.com/banshee-data/tileplot/internal/plot"
)

const schema = `
CREATE TABLE IF NOT EXISTS render_events (
	event_id      TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	sm_version    INTEGER NOT NULL,
	config_id     INTEGER NOT NULL,
	zoom_level    INTEGER NOT NULL,
	row           INTEGER NOT NULL,
	col           INTEGER NOT NULL,
	item_id       INTEGER NOT NULL,
	paint_us      INTEGER NOT NULL,
	encode_us     INTEGER NOT NULL,
	tile_bytes    INTEGER NOT NULL,
	hovermap_bytes INTEGER NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_render_events_run ON render_events(run_id, created_at);
`

// Event is one persisted render event.
type Event struct {
	EventID       string
	RunID         string
	Seq           int
	SMVersion     int
	ConfigID      int
	ZoomLevel     int
	Row, Col      int
	ItemID        int
	PaintMicros   int64
	EncodeMicros  int64
	TileBytes     int
	HovermapBytes int
	CreatedAt     int64 // unix ns
}

// Store records render events under one run id. It implements plot.Recorder.
type Store struct {
	db    *sql.DB
	runID string

	mu sync.Mutex
}

// Open opens (creating if needed) the database at path and starts a new run.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open render log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply render log schema: %w", err)
	}
	return &Store{db: db, runID: uuid.New().String()}, nil
}

// RunID returns the id assigned to this run.
func (s *Store) RunID() string { return s.runID }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// retryOnBusy retries fn while sqlite reports a locked/busy database.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "locked") &&
			!strings.Contains(err.Error(), "busy") {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}

// RecordTile implements plot.Recorder. Failures are logged, not raised: the
// render already succeeded.
func (s *Store) RecordTile(rec plot.TileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO render_events (
				event_id, run_id, seq, sm_version, config_id, zoom_level,
				row, col, item_id, paint_us, encode_us, tile_bytes,
				hovermap_bytes, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), s.runID, rec.Seq, rec.Key.SMVersion,
			rec.Key.ConfigID, rec.Key.ZoomLevel, rec.Key.Row, rec.Key.Col,
			rec.Key.ItemID, rec.PaintMicros, rec.EncodeMicros,
			rec.TileBytes, rec.HovermapBytes, time.Now().UnixNano())
		return err
	})
	if err != nil {
		monitoring.Logf("render log insert failed: %v", err)
	}
}

// ListRun returns all events of one run in insertion order.
func (s *Store) ListRun(runID string) ([]*Event, error) {
	rows, err := s.db.Query(`
		SELECT event_id, run_id, seq, sm_version, config_id, zoom_level,
		       row, col, item_id, paint_us, encode_us, tile_bytes,
		       hovermap_bytes, created_at
		FROM render_events
		WHERE run_id = ?
		ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("query render events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		ev := &Event{}
		if err := rows.Scan(&ev.EventID, &ev.RunID, &ev.Seq, &ev.SMVersion,
			&ev.ConfigID, &ev.ZoomLevel, &ev.Row, &ev.Col, &ev.ItemID,
			&ev.PaintMicros, &ev.EncodeMicros, &ev.TileBytes,
			&ev.HovermapBytes, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan render event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Runs returns the distinct run ids present, most recent first.
func (s *Store) Runs() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT run_id FROM render_events
		GROUP BY run_id
		ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
