// Package monitoring - store.go persists interaction records to SQLite.
//
// DESIGN: The store is append-only: the pipeline only ever inserts, and
// the quality endpoint reads recent rows back. Schema stays flat so rows
// map 1:1 to InteractionRecord.
package monitoring

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed interaction log.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the interaction database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open interaction db: %w", err)
	}
	schema := `
CREATE TABLE IF NOT EXISTS interactions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id  TEXT NOT NULL,
	ts          INTEGER NOT NULL,
	speaker     TEXT NOT NULL,
	intent      TEXT NOT NULL,
	source      TEXT NOT NULL,
	terminal    TEXT NOT NULL,
	provider    TEXT,
	score       INTEGER NOT NULL,
	guard_flags TEXT,
	reasons     TEXT,
	latency_ms  INTEGER NOT NULL,
	text        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_speaker ON interactions(speaker);
CREATE TABLE IF NOT EXISTS corrections (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id    TEXT NOT NULL,
	ts            INTEGER NOT NULL,
	speaker       TEXT NOT NULL,
	intent        TEXT NOT NULL,
	model_text    TEXT NOT NULL,
	fallback_text TEXT NOT NULL,
	score         INTEGER NOT NULL,
	reasons       TEXT
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// AppendInteraction inserts one interaction record.
func (s *Store) AppendInteraction(rec *InteractionRecord) error {
	flags, _ := json.Marshal(rec.GuardFlags)
	reasons, _ := json.Marshal(rec.Reasons)
	_, err := s.db.Exec(`INSERT INTO interactions
		(request_id, ts, speaker, intent, source, terminal, provider, score, guard_flags, reasons, latency_ms, text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Timestamp.UnixMilli(), rec.Speaker, rec.Intent,
		rec.Source, rec.Terminal, rec.Provider, rec.Score,
		string(flags), string(reasons), rec.LatencyMs, rec.Text)
	return err
}

// AppendCorrection inserts one correction-candidate record.
func (s *Store) AppendCorrection(rec *CorrectionRecord) error {
	reasons, _ := json.Marshal(rec.Reasons)
	_, err := s.db.Exec(`INSERT INTO corrections
		(request_id, ts, speaker, intent, model_text, fallback_text, score, reasons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Timestamp.UnixMilli(), rec.Speaker, rec.Intent,
		rec.ModelText, rec.FallbackText, rec.Score, string(reasons))
	return err
}

// RecentInteractions returns up to limit most recent records, oldest first.
func (s *Store) RecentInteractions(limit int) ([]InteractionRecord, error) {
	rows, err := s.db.Query(`SELECT request_id, ts, speaker, intent, source, terminal,
		COALESCE(provider, ''), score, COALESCE(guard_flags, '[]'),
		COALESCE(reasons, '[]'), latency_ms, text
		FROM interactions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []InteractionRecord
	for rows.Next() {
		var rec InteractionRecord
		var ts int64
		var flags, reasons string
		if err := rows.Scan(&rec.RequestID, &ts, &rec.Speaker, &rec.Intent,
			&rec.Source, &rec.Terminal, &rec.Provider, &rec.Score,
			&flags, &reasons, &rec.LatencyMs, &rec.Text); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMilli(ts)
		_ = json.Unmarshal([]byte(flags), &rec.GuardFlags)
		_ = json.Unmarshal([]byte(reasons), &rec.Reasons)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse to oldest-first for report building.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
