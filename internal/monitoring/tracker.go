// Package monitoring - tracker.go records interaction events to sinks.
//
// DESIGN: Tracker fans each record out to the JSONL mirror, the SQLite
// store and any live feed subscribers. Every sink is best-effort: write
// failures increment a counter and are logged, and never propagate to the
// response path.
package monitoring

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/questline/banter-gateway/internal/utils"
)

// Tracker handles interaction record fan-out.
type Tracker struct {
	config  TrackerConfig
	store   *Store
	metrics *MetricsCollector

	mu   sync.Mutex
	subs map[int]chan InteractionRecord
	next int
}

// NewTracker creates a tracker. The SQLite store is opened here when
// configured; a store open failure disables that sink rather than failing
// startup.
func NewTracker(cfg TrackerConfig, metrics *MetricsCollector) *Tracker {
	t := &Tracker{
		config:  cfg,
		metrics: metrics,
		subs:    make(map[int]chan InteractionRecord),
	}
	if !cfg.Enabled {
		return t
	}
	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
			log.Error().Err(err).Str("path", cfg.LogPath).Msg("tracker: cannot create log dir")
			t.config.LogPath = ""
		}
	}
	if cfg.DBPath != "" {
		store, err := OpenStore(cfg.DBPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.DBPath).Msg("tracker: cannot open interaction db")
		} else {
			t.store = store
		}
	}
	return t
}

// appendJSONL appends a single JSON object as a line to the file.
// Dialogue lines go through unescaped so the mirror stays grep-friendly.
func appendJSONL(path string, event any) error {
	data, err := utils.MarshalNoEscape(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// Record persists one interaction record to all configured sinks.
func (t *Tracker) Record(rec *InteractionRecord) {
	if !t.config.Enabled {
		return
	}

	if t.config.LogToStdout {
		log.Info().
			Str("request_id", shortID(rec.RequestID)).
			Str("speaker", rec.Speaker).
			Str("source", rec.Source).
			Int("score", rec.Score).
			Int64("latency_ms", rec.LatencyMs).
			Msg("interaction")
	}

	if t.config.LogPath != "" {
		if err := appendJSONL(t.config.LogPath, rec); err != nil {
			t.metrics.RecordLogWriteError()
			log.Error().Err(err).Str("path", t.config.LogPath).Msg("tracker: failed to write interaction")
		}
	}
	if t.store != nil {
		if err := t.store.AppendInteraction(rec); err != nil {
			t.metrics.RecordLogWriteError()
			log.Error().Err(err).Msg("tracker: failed to store interaction")
		}
	}

	t.mu.Lock()
	for _, ch := range t.subs {
		select {
		case ch <- *rec:
		default: // slow subscriber, drop rather than block the pipeline
		}
	}
	t.mu.Unlock()
}

// RecordCorrection persists one correction-candidate record.
func (t *Tracker) RecordCorrection(rec *CorrectionRecord) {
	if !t.config.Enabled {
		return
	}
	t.metrics.RecordCorrection()
	if t.store != nil {
		if err := t.store.AppendCorrection(rec); err != nil {
			t.metrics.RecordLogWriteError()
			log.Error().Err(err).Msg("tracker: failed to store correction")
		}
	}
}

// Subscribe registers a live feed consumer. The returned cancel func must
// be called when the consumer goes away.
func (t *Tracker) Subscribe() (<-chan InteractionRecord, func()) {
	ch := make(chan InteractionRecord, 16)
	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = ch
	t.mu.Unlock()
	return ch, func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Recent returns recent interaction records from the store, oldest first.
func (t *Tracker) Recent(limit int) ([]InteractionRecord, error) {
	if t.store == nil {
		return nil, nil
	}
	return t.store.RecentInteractions(limit)
}

// Close shuts the store down.
func (t *Tracker) Close() error {
	if t.store != nil {
		return t.store.Close()
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
