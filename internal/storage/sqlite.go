//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"qsoul/internal/model"

	_ "modernc.org/sqlite"
)

const (
	seriesEnergy = "energy_history"
	seriesVibe   = "vibe_trace"
	seriesBest   = "best"
	seriesSteps  = "steps"
	seriesDream  = "dream_log"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, schema_version, codec_version, created_at_utc, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			created_at_utc = excluded.created_at_utc,
			payload = excluded.payload
	`, run.ID, run.SchemaVersion, run.CodecVersion, run.CreatedAtUTC, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM runs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func (s *SQLiteStore) SaveEnergyHistory(ctx context.Context, runID string, history []float64) error {
	payload, err := EncodeSeries(history)
	if err != nil {
		return err
	}
	return s.putSeries(ctx, runID, seriesEnergy, payload)
}

func (s *SQLiteStore) GetEnergyHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	payload, ok, err := s.getSeries(ctx, runID, seriesEnergy)
	if err != nil || !ok {
		return nil, ok, err
	}
	history, err := DecodeSeries(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode energy history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *SQLiteStore) SaveVibeTrace(ctx context.Context, runID string, trace []float64) error {
	payload, err := EncodeSeries(trace)
	if err != nil {
		return err
	}
	return s.putSeries(ctx, runID, seriesVibe, payload)
}

func (s *SQLiteStore) GetVibeTrace(ctx context.Context, runID string) ([]float64, bool, error) {
	payload, ok, err := s.getSeries(ctx, runID, seriesVibe)
	if err != nil || !ok {
		return nil, ok, err
	}
	trace, err := DecodeSeries(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode vibe trace %s: %w", runID, err)
	}
	return trace, true, nil
}

func (s *SQLiteStore) SaveBest(ctx context.Context, runID string, best model.BestRecord) error {
	payload, err := EncodeBest(best)
	if err != nil {
		return err
	}
	return s.putSeries(ctx, runID, seriesBest, payload)
}

func (s *SQLiteStore) GetBest(ctx context.Context, runID string) (model.BestRecord, bool, error) {
	payload, ok, err := s.getSeries(ctx, runID, seriesBest)
	if err != nil || !ok {
		return model.BestRecord{}, ok, err
	}
	best, err := DecodeBest(payload)
	if err != nil {
		return model.BestRecord{}, false, fmt.Errorf("decode best %s: %w", runID, err)
	}
	return best, true, nil
}

func (s *SQLiteStore) SaveSteps(ctx context.Context, runID string, steps []model.StepRecord) error {
	payload, err := EncodeSteps(steps)
	if err != nil {
		return err
	}
	return s.putSeries(ctx, runID, seriesSteps, payload)
}

func (s *SQLiteStore) GetSteps(ctx context.Context, runID string) ([]model.StepRecord, bool, error) {
	payload, ok, err := s.getSeries(ctx, runID, seriesSteps)
	if err != nil || !ok {
		return nil, ok, err
	}
	steps, err := DecodeSteps(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode steps %s: %w", runID, err)
	}
	return steps, true, nil
}

func (s *SQLiteStore) SaveDreamLog(ctx context.Context, runID string, events []model.DreamEvent) error {
	payload, err := EncodeDreamLog(events)
	if err != nil {
		return err
	}
	return s.putSeries(ctx, runID, seriesDream, payload)
}

func (s *SQLiteStore) GetDreamLog(ctx context.Context, runID string) ([]model.DreamEvent, bool, error) {
	payload, ok, err := s.getSeries(ctx, runID, seriesDream)
	if err != nil || !ok {
		return nil, ok, err
	}
	events, err := DecodeDreamLog(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode dream log %s: %w", runID, err)
	}
	return events, true, nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_series WHERE run_id = ?`, runID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM run_series; DELETE FROM runs;`)
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) putSeries(ctx context.Context, runID, kind string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO run_series (run_id, kind, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, kind) DO UPDATE SET
			payload = excluded.payload
	`, runID, kind, payload)
	return err
}

func (s *SQLiteStore) getSeries(ctx context.Context, runID, kind string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM run_series WHERE run_id = ? AND kind = ?`, runID, kind).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			created_at_utc TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_series (
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, kind)
		);
	`)
	return err
}
