package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"etlpipe/internal/etl"
)

// RunStore persists pipeline run history. It implements etl.RunRecorder.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// ── Run Logs ───────────────────────────────────────────────

func (s *RunStore) CreateRunLog(log *etl.SyncRunLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.Trigger == "" {
		log.Trigger = "manual"
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO etl_runs (id, pipeline, started_at, finished_at, status, phase, rows_read, rows_written, error, triggered_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Pipeline, log.StartedAt.UnixMilli(), log.FinishedAt.UnixMilli(),
		log.Status, log.Phase, log.RowsRead, log.RowsWritten, log.Error, log.Trigger,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", log.ID, err)
	}
	return nil
}

const runColumns = `id, pipeline, started_at, finished_at, status, phase, rows_read, rows_written, error, triggered_by`

// GetRunLog returns one run by id.
func (s *RunStore) GetRunLog(id string) (*etl.SyncRunLog, error) {
	row := s.db.conn.QueryRow(`SELECT `+runColumns+` FROM etl_runs WHERE id = ?`, id)
	l, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ListRunLogs returns the newest runs first. An empty pipeline lists all.
func (s *RunStore) ListRunLogs(pipeline string, limit int) ([]etl.SyncRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if pipeline == "" {
		rows, err = s.db.conn.Query(
			`SELECT `+runColumns+` FROM etl_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.conn.Query(
			`SELECT `+runColumns+` FROM etl_runs WHERE pipeline = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
			pipeline, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.SyncRunLog
	for rows.Next() {
		l, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// LastRuns returns the newest run of every pipeline, keyed by pipeline name.
func (s *RunStore) LastRuns() (map[string]etl.SyncRunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT ` + runColumns + ` FROM etl_runs r
		 WHERE started_at = (SELECT MAX(started_at) FROM etl_runs WHERE pipeline = r.pipeline)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	last := map[string]etl.SyncRunLog{}
	for rows.Next() {
		l, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		last[l.Pipeline] = *l
	}
	return last, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*etl.SyncRunLog, error) {
	var (
		l                 etl.SyncRunLog
		started, finished int64
	)
	if err := sc.Scan(&l.ID, &l.Pipeline, &started, &finished, &l.Status, &l.Phase,
		&l.RowsRead, &l.RowsWritten, &l.Error, &l.Trigger); err != nil {
		return nil, err
	}
	l.StartedAt = time.UnixMilli(started)
	l.FinishedAt = time.UnixMilli(finished)
	return &l, nil
}
