package storage

import (
	"encoding/json"
	"fmt"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// QueryResultStore keeps the post-load query results of each run.
type QueryResultStore struct {
	db *DB
}

// NewQueryResultStore creates a new QueryResultStore.
func NewQueryResultStore(db *DB) *QueryResultStore {
	return &QueryResultStore{db: db}
}

// SaveResults stores a run's query results in execution order.
func (s *QueryResultStore) SaveResults(runID string, results []etl.QueryResult) error {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, r := range results {
		frameJSON, err := json.Marshal(r.Frame)
		if err != nil {
			return fmt.Errorf("encode result %d: %w", i, err)
		}
		_, err = tx.Exec(
			`INSERT INTO etl_query_results (run_id, seq, query, frame_json, total_rows)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(run_id, seq) DO UPDATE SET
			   query=excluded.query, frame_json=excluded.frame_json, total_rows=excluded.total_rows`,
			runID, i, r.Query, string(frameJSON), r.Frame.Len(),
		)
		if err != nil {
			return fmt.Errorf("insert result %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ListResults returns a run's stored query results in execution order.
func (s *QueryResultStore) ListResults(runID string) ([]etl.QueryResult, error) {
	rows, err := s.db.Conn().Query(
		`SELECT query, frame_json FROM etl_query_results WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []etl.QueryResult
	for rows.Next() {
		var query, frameJSON string
		if err := rows.Scan(&query, &frameJSON); err != nil {
			return nil, fmt.Errorf("scan query result: %w", err)
		}
		f := &domain.Frame{}
		if err := json.Unmarshal([]byte(frameJSON), f); err != nil {
			return nil, fmt.Errorf("decode query result: %w", err)
		}
		results = append(results, etl.QueryResult{Query: query, Frame: f})
	}
	return results, rows.Err()
}
