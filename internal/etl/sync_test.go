package etl_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"etlpipe/internal/dbclient"
	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
	_ "etlpipe/internal/etl/sources"
	"etlpipe/internal/progress"
)

type memRuns struct{ logs []*etl.SyncRunLog }

func (m *memRuns) CreateRunLog(l *etl.SyncRunLog) error {
	m.logs = append(m.logs, l)
	return nil
}

func fixedClock() time.Time { return time.Date(2024, time.March, 7, 9, 5, 3, 0, time.UTC) }

func openSQLite(t *testing.T, dir string) dbclient.Connector {
	t.Helper()
	conn, err := dbclient.NewConnector(&domain.DatabaseConnection{
		Name:   "staff",
		Driver: domain.DatabaseDriverSQLite,
		Host:   filepath.Join(dir, "STAFF.db"),
	}, "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func logLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func instructorPipeline(dir string) *etl.Pipeline {
	return &etl.Pipeline{
		Name: "instructor",
		Source: etl.SourceDescriptor{Type: "csv_file", Config: etl.SourceConfig{
			"filePath": filepath.Join(dir, "INSTRUCTOR.csv"),
			"columns":  []any{"ID", "FNAME", "LNAME", "CITY", "CCODE"},
		}},
		Sinks: []etl.SinkConfig{
			{Type: "csv_file", Path: filepath.Join(dir, "out", "instructor.csv"), Index: true},
			{Type: "table", Table: "INSTRUCTOR", Mode: domain.WriteReplace},
		},
		Connection: "staff",
		Queries: []string{
			"SELECT * FROM {table}",
			"SELECT FNAME FROM {table}",
			"SELECT COUNT(*) FROM {table}",
		},
	}
}

func TestRunSyncEndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "INSTRUCTOR.csv"),
		[]byte("1,Rav,Ahuja,TORONTO,CA\n2,Raul,Chong,Markham,CA\n3,Hima,Vasudevan,Chicago,US\n"), 0o644))

	logPath := filepath.Join(dir, "etl_log.txt")
	runs := &memRuns{}
	engine := &etl.Engine{
		Progress: progress.New(logPath, progress.WithClock(fixedClock)),
		Conn:     openSQLite(t, dir),
		Runs:     runs,
	}

	res, err := engine.RunSync(context.Background(), instructorPipeline(dir))
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)
	require.Equal(t, etl.PhaseEnded, res.Phase)
	require.Equal(t, 3, res.RowsRead)
	require.Equal(t, 6, res.RowsWritten)
	require.NotEmpty(t, res.RunID)

	require.Len(t, res.Queries, 3)
	require.Equal(t, "SELECT * FROM INSTRUCTOR", res.Queries[0].Query)
	require.Equal(t, 3, res.Queries[0].Frame.Len())
	require.Equal(t, []string{"FNAME"}, res.Queries[1].Frame.Columns())
	require.Equal(t, int64(3), res.Queries[2].Frame.Row(0)[0])

	require.Equal(t, []string{
		"2024-Mar-07-09:05:03,ETL Job Started",
		"2024-Mar-07-09:05:03,Extract phase Started",
		"2024-Mar-07-09:05:03,Extract phase Ended",
		"2024-Mar-07-09:05:03,Transform phase Started",
		"2024-Mar-07-09:05:03,Transform phase Ended",
		"2024-Mar-07-09:05:03,Load phase Started",
		"2024-Mar-07-09:05:03,Load phase Ended",
		"2024-Mar-07-09:05:03,Running queries",
		"2024-Mar-07-09:05:03,ETL Job Ended",
	}, logLines(t, logPath))

	data, err := os.ReadFile(filepath.Join(dir, "out", "instructor.csv"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), ",ID,FNAME,LNAME,CITY,CCODE\n0,1,Rav,Ahuja,TORONTO,CA\n"))

	require.Len(t, runs.logs, 1)
	require.Equal(t, res.RunID, runs.logs[0].ID)
	require.Equal(t, "ended", runs.logs[0].Phase)
}

const banksPage = `<html><body><table><tbody>
<tr><th>Rank</th><th>Bank name</th><th>Market cap (US$ billion)</th></tr>
<tr><td>1</td><td><a href="/a">JPMorgan Chase</a></td><td>400</td></tr>
<tr><td>2</td><td><a href="/b">Bank of America</a></td><td>250</td></tr>
<tr><td>3</td><td><a href="/c">Agricultural Bank of China</a></td><td>—</td></tr>
<tr><td>4</td><td><a href="/d">HDFC Bank</a></td><td>200</td></tr>
<tr><td>5</td><td><a href="/e">Wells Fargo</a></td><td>100</td></tr>
</tbody></table></body></html>`

func TestRunSyncScrapeConvertAndLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(banksPage))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	engine := &etl.Engine{Conn: openSQLite(t, dir)}
	p := &etl.Pipeline{
		Name: "banks",
		Source: etl.SourceDescriptor{Type: "html_table", Config: etl.SourceConfig{
			"url": srv.URL,
			"columns": []any{
				map[string]any{"name": "Name", "cell": 1, "anchor": true},
				map[string]any{"name": "MC_USD_Billion", "cell": 2, "kind": "number"},
			},
		}},
		Transforms: []etl.TransformConfig{{Type: "currency", Config: map[string]any{
			"field": "MC_USD_Billion",
			"rates": map[string]any{"GBP": 0.8, "EUR": 0.93},
			"targets": []any{
				map[string]any{"currency": "GBP", "field": "MC_GBP_Billion"},
				map[string]any{"currency": "EUR", "field": "MC_EUR_Billion"},
			},
		}}},
		Sinks:      []etl.SinkConfig{{Type: "table", Table: "Largest_banks", Mode: domain.WriteReplace}},
		Connection: "staff",
		Queries:    []string{"SELECT AVG(MC_GBP_Billion) AS avg_gbp FROM {table}"},
	}

	res, err := engine.RunSync(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)
	require.Equal(t, 4, res.RowsRead)
	require.Equal(t, 4, res.RowsWritten)

	require.Len(t, res.Queries, 1)
	require.InDelta(t, 190.0, res.Queries[0].Frame.Value(0, "avg_gbp"), 1e-9)

	eur, err := dbclient.QueryFrame(context.Background(), engine.Conn,
		"SELECT MC_EUR_Billion FROM Largest_banks WHERE Name = 'Bank of America'")
	require.NoError(t, err)
	require.Equal(t, 232.5, eur.Value(0, "MC_EUR_Billion"))
}

func TestRunSyncAppendsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "INSTRUCTOR.csv"),
		[]byte("1,Rav,Ahuja,TORONTO,CA\n2,Raul,Chong,Markham,CA\n"), 0o644))
	engine := &etl.Engine{Conn: openSQLite(t, dir)}

	_, err := engine.RunSync(context.Background(), instructorPipeline(dir))
	require.NoError(t, err)

	appendRow := &etl.Pipeline{
		Name: "instructor_append",
		Source: etl.SourceDescriptor{Type: "inline", Config: etl.SourceConfig{
			"columns": []any{"ID", "FNAME", "LNAME", "CITY", "CCODE"},
			"rows":    []any{[]any{100, "Jonh", "Doe", "Paris", "FR"}},
		}},
		Sinks:   []etl.SinkConfig{{Type: "table", Table: "INSTRUCTOR", Mode: domain.WriteAppend}},
		Queries: []string{"SELECT COUNT(*) AS n FROM {table}"},
	}
	res, err := engine.RunSync(context.Background(), appendRow)
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Queries[0].Frame.Value(0, "n"))

	mismatched := *appendRow
	mismatched.Source = etl.SourceDescriptor{Type: "inline", Config: etl.SourceConfig{
		"columns": []any{"ID", "NAME"},
		"rows":    []any{[]any{101, "Someone"}},
	}}
	res, err = engine.RunSync(context.Background(), &mismatched)
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)
	require.Equal(t, etl.PhaseLoading, res.Phase)
}

func TestRunSyncFailureStopsAtPhase(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "etl_log.txt")
	runs := &memRuns{}
	engine := &etl.Engine{
		Progress: progress.New(logPath, progress.WithClock(fixedClock), progress.WithLegacyTimestamp(true)),
		Runs:     runs,
	}

	p := &etl.Pipeline{
		Name: "missing",
		Source: etl.SourceDescriptor{Type: "csv_file", Config: etl.SourceConfig{
			"filePath": filepath.Join(dir, "nope.csv"),
		}},
		Sinks: []etl.SinkConfig{{Type: "csv_file", Path: filepath.Join(dir, "out.csv")}},
	}
	res, err := engine.RunSync(context.Background(), p)
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	require.Equal(t, "error", res.Status)
	require.Equal(t, etl.PhaseExtracting, res.Phase)

	require.Equal(t, []string{
		"2024-Mar-0709:05:03,ETL Job Started",
		"2024-Mar-0709:05:03,Extract phase Started",
	}, logLines(t, logPath))
	require.NoFileExists(t, filepath.Join(dir, "out.csv"))

	require.Len(t, runs.logs, 1)
	require.Equal(t, "error", runs.logs[0].Status)
	require.NotEmpty(t, runs.logs[0].Error)
}

func TestRunSyncRejectsBadConfigBeforeExtract(t *testing.T) {
	dir := t.TempDir()
	engine := &etl.Engine{}

	_, err := engine.RunSync(context.Background(), &etl.Pipeline{
		Name:   "no-conn",
		Source: etl.SourceDescriptor{Type: "inline", Config: etl.SourceConfig{"columns": []any{"a"}}},
		Sinks:  []etl.SinkConfig{{Type: "table", Table: "t"}},
	})
	require.ErrorContains(t, err, "no connection")

	_, err = engine.RunSync(context.Background(), &etl.Pipeline{
		Name:       "bad-transform",
		Source:     etl.SourceDescriptor{Type: "csv_file", Config: etl.SourceConfig{"filePath": filepath.Join(dir, "x.csv")}},
		Transforms: []etl.TransformConfig{{Type: "explode"}},
	})
	require.ErrorContains(t, err, "unknown transform type")

	_, err = engine.RunSync(context.Background(), &etl.Pipeline{
		Name:   "bad-source",
		Source: etl.SourceDescriptor{Type: "parquet"},
	})
	require.Error(t, err)
}

func TestPreview(t *testing.T) {
	engine := &etl.Engine{}
	p := &etl.Pipeline{
		Name: "cars",
		Source: etl.SourceDescriptor{Type: "inline", Config: etl.SourceConfig{
			"columns": []any{"car_model", "price"},
			"rows": []any{
				[]any{"ritz", 5000.0},
				[]any{"sx4", 7089.552238805969},
				[]any{"ciaz", 10223.880597014925},
			},
		}},
		Transforms: []etl.TransformConfig{{Type: "round", Config: map[string]any{"field": "price", "places": 2}}},
		Sinks:      []etl.SinkConfig{{Type: "csv_file", Path: filepath.Join(t.TempDir(), "never.csv")}},
	}

	f, err := engine.Preview(context.Background(), p, 2)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	require.Equal(t, 7089.55, f.Value(1, "price"))
	require.NoFileExists(t, p.Sinks[0].Path)
}

func TestPhaseMessages(t *testing.T) {
	require.Equal(t, "ETL Job Started", etl.PhaseStarted.Message())
	require.Equal(t, "Running queries", etl.PhaseQuerying.Message())
	require.Equal(t, "ETL Job Ended", etl.PhaseEnded.Message())

	text, err := etl.PhaseTransformed.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "transformed", string(text))
}
