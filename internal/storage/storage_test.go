package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), ".etlpipe", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestRunStore(t *testing.T) {
	store := NewRunStore(openTestDB(t))
	base := time.Date(2024, time.March, 7, 9, 0, 0, 0, time.UTC)

	for i, name := range []string{"gdp", "banks", "gdp"} {
		started := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateRunLog(&etl.SyncRunLog{
			Pipeline:    name,
			StartedAt:   started,
			FinishedAt:  started.Add(1500 * time.Millisecond),
			Status:      "success",
			Phase:       "ended",
			RowsRead:    10 + i,
			RowsWritten: 20 + i,
		}))
	}
	failed := &etl.SyncRunLog{
		ID:         "fixed-id",
		Pipeline:   "banks",
		StartedAt:  base.Add(10 * time.Minute),
		FinishedAt: base.Add(10 * time.Minute),
		Status:     "error",
		Phase:      "extracting",
		Error:      "source unavailable",
		Trigger:    "schedule",
	}
	require.NoError(t, store.CreateRunLog(failed))

	all, err := store.ListRunLogs("", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "fixed-id", all[0].ID)

	gdp, err := store.ListRunLogs("gdp", 10)
	require.NoError(t, err)
	require.Len(t, gdp, 2)
	require.Equal(t, 12, gdp[0].RowsRead)
	require.Equal(t, "manual", gdp[0].Trigger)
	require.True(t, gdp[0].StartedAt.Equal(base.Add(2*time.Minute)))
	require.Equal(t, 1500*time.Millisecond, gdp[0].FinishedAt.Sub(gdp[0].StartedAt))

	got, err := store.GetRunLog("fixed-id")
	require.NoError(t, err)
	require.Equal(t, "schedule", got.Trigger)
	require.Equal(t, "source unavailable", got.Error)

	_, err = store.GetRunLog("nope")
	require.ErrorContains(t, err, "run not found")

	last, err := store.LastRuns()
	require.NoError(t, err)
	require.Len(t, last, 2)
	require.Equal(t, "error", last["banks"].Status)
	require.Equal(t, 12, last["gdp"].RowsRead)
}

func TestQueryResultStore(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunStore(db)
	results := NewQueryResultStore(db)

	run := &etl.SyncRunLog{Pipeline: "banks", StartedAt: time.Now(), FinishedAt: time.Now(), Status: "success"}
	require.NoError(t, runs.CreateRunLog(run))

	names, err := domain.NewFrame([]string{"Name"}, [][]any{{"JPMorgan Chase", "Bank of America"}})
	require.NoError(t, err)
	avg, err := domain.NewFrame([]string{"AVG(MC_GBP_Billion)"}, [][]any{{151.99}})
	require.NoError(t, err)

	require.NoError(t, results.SaveResults(run.ID, []etl.QueryResult{
		{Query: "SELECT Name from Largest_banks LIMIT 5", Frame: names},
		{Query: "SELECT AVG(MC_GBP_Billion) FROM Largest_banks", Frame: avg},
	}))

	got, err := results.ListResults(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "SELECT Name from Largest_banks LIMIT 5", got[0].Query)
	require.Equal(t, names.Rows(), got[0].Frame.Rows())
	require.Equal(t, 151.99, got[1].Frame.Value(0, "AVG(MC_GBP_Billion)"))

	none, err := results.ListResults("other")
	require.NoError(t, err)
	require.Empty(t, none)
}
