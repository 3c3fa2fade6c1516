package progress

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, time.March, 7, 9, 5, 3, 0, time.UTC)
}

func TestLoggerAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "code_log.txt")
	l := New(path, WithClock(fixedClock))

	require.NoError(t, l.Log("ETL Job Started"))
	require.NoError(t, l.Log("Extract phase Started"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t,
		"2024-Mar-07-09:05:03,ETL Job Started\n2024-Mar-07-09:05:03,Extract phase Started\n",
		string(data))
}

func TestLoggerLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log_file.txt")
	l := New(path, WithClock(fixedClock), WithLegacyTimestamp(true))

	require.NoError(t, l.Log("ETL Job Ended"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "2024-Mar-0709:05:03,ETL Job Ended\n", string(data))
}

func TestLoggerKeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("previous\n"), 0o644))

	require.NoError(t, New(path, WithClock(fixedClock)).Log("next"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "previous\n2024-Mar-07-09:05:03,next\n", string(data))
}
