package dbclient

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"etlpipe/internal/domain"
)

func openTestSQLite(t *testing.T) Connector {
	t.Helper()
	conn, err := NewConnector(&domain.DatabaseConnection{
		Name:   "staff",
		Driver: domain.DatabaseDriverSQLite,
		Host:   filepath.Join(t.TempDir(), "db", "STAFF.db"),
	}, "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func instructorFrame(t *testing.T, rows ...[]any) *domain.Frame {
	t.Helper()
	b, err := domain.NewBuilder("ID", "FNAME", "LNAME", "CITY", "CCODE")
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, b.Append(r...))
	}
	return b.Frame()
}

func TestWriteTableReplaceThenAppend(t *testing.T) {
	ctx := context.Background()
	conn := openTestSQLite(t)

	initial := instructorFrame(t,
		[]any{1, "Rav", "Ahuja", "TORONTO", "CA"},
		[]any{2, "Raul", "Chong", "Markham", "CA"},
	)
	n, err := conn.WriteTable(ctx, "INSTRUCTOR", initial, domain.WriteReplace)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Replace again: the table is recreated, not appended to.
	n, err = conn.WriteTable(ctx, "INSTRUCTOR", initial, domain.WriteReplace)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	extra := instructorFrame(t, []any{100, "Jonh", "Doe", "Paris", "FR"})
	n, err = conn.WriteTable(ctx, "INSTRUCTOR", extra, domain.WriteAppend)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	count, err := QueryFrame(ctx, conn, "SELECT COUNT(*) AS n FROM INSTRUCTOR")
	require.NoError(t, err)
	require.Equal(t, int64(3), count.Value(0, "n"))

	all, err := QueryFrame(ctx, conn, "SELECT * FROM INSTRUCTOR ORDER BY ID")
	require.NoError(t, err)
	require.Equal(t, []string{"ID", "FNAME", "LNAME", "CITY", "CCODE"}, all.Columns())
	if diff := cmp.Diff([]any{int64(100), "Jonh", "Doe", "Paris", "FR"}, all.Row(2)); diff != "" {
		t.Fatalf("appended row (-want +got):\n%s", diff)
	}
}

func TestWriteTableAppendSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	conn := openTestSQLite(t)

	_, err := conn.WriteTable(ctx, "INSTRUCTOR", instructorFrame(t, []any{1, "Rav", "Ahuja", "TORONTO", "CA"}), domain.WriteReplace)
	require.NoError(t, err)

	wrong, err := domain.NewFrame([]string{"ID", "NAME"}, [][]any{{2}, {"x"}})
	require.NoError(t, err)
	_, err = conn.WriteTable(ctx, "INSTRUCTOR", wrong, domain.WriteAppend)
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	// Same names, different order is still a mismatch.
	reordered, err := instructorFrame(t, []any{3, "A", "B", "C", "D"}).Select("FNAME", "ID", "LNAME", "CITY", "CCODE")
	require.NoError(t, err)
	_, err = conn.WriteTable(ctx, "INSTRUCTOR", reordered, domain.WriteAppend)
	require.ErrorIs(t, err, domain.ErrSchemaMismatch)

	count, err := QueryFrame(ctx, conn, "SELECT COUNT(*) AS n FROM INSTRUCTOR")
	require.NoError(t, err)
	require.Equal(t, int64(1), count.Value(0, "n"))
}

func TestWriteTableAppendCreatesMissingTable(t *testing.T) {
	ctx := context.Background()
	conn := openTestSQLite(t)

	dept, err := domain.NewFrame(
		[]string{"DEPT_ID", "DEP_NAME", "MANAGER_ID", "LOC_ID"},
		[][]any{{9}, {"Quality Assurance"}, {30010}, {"L0010"}},
	)
	require.NoError(t, err)

	n, err := conn.WriteTable(ctx, "Departments", dept, domain.WriteAppend)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	schema, err := conn.Introspect(ctx)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	require.Equal(t, "Departments", schema.Tables[0].Name)
	require.Equal(t, []ColumnInfo{
		{Name: "DEPT_ID", Type: "INTEGER"},
		{Name: "DEP_NAME", Type: "TEXT"},
		{Name: "MANAGER_ID", Type: "INTEGER"},
		{Name: "LOC_ID", Type: "TEXT"},
	}, schema.Tables[0].Columns)
}

func TestQueryFramePagesThroughCursor(t *testing.T) {
	ctx := context.Background()
	conn := openTestSQLite(t)

	b, err := domain.NewBuilder("Name", "MC_GBP_Billion")
	require.NoError(t, err)
	for i := 0; i < queryPageSize*2+7; i++ {
		require.NoError(t, b.Append("bank", float64(i)))
	}
	_, err = conn.WriteTable(ctx, "Largest_banks", b.Frame(), domain.WriteReplace)
	require.NoError(t, err)

	f, err := QueryFrame(ctx, conn, "SELECT * FROM Largest_banks")
	require.NoError(t, err)
	require.Equal(t, queryPageSize*2+7, f.Len())
	require.Equal(t, domain.KindNumber, f.Kind("MC_GBP_Billion"))

	avg, err := QueryFrame(ctx, conn, "SELECT AVG(MC_GBP_Billion) FROM Largest_banks")
	require.NoError(t, err)
	require.Equal(t, []string{"AVG(MC_GBP_Billion)"}, avg.Columns())
	require.InDelta(t, float64(queryPageSize*2+6)/2, avg.Value(0, "AVG(MC_GBP_Billion)"), 1e-9)

	write, err := QueryFrame(ctx, conn, "DELETE FROM Largest_banks WHERE MC_GBP_Billion > 10")
	require.NoError(t, err)
	require.Equal(t, 0, write.Width())
}

func TestUniqueNames(t *testing.T) {
	require.Equal(t, []string{"a", "b", "a_2", "a_3"}, uniqueNames([]string{"a", "b", "a", "a"}))
	require.Equal(t, []string{"a", "a_2", "a_2_2"}, uniqueNames([]string{"a", "a", "a_2"}))
}
