package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"etlpipe/internal/domain"
)

// dialect captures the SQL differences between drivers.
type dialect struct {
	driverName string
	// identifier quote character
	quote byte
	// numbered placeholders ($1) instead of ?
	numbered bool
	types    map[domain.Kind]string
	// columnsQuery lists a table's columns in ordinal order; one placeholder for the table.
	columnsQuery string
	// pragma reads columns with PRAGMA table_info instead of columnsQuery.
	pragma bool
}

var (
	sqliteDialect = dialect{
		driverName: "sqlite",
		quote:      '"',
		types:      map[domain.Kind]string{domain.KindText: "TEXT", domain.KindInteger: "INTEGER", domain.KindNumber: "REAL"},
		pragma:     true,
	}
	libsqlDialect = dialect{
		driverName: "libsql",
		quote:      '"',
		types:      sqliteDialect.types,
		pragma:     true,
	}
	mysqlDialect = dialect{
		driverName: "mysql",
		quote:      '`',
		types:      map[domain.Kind]string{domain.KindText: "TEXT", domain.KindInteger: "BIGINT", domain.KindNumber: "DOUBLE"},
		columnsQuery: `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`,
	}
	postgresDialect = dialect{
		driverName: "postgres",
		quote:      '"',
		numbered:   true,
		types:      map[domain.Kind]string{domain.KindText: "TEXT", domain.KindInteger: "BIGINT", domain.KindNumber: "DOUBLE PRECISION"},
		columnsQuery: `SELECT column_name FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`,
	}
)

// quoteIdent quotes an identifier, doubling embedded quote characters.
func (d dialect) quoteIdent(name string) string {
	q := string(d.quote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

func (d dialect) placeholder(i int) string {
	if d.numbered {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

func (d dialect) createTable(table string, f *domain.Frame) string {
	defs := make([]string, 0, f.Width())
	for _, name := range f.Columns() {
		defs = append(defs, d.quoteIdent(name)+" "+d.types[f.Kind(name)])
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.quoteIdent(table), strings.Join(defs, ", "))
}

func (d dialect) insert(table string, columns []string) string {
	cols := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = d.quoteIdent(c)
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// tableColumns returns the existing table's column names, or nil when the
// table does not exist.
func (d dialect) tableColumns(ctx context.Context, q queryer, table string) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if d.pragma {
		rows, err = q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	} else {
		rows, err = q.QueryContext(ctx, d.columnsQuery, table)
	}
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
