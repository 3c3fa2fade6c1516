package dbclient

import (
	"os"
	"path/filepath"

	"etlpipe/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for a SQLite file, creating its
// directory when needed. A single connection avoids SQLITE_BUSY between
// the write transaction and follow-up queries.
func newSQLiteConnector(conn *domain.DatabaseConnection) (*sqlConnector, error) {
	if dir := filepath.Dir(conn.Host); dir != "." && conn.Host != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := conn.Host + "?_pragma=busy_timeout(5000)"
	c, err := newSQLConnector(sqliteDialect, dsn)
	if err != nil {
		return nil, err
	}
	c.db.SetMaxOpenConns(1)
	return c, nil
}
