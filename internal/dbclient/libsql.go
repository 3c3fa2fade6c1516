package dbclient

import (
	"fmt"
	"net/url"

	"etlpipe/internal/domain"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// buildLibSQLDSN turns a libsql:// or https:// URL into a DSN, attaching the
// auth token when one is stored.
func buildLibSQLDSN(conn *domain.DatabaseConnection, token string) (string, error) {
	u, err := url.Parse(conn.Host)
	if err != nil {
		return "", fmt.Errorf("parse libsql url: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("libsql url %q has no scheme", conn.Host)
	}
	if token != "" {
		q := u.Query()
		q.Set("authToken", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func newLibSQLConnector(conn *domain.DatabaseConnection, token string) (*sqlConnector, error) {
	dsn, err := buildLibSQLDSN(conn, token)
	if err != nil {
		return nil, err
	}
	return newSQLConnector(libsqlDialect, dsn)
}
