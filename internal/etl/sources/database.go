package sources

import (
	"context"
	"fmt"

	"etlpipe/internal/dbclient"
	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Reads the result of a literal query against a named connection.

// ConnectorProvider opens named connections. The service layer implements
// this and injects it at startup.
type ConnectorProvider interface {
	OpenConnector(ctx context.Context, name string) (dbclient.Connector, error)
}

var connectorProvider ConnectorProvider

// SetConnectorProvider is called by the service at startup.
func SetConnectorProvider(p ConnectorProvider) { connectorProvider = p }

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

type databaseConfig struct {
	Connection string `json:"connection"`
	Query      string `json:"query"`
}

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: []etl.ConfigField{
			{Key: "connection", Label: "Connection", Type: "string", Required: true, Help: "Name of a configured connection"},
			{Key: "query", Label: "Query", Type: "string", Required: true, Help: "SQL, or a JSON find/aggregate query for MongoDB"},
		},
	}
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (*domain.Frame, error) {
	var c databaseConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	if c.Connection == "" || c.Query == "" {
		return nil, fmt.Errorf("connection and query are required")
	}
	if connectorProvider == nil {
		return nil, fmt.Errorf("connector provider not initialized")
	}

	conn, err := connectorProvider.OpenConnector(ctx, c.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrSourceUnavailable, c.Connection, err)
	}
	defer conn.Close()

	f, err := dbclient.QueryFrame(ctx, conn, c.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, c.Connection, err)
	}
	return f, nil
}
