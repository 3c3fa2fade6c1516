package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"etlpipe/internal/config"
	"etlpipe/internal/dbclient"
	"etlpipe/internal/domain"
	"etlpipe/internal/secret"
)

// ─────────────────────────────────────────────────────────────
// Database Service: named connections and their pooled connectors
// ─────────────────────────────────────────────────────────────

// DatabaseService resolves named connections from the configuration and
// keeps a pool of live connectors for ad-hoc queries and introspection. A
// pooled connector holds one cursor at a time, so every use goes through
// withConnector, which serializes callers per connection. Pipeline runs
// open their own connector with OpenConnector.
type DatabaseService struct {
	cfg     *config.Config
	secrets secret.SecretStore

	mu               sync.Mutex
	activeConnectors map[string]*connEntry
}

type connEntry struct {
	mu        sync.Mutex
	connector dbclient.Connector
	createdAt time.Time
}

// NewDatabaseService creates a DatabaseService.
func NewDatabaseService(cfg *config.Config, secrets secret.SecretStore) *DatabaseService {
	return &DatabaseService{
		cfg:              cfg,
		secrets:          secrets,
		activeConnectors: make(map[string]*connEntry),
	}
}

// ListConnections returns the configured connections by name.
func (s *DatabaseService) ListConnections() map[string]domain.DatabaseConnection {
	return s.cfg.Connections
}

// OpenConnector opens a new, unpooled connector. The caller closes it.
// It implements sources.ConnectorProvider.
func (s *DatabaseService) OpenConnector(ctx context.Context, name string) (dbclient.Connector, error) {
	conn, err := s.cfg.Connection(name)
	if err != nil {
		return nil, err
	}

	var password string
	if conn.PasswordKey != "" && s.secrets != nil {
		pw, err := s.secrets.Get(conn.PasswordKey)
		if err != nil {
			return nil, fmt.Errorf("read password %s: %w", conn.PasswordKey, err)
		}
		password = string(pw)
	}

	connector, err := dbclient.NewConnector(conn, password)
	if err != nil {
		return nil, fmt.Errorf("open db connection %s: %w", name, err)
	}
	slog.DebugContext(ctx, "service: connector opened", "connection", name, "driver", conn.Driver)
	return connector, nil
}

// ── Query Execution ────────────────────────────────────────

// Query runs a statement and collects the whole result.
func (s *DatabaseService) Query(ctx context.Context, connection, query string) (*domain.Frame, error) {
	var out *domain.Frame
	err := s.withConnector(ctx, connection, func(c dbclient.Connector) error {
		f, err := dbclient.QueryFrame(ctx, c, query)
		if err != nil {
			return fmt.Errorf("execute query: %w", err)
		}
		out = f
		return nil
	})
	return out, err
}

// ReadOnly reports whether query only reads data on the named connection.
func (s *DatabaseService) ReadOnly(connection, query string) (bool, error) {
	conn, err := s.cfg.Connection(connection)
	if err != nil {
		return false, err
	}
	return dbclient.ReadOnlyQuery(conn.Driver, query), nil
}

// ── Test + Introspect ──────────────────────────────────────

func (s *DatabaseService) TestConnection(ctx context.Context, connection string) error {
	return s.withConnector(ctx, connection, func(c dbclient.Connector) error {
		return c.TestConnection(ctx)
	})
}

func (s *DatabaseService) Introspect(ctx context.Context, connection string) (*dbclient.SchemaInfo, error) {
	var info *dbclient.SchemaInfo
	err := s.withConnector(ctx, connection, func(c dbclient.Connector) error {
		var err error
		info, err = c.Introspect(ctx)
		return err
	})
	return info, err
}

// ── Connector Pool ─────────────────────────────────────────

// withConnector runs fn with exclusive use of the pooled connector.
func (s *DatabaseService) withConnector(ctx context.Context, name string, fn func(dbclient.Connector) error) error {
	entry, err := s.getOrCreate(ctx, name)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.connector)
}

func (s *DatabaseService) getOrCreate(ctx context.Context, name string) (*connEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.activeConnectors[name]; ok {
		return e, nil
	}

	connector, err := s.OpenConnector(ctx, name)
	if err != nil {
		return nil, err
	}
	e := &connEntry{connector: connector, createdAt: time.Now()}
	s.activeConnectors[name] = e
	return e, nil
}

// Close tears down all pooled connectors.
func (s *DatabaseService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, entry := range s.activeConnectors {
		entry.mu.Lock()
		_ = entry.connector.Close()
		entry.mu.Unlock()
		delete(s.activeConnectors, name)
		slog.Debug("service: connector closed", "connection", name, "age", time.Since(entry.createdAt))
	}
}
