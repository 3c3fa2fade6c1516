package service

import (
	"fmt"

	"etlpipe/internal/config"
	"etlpipe/internal/etl/sources"
	"etlpipe/internal/secret"
	"etlpipe/internal/storage"
)

// Services bundles everything a front end (CLI, MCP server) needs.
type Services struct {
	Config   *config.Config
	Database *DatabaseService
	ETL      *ETLService

	history *storage.DB
}

// Options tune Open.
type Options struct {
	// NoHistory skips opening the run-history database.
	NoHistory bool
	Emitter   EventEmitter
}

// Open wires the services for cfg and registers the database source's
// connector provider.
func Open(cfg *config.Config, opts Options) (*Services, error) {
	secrets, err := secret.New(cfg.Secrets)
	if err != nil {
		return nil, err
	}

	s := &Services{Config: cfg, Database: NewDatabaseService(cfg, secrets)}
	sources.SetConnectorProvider(s.Database)

	var (
		runs    *storage.RunStore
		results *storage.QueryResultStore
	)
	if !opts.NoHistory {
		db, err := storage.New(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		s.history = db
		runs = storage.NewRunStore(db)
		results = storage.NewQueryResultStore(db)
	}
	s.ETL = NewETLService(cfg, s.Database, runs, results, opts.Emitter)
	return s, nil
}

// Close stops triggers and releases connections.
func (s *Services) Close() error {
	s.ETL.Stop()
	s.Database.Close()
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}
