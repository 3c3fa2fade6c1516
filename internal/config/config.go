// Package config loads pipelines and connections from JSON5 files layered
// over the built-in presets.
//
// Files are merged in order, later ones winning:
//  1. the embedded defaults.json5
//  2. <name>.<ext> (etlpipe.json5 unless --config says otherwise)
//  3. <name>.local.<ext>
//
// Pipelines and connections merge by name; an entry in a later file
// replaces the earlier entry of the same name as a whole.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "etlpipe.json5"

//go:embed defaults.json5
var defaultsFile []byte

// Config is the merged configuration.
type Config struct {
	LogFile         string                               `json:"logFile"`
	LegacyTimestamp bool                                 `json:"legacyTimestamp"`
	HistoryDB       string                               `json:"historyDb"`
	Secrets         string                               `json:"secrets"` // "env" | "keychain"
	RunTimeout      string                               `json:"runTimeout"`
	Connections     map[string]domain.DatabaseConnection `json:"connections"`
	Pipelines       map[string]etl.Pipeline              `json:"pipelines"`
}

// Defaults returns the embedded configuration alone.
func Defaults() (*Config, error) {
	var cfg Config
	if err := json5.Unmarshal(defaultsFile, &cfg); err != nil {
		return nil, fmt.Errorf("embedded defaults: %w", err)
	}
	return cfg.normalize()
}

// Load merges the defaults with name and its .local sibling. Missing files
// are skipped; when required is set and neither file exists, the returned
// error wraps os.ErrNotExist.
func Load(name string, required bool) (*Config, error) {
	var cfg Config
	if err := json5.Unmarshal(defaultsFile, &cfg); err != nil {
		return nil, fmt.Errorf("embedded defaults: %w", err)
	}

	found := false
	for _, path := range layerPaths(name) {
		layer, err := readLayer(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(&cfg, layer, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s: %w", path, err)
		}
		slog.Debug("config: merged layer", "path", path)
		found = true
	}
	if required && !found {
		return nil, fmt.Errorf("config %s: %w", name, os.ErrNotExist)
	}
	return cfg.normalize()
}

func readLayer(path string) (Config, error) {
	var layer Config
	data, err := os.ReadFile(path)
	if err != nil {
		return layer, err
	}
	if len(data) == 0 {
		return layer, nil
	}
	if err := json5.Unmarshal(data, &layer); err != nil {
		return layer, fmt.Errorf("parse %s: %w", path, err)
	}
	return layer, nil
}

// layerPaths returns name and its "<base>.local.<ext>" sibling.
func layerPaths(name string) []string {
	ext := filepath.Ext(name)
	local := strings.TrimSuffix(name, ext) + ".local" + ext
	return []string{name, local}
}

// normalize fills names from map keys and validates references.
func (c *Config) normalize() (*Config, error) {
	if c.LogFile == "" {
		c.LogFile = "etl_log.txt"
	}
	if c.HistoryDB == "" {
		c.HistoryDB = filepath.Join(".etlpipe", "history.db")
	}
	if _, err := c.Timeout(); err != nil {
		return nil, err
	}
	for name, conn := range c.Connections {
		conn.Name = name
		c.Connections[name] = conn
	}
	for name, p := range c.Pipelines {
		p.Name = name
		if p.NeedsConnection() {
			if p.Connection == "" {
				return nil, fmt.Errorf("pipeline %q: table sinks and queries need a connection", name)
			}
			if _, ok := c.Connections[p.Connection]; !ok {
				return nil, fmt.Errorf("pipeline %q: unknown connection %q", name, p.Connection)
			}
		}
		switch p.Trigger.Type {
		case "", "manual", "schedule", "file_watch":
		default:
			return nil, fmt.Errorf("pipeline %q: unknown trigger type %q", name, p.Trigger.Type)
		}
		c.Pipelines[name] = p
	}
	return c, nil
}

// Timeout is the per-run deadline; zero means none.
func (c *Config) Timeout() (time.Duration, error) {
	if c.RunTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.RunTimeout)
	if err != nil {
		return 0, fmt.Errorf("runTimeout: %w", err)
	}
	return d, nil
}

// PipelineNames returns all pipeline names, sorted.
func (c *Config) PipelineNames() []string {
	names := make([]string, 0, len(c.Pipelines))
	for name := range c.Pipelines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Pipeline returns a copy of the named pipeline.
func (c *Config) Pipeline(name string) (*etl.Pipeline, error) {
	p, ok := c.Pipelines[name]
	if !ok {
		return nil, fmt.Errorf("pipeline not found: %s", name)
	}
	return &p, nil
}

// Connection returns the named connection.
func (c *Config) Connection(name string) (*domain.DatabaseConnection, error) {
	conn, ok := c.Connections[name]
	if !ok {
		return nil, fmt.Errorf("connection not found: %s", name)
	}
	return &conn, nil
}

// LogFileFor returns the progress log a pipeline writes to.
func (c *Config) LogFileFor(p *etl.Pipeline) string {
	if p.LogFile != "" {
		return p.LogFile
	}
	return c.LogFile
}
