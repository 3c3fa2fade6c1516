package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"etlpipe/internal/domain"
)

// ── Source ──────────────────────────────────────────────────
// A Source extracts one tabular frame from an external system.
// Implementations live in etl/sources/, one file per source type.

// SourceConfig is an opaque configuration map parsed per source type.
type SourceConfig map[string]any

// Decode converts the map into a typed config struct via JSON.
// Numbers keep their integer/float distinction as json.Number.
func (c SourceConfig) Decode(v any) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode source config: %w", err)
	}
	return nil
}

// ConfigField describes a single configuration input for a source.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "number" | "bool" | "list" | "object"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// SourceSpec describes a source type: its label and config fields.
type SourceSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// SourceDescriptor names a source type and its configuration.
type SourceDescriptor struct {
	Type   string       `json:"type"`
	Config SourceConfig `json:"config"`
}

// Source is the interface every data source must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Read extracts the whole source into a frame.
	// Errors wrap one of the domain failure classes.
	Read(ctx context.Context, cfg SourceConfig) (*domain.Frame, error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// ReadSource resolves the descriptor's source and reads it.
func ReadSource(ctx context.Context, d SourceDescriptor) (*domain.Frame, error) {
	src, err := GetSource(d.Type)
	if err != nil {
		return nil, err
	}
	return src.Read(ctx, d.Config)
}
