package etl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"etlpipe/internal/dbclient"
	"etlpipe/internal/domain"
)

// ── Pipeline ───────────────────────────────────────────────
// Orchestrates: source → transform chain → sinks → queries.

var tracer = otel.Tracer("etlpipe/etl")

// Trigger decides when a pipeline runs outside of manual invocation.
type Trigger struct {
	Type   string `json:"type"`             // "manual" | "schedule" | "file_watch"
	Config string `json:"config,omitempty"` // cron expression or watched path
}

// Pipeline holds the configuration for a single ETL job.
type Pipeline struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Source      SourceDescriptor  `json:"source"`
	Transforms  []TransformConfig `json:"transforms,omitempty"`
	Sinks       []SinkConfig      `json:"sinks,omitempty"`
	Connection  string            `json:"connection,omitempty"` // named connection for table sinks and queries
	Queries     []string          `json:"queries,omitempty"`    // "{table}" expands to the first table sink
	LogFile     string            `json:"logFile,omitempty"`    // overrides the global progress log
	Trigger     Trigger           `json:"trigger,omitzero"`
}

// NeedsConnection reports whether a run must open the pipeline's connection.
func (p *Pipeline) NeedsConnection() bool {
	if len(p.Queries) > 0 {
		return true
	}
	for _, s := range p.Sinks {
		if s.Type == "table" {
			return true
		}
	}
	return false
}

// ExpandQuery substitutes {table} with the first table sink's name.
func (p *Pipeline) ExpandQuery(q string) string {
	for _, s := range p.Sinks {
		if s.Type == "table" {
			return strings.ReplaceAll(q, "{table}", s.Table)
		}
	}
	return q
}

// SyncResult is the outcome of running a pipeline.
type SyncResult struct {
	RunID       string        `json:"runId"`
	Pipeline    string        `json:"pipeline"`
	Status      string        `json:"status"` // "success" | "error"
	Phase       Phase         `json:"phase"`  // last phase entered
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	Queries     []QueryResult `json:"queries,omitempty"`
}

// QueryResult pairs a post-load query with its result.
type QueryResult struct {
	Query string        `json:"query"`
	Frame *domain.Frame `json:"frame"`
}

// SyncRunLog is a historical record of a pipeline run.
type SyncRunLog struct {
	ID          string    `json:"id"`
	Pipeline    string    `json:"pipeline"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	Phase       string    `json:"phase"`
	Trigger     string    `json:"trigger"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// ProgressLogger receives one line per phase transition.
type ProgressLogger interface {
	Log(message string) error
}

// RunRecorder persists run history.
type RunRecorder interface {
	CreateRunLog(l *SyncRunLog) error
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs one pipeline. Conn is owned by the caller and is used for
// table sinks and queries; it may be nil when the pipeline needs neither.
type Engine struct {
	Progress ProgressLogger
	Conn     dbclient.Connector
	Runs     RunRecorder
	Trigger  string // recorded in run history; empty means manual
}

// RunSync executes a pipeline end-to-end. A failure stops the run at the
// failing phase; the Ended line is only logged on success.
func (e *Engine) RunSync(ctx context.Context, p *Pipeline) (*SyncResult, error) {
	ctx, span := tracer.Start(ctx, "RunSync", trace.WithAttributes(attribute.String("pipeline", p.Name)))
	defer span.End()

	start := time.Now()
	result := &SyncResult{RunID: uuid.NewString(), Pipeline: p.Name}

	err := e.run(ctx, p, result)

	result.Duration = time.Since(start)
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		slog.ErrorContext(ctx, "etl: run failed", "pipeline", p.Name, "phase", result.Phase, "err", err)
	} else {
		result.Status = "success"
	}
	e.record(result, start)
	return result, err
}

func (e *Engine) run(ctx context.Context, p *Pipeline, result *SyncResult) error {
	if err := e.enter(ctx, result, PhaseStarted); err != nil {
		return err
	}

	// Build the transform chain up front so config errors fail before extraction.
	transformers, err := BuildTransformers(p.Transforms)
	if err != nil {
		return err
	}
	var conn TableLoader
	if e.Conn != nil {
		conn = e.Conn
	}
	dests := make([]Destination, len(p.Sinks))
	for i, s := range p.Sinks {
		d, err := NewDestination(s, conn)
		if err != nil {
			return err
		}
		dests[i] = d
	}
	if len(p.Queries) > 0 && e.Conn == nil {
		return fmt.Errorf("pipeline %q has queries but no connection", p.Name)
	}

	// 1. Extract.
	if err := e.enter(ctx, result, PhaseExtracting); err != nil {
		return err
	}
	frame, err := e.extract(ctx, p)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	result.RowsRead = frame.Len()
	if err := e.enter(ctx, result, PhaseExtracted); err != nil {
		return err
	}

	// 2. Transform.
	if err := e.enter(ctx, result, PhaseTransforming); err != nil {
		return err
	}
	frame, err = ApplyTransformers(frame, transformers)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	if err := e.enter(ctx, result, PhaseTransformed); err != nil {
		return err
	}

	// 3. Load, sinks in order. Earlier sinks stay written if a later one fails.
	if err := e.enter(ctx, result, PhaseLoading); err != nil {
		return err
	}
	for i, d := range dests {
		n, err := d.Write(ctx, frame)
		if err != nil {
			return fmt.Errorf("load %s: %w", p.Sinks[i].Label(), err)
		}
		result.RowsWritten += n
		slog.DebugContext(ctx, "etl: sink written", "pipeline", p.Name, "sink", p.Sinks[i].Label(), "rows", n)
	}
	if err := e.enter(ctx, result, PhaseLoaded); err != nil {
		return err
	}

	// 4. Queries.
	if len(p.Queries) > 0 {
		if err := e.enter(ctx, result, PhaseQuerying); err != nil {
			return err
		}
		for _, q := range p.Queries {
			q = p.ExpandQuery(q)
			qf, err := dbclient.QueryFrame(ctx, e.Conn, q)
			if err != nil {
				return fmt.Errorf("query %q: %w", q, err)
			}
			result.Queries = append(result.Queries, QueryResult{Query: q, Frame: qf})
		}
	}

	return e.enter(ctx, result, PhaseEnded)
}

func (e *Engine) extract(ctx context.Context, p *Pipeline) (*domain.Frame, error) {
	ctx, span := tracer.Start(ctx, "Extract", trace.WithAttributes(attribute.String("source", p.Source.Type)))
	defer span.End()

	frame, err := ReadSource(ctx, p.Source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", frame.Len()))
	return frame, nil
}

// enter is the single place phase transitions are logged.
func (e *Engine) enter(ctx context.Context, result *SyncResult, phase Phase) error {
	result.Phase = phase
	slog.DebugContext(ctx, "etl: phase", "pipeline", result.Pipeline, "phase", phase)
	if e.Progress == nil {
		return nil
	}
	if err := e.Progress.Log(phase.Message()); err != nil {
		return fmt.Errorf("progress log: %w", err)
	}
	return nil
}

func (e *Engine) record(result *SyncResult, start time.Time) {
	if e.Runs == nil {
		return
	}
	trigger := e.Trigger
	if trigger == "" {
		trigger = "manual"
	}
	err := e.Runs.CreateRunLog(&SyncRunLog{
		ID:          result.RunID,
		Pipeline:    result.Pipeline,
		StartedAt:   start,
		FinishedAt:  start.Add(result.Duration),
		Status:      result.Status,
		Phase:       result.Phase.String(),
		Trigger:     trigger,
		RowsRead:    result.RowsRead,
		RowsWritten: result.RowsWritten,
		Error:       result.Error,
	})
	if err != nil {
		slog.Warn("etl: record run", "pipeline", result.Pipeline, "err", err)
	}
}

// Preview runs extract and transform only and returns up to maxRows rows.
func (e *Engine) Preview(ctx context.Context, p *Pipeline, maxRows int) (*domain.Frame, error) {
	transformers, err := BuildTransformers(p.Transforms)
	if err != nil {
		return nil, err
	}
	frame, err := ReadSource(ctx, p.Source)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	frame, err = ApplyTransformers(frame, transformers)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	return frame.Head(maxRows), nil
}
