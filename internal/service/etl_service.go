package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"etlpipe/internal/config"
	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
	"etlpipe/internal/progress"
	"etlpipe/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// ETL Service: runs configured pipelines
// ─────────────────────────────────────────────────────────────

// ErrAlreadyRunning is returned when a pipeline is started while a previous
// run of the same pipeline is still in flight.
var ErrAlreadyRunning = errors.New("pipeline is already running")

// watchDebounce coalesces the burst of write events one save produces.
const watchDebounce = 500 * time.Millisecond

// ETLService runs pipelines, records their history and hosts triggers.
type ETLService struct {
	cfg     *config.Config
	dbs     *DatabaseService
	runs    *storage.RunStore
	results *storage.QueryResultStore
	emitter EventEmitter

	runningJobs runningGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewETLService creates an ETLService. runs and results may be nil, in
// which case history is not recorded.
func NewETLService(
	cfg *config.Config,
	dbs *DatabaseService,
	runs *storage.RunStore,
	results *storage.QueryResultStore,
	emitter EventEmitter,
) *ETLService {
	if emitter == nil {
		emitter = LogEmitter{}
	}
	return &ETLService{
		cfg:     cfg,
		dbs:     dbs,
		runs:    runs,
		results: results,
		emitter: emitter,
	}
}

// ── Listing ────────────────────────────────────────────────

// PipelineSummary describes one configured pipeline.
type PipelineSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Source      string          `json:"source"`
	Sinks       []string        `json:"sinks"`
	Trigger     string          `json:"trigger"`
	Running     bool            `json:"running"`
	LastRun     *etl.SyncRunLog `json:"lastRun,omitempty"`
}

// ListPipelines returns every pipeline sorted by name, with its last run.
func (s *ETLService) ListPipelines() ([]PipelineSummary, error) {
	var last map[string]etl.SyncRunLog
	if s.runs != nil {
		var err error
		if last, err = s.runs.LastRuns(); err != nil {
			return nil, fmt.Errorf("last runs: %w", err)
		}
	}
	running := map[string]bool{}
	for _, name := range s.runningJobs.Running() {
		running[name] = true
	}

	var out []PipelineSummary
	for _, name := range s.cfg.PipelineNames() {
		p, _ := s.cfg.Pipeline(name)
		sum := PipelineSummary{
			Name:        name,
			Description: p.Description,
			Source:      p.Source.Type,
			Trigger:     p.Trigger.Type,
			Running:     running[name],
		}
		if sum.Trigger == "" {
			sum.Trigger = "manual"
		}
		for _, sk := range p.Sinks {
			sum.Sinks = append(sum.Sinks, sk.Label())
		}
		if l, ok := last[name]; ok {
			sum.LastRun = &l
		}
		out = append(out, sum)
	}
	return out, nil
}

// ListSources returns the available source specs.
func (s *ETLService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ── Run ────────────────────────────────────────────────────

// RunPipeline executes a pipeline synchronously.
func (s *ETLService) RunPipeline(ctx context.Context, name string) (*etl.SyncResult, error) {
	return s.runPipeline(ctx, name, "manual")
}

func (s *ETLService) runPipeline(ctx context.Context, name, trigger string) (*etl.SyncResult, error) {
	p, err := s.cfg.Pipeline(name)
	if err != nil {
		return nil, err
	}

	// Prevent concurrent execution of the same pipeline.
	if !s.runningJobs.TryLock(name) {
		s.emitter.Emit(ctx, EventRunSkipped, map[string]string{"pipeline": name, "trigger": trigger})
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	defer s.runningJobs.Unlock(name)

	timeout, err := s.cfg.Timeout()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	engine := &etl.Engine{
		Progress: progress.New(s.cfg.LogFileFor(p), progress.WithLegacyTimestamp(s.cfg.LegacyTimestamp)),
		Trigger:  trigger,
	}
	if s.runs != nil {
		engine.Runs = s.runs
	}

	s.emitter.Emit(ctx, EventRunStarted, map[string]string{"pipeline": name, "trigger": trigger})

	if p.NeedsConnection() {
		// Each run owns its connector and closes it when the run ends.
		c, err := s.dbs.OpenConnector(ctx, p.Connection)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		engine.Conn = c
	}

	result, err := engine.RunSync(ctx, p)
	if result == nil {
		return nil, err
	}

	if s.results != nil && len(result.Queries) > 0 {
		if saveErr := s.results.SaveResults(result.RunID, result.Queries); saveErr != nil {
			slog.WarnContext(ctx, "service: save query results", "pipeline", name, "err", saveErr)
		}
	}
	s.emitter.Emit(ctx, EventRunCompleted, result)
	return result, err
}

// Preview extracts and transforms the first maxRows rows without loading.
func (s *ETLService) Preview(ctx context.Context, name string, maxRows int) (*domain.Frame, error) {
	p, err := s.cfg.Pipeline(name)
	if err != nil {
		return nil, err
	}
	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	engine := &etl.Engine{}
	return engine.Preview(previewCtx, p, maxRows)
}

// ── History ────────────────────────────────────────────────

// ListRunLogs returns the newest runs of a pipeline, or of all pipelines
// when name is empty.
func (s *ETLService) ListRunLogs(name string, limit int) ([]etl.SyncRunLog, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.ListRunLogs(name, limit)
}

// RunDetail is one run with its stored query results.
type RunDetail struct {
	Run     *etl.SyncRunLog   `json:"run"`
	Queries []etl.QueryResult `json:"queries,omitempty"`
}

// GetRun returns a recorded run and its query results.
func (s *ETLService) GetRun(id string) (*RunDetail, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("run history is disabled")
	}
	run, err := s.runs.GetRunLog(id)
	if err != nil {
		return nil, err
	}
	d := &RunDetail{Run: run}
	if s.results != nil {
		if d.Queries, err = s.results.ListResults(id); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ── Triggers (cron + file_watch) ──────────────────────────

// StartTriggers tears down the current watcher/cron and rebuilds them from
// the configuration. Triggers with an invalid cron expression or an
// unwatchable path are reported in the returned error; the rest still run.
// It returns the number of active triggers.
func (s *ETLService) StartTriggers(ctx context.Context) (int, error) {
	s.stopWatchers()

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		errs    []error
		active  int
		watched = map[string]string{} // abs path → pipeline
	)
	sched := cron.New()
	for _, name := range s.cfg.PipelineNames() {
		p, _ := s.cfg.Pipeline(name)
		switch p.Trigger.Type {
		case "schedule":
			pipeline := name
			_, err := sched.AddFunc(p.Trigger.Config, func() {
				slog.InfoContext(ctx, "service: schedule fired", "pipeline", pipeline)
				if _, err := s.runPipeline(ctx, pipeline, "schedule"); err != nil {
					slog.ErrorContext(ctx, "service: scheduled run failed", "pipeline", pipeline, "err", err)
				}
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("pipeline %s: cron %q: %w", name, p.Trigger.Config, err))
				continue
			}
			active++
		case "file_watch":
			abs, err := filepath.Abs(p.Trigger.Config)
			if err != nil || p.Trigger.Config == "" {
				errs = append(errs, fmt.Errorf("pipeline %s: bad watch path %q", name, p.Trigger.Config))
				continue
			}
			watched[abs] = name
		}
	}
	if len(sched.Entries()) > 0 {
		sched.Start()
		s.cronSched = sched
		slog.InfoContext(ctx, "service: cron started", "pipelines", len(sched.Entries()))
	}

	if len(watched) > 0 {
		n, err := s.startWatcher(ctx, watched)
		if err != nil {
			errs = append(errs, err)
		}
		active += n
	}
	return active, errors.Join(errs...)
}

// startWatcher watches the parent directories of the given files, since
// editors often replace a file rather than write it in place.
func (s *ETLService) startWatcher(ctx context.Context, pathToPipeline map[string]string) (int, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, fmt.Errorf("create watcher: %w", err)
	}

	var errs []error
	active := 0
	watchedDirs := make(map[string]bool)
	for path, name := range pathToPipeline {
		dir := filepath.Dir(path)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				errs = append(errs, fmt.Errorf("pipeline %s: watch %s: %w", name, dir, err))
				delete(pathToPipeline, path)
				continue
			}
			watchedDirs[dir] = true
		}
		active++
	}
	if active == 0 {
		watcher.Close()
		return 0, errors.Join(errs...)
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				pipeline, ok := pathToPipeline[absPath]
				if !ok {
					continue
				}
				if t, exists := timers[pipeline]; exists {
					t.Stop()
				}
				timers[pipeline] = time.AfterFunc(watchDebounce, func() {
					slog.InfoContext(watchCtx, "service: file changed", "path", absPath, "pipeline", pipeline)
					if _, err := s.runPipeline(watchCtx, pipeline, "file_watch"); err != nil {
						slog.ErrorContext(watchCtx, "service: watched run failed", "pipeline", pipeline, "err", err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.WarnContext(watchCtx, "service: watcher error", "err", err)
			}
		}
	}()

	slog.InfoContext(ctx, "service: watching files", "files", active)
	return active, errors.Join(errs...)
}

// WaitRunning blocks until all running pipelines finish or ctx is done.
// Used for graceful shutdown.
func (s *ETLService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *ETLService) Stop() {
	s.stopWatchers()
}

func (s *ETLService) stopWatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		<-s.cronSched.Stop().Done()
		s.cronSched = nil
	}
}
