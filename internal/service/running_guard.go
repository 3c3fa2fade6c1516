package service

import (
	"context"
	"slices"
	"sync"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = runningGuard

// ─────────────────────────────────────────────────────────────
// runningGuard: one run per pipeline at a time
// ─────────────────────────────────────────────────────────────

// runningGuard rejects a second run of a pipeline while the first is in
// flight. A manual run and a trigger firing together both go through it.
type runningGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks pipeline as running. It reports false if it already was.
func (g *runningGuard) TryLock(pipeline string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[pipeline]; ok {
		return false
	}
	g.running[pipeline] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock releases a pipeline locked by a successful TryLock.
func (g *runningGuard) Unlock(pipeline string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[pipeline]; !ok {
		return
	}
	delete(g.running, pipeline)
	g.wg.Done()
}

// Running lists the pipelines currently running, sorted.
func (g *runningGuard) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.running))
	for name := range g.running {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// WaitAll blocks until every running pipeline finishes or ctx is done.
func (g *runningGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
