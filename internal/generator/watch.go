package generator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	apexerrors "github.com/conneroisu/apex/internal/errors"
	"github.com/conneroisu/apex/internal/fsutil"
	"github.com/conneroisu/apex/internal/watcher"
)

// HandleEvent applies one file change. Added or changed files refresh the
// index and regenerate their dependents, then the file itself when it is an
// endpoint. Unlinked endpoints lose their output and cache entry; their
// dependents are regenerated against the refreshed index.
func (g *Generator) HandleEvent(ctx context.Context, event watcher.ChangeEvent) error {
	g.batch.Lock()
	defer g.batch.Unlock()

	file := within(g.root, event.Path)
	rel := g.rel(file)
	isEndpoint := g.scanner.Matches(file)
	collector := apexerrors.NewCollector()

	g.logger.Debug(ctx, "Handling change", "type", event.Type, "file", rel)

	switch event.Type {
	case watcher.EventAdd, watcher.EventChange:
		if err := g.reindex(ctx, file, isEndpoint); err != nil {
			return err
		}
		g.regenerate(ctx, g.tracker.DependentsOf(file), collector)
		if isEndpoint {
			_, err := g.Generate(ctx, file, event.Type == watcher.EventAdd)
			collector.Add(rel, err)
		}

	case watcher.EventUnlink:
		// In-flight jobs for the file become stale.
		g.nextGeneration(file)
		if entry, ok := g.tracker.Remove(rel); ok {
			if err := fsutil.Remove(within(g.root, entry.Output)); err != nil {
				collector.Add(rel, err)
			} else {
				g.logger.Info(ctx, "Removed", "endpoint", rel, "output", entry.Output)
			}
		}
		g.release(rel)
		if err := g.reindex(ctx, file, false); err != nil {
			return err
		}
		g.regenerate(ctx, g.tracker.DependentsOf(file), collector)

	default:
		return fmt.Errorf("unsupported event type %q", event.Type)
	}

	if err := g.finish(); err != nil {
		return err
	}
	if collector.Len() > 0 {
		g.logger.Warn(ctx, nil, strings.TrimSpace(collector.Summary()))
	}
	return collector.Err()
}

// reindex refreshes the symbol index for one changed file. A file the index
// does not know but that other endpoints depend on (a package reached only
// transitively) triggers a full rebuild.
func (g *Generator) reindex(ctx context.Context, file string, isEndpoint bool) error {
	if isEndpoint {
		return g.idx.Do(func() error { return g.idx.Add(ctx, file) })
	}

	var known bool
	err := g.idx.Do(func() error {
		var err error
		known, err = g.idx.Update(ctx, file)
		return err
	})
	if err != nil || known || len(g.tracker.DependentsOf(file)) == 0 {
		return err
	}

	files, err := g.scanner.Scan()
	if err != nil {
		return err
	}
	return g.idx.Do(func() error { return g.idx.Refresh(ctx, files) })
}

// regenerate forces jobs for the given root-relative endpoints.
func (g *Generator) regenerate(ctx context.Context, endpoints []string, collector *apexerrors.Collector) {
	if len(endpoints) == 0 {
		return
	}
	work := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		abs := within(g.root, ep)
		if fsutil.Exists(abs) {
			work[abs] = true
		}
	}
	g.process(ctx, work, &Summary{}, collector)
}

// Watch runs a full generation, then applies file changes under the project
// root until ctx is done.
func (g *Generator) Watch(ctx context.Context) error {
	summary, err := g.Run(ctx)
	if err != nil {
		return err
	}
	g.LogSummary(ctx, summary)

	fw, err := watcher.NewFileWatcher(g.cfg.Watch.Debounce, g.logger)
	if err != nil {
		return err
	}
	for _, filter := range g.Filters() {
		fw.AddFilter(filter)
	}
	fw.AddHandler(func(ctx context.Context, event watcher.ChangeEvent) error {
		return g.HandleEvent(ctx, event)
	})
	if err := fw.AddRecursive(g.root); err != nil {
		_ = fw.Stop()
		return err
	}

	g.logger.Info(ctx, "Watching for changes", "root", g.root)
	return fw.Run(ctx)
}

// Filters returns the watcher filters that keep generated files and the
// cache out of the event stream.
func (g *Generator) Filters() []watcher.FileFilter {
	cacheDir := filepath.Dir(g.tracker.Path())
	return []watcher.FileFilter{
		watcher.GoFilter,
		watcher.NoTestFilter,
		watcher.NoHiddenFilter,
		watcher.UnderFilter(g.root),
		func(path string) bool {
			return !watcher.UnderFilter(g.outputDir, cacheDir)(path)
		},
	}
}

// LogSummary reports a finished batch.
func (g *Generator) LogSummary(ctx context.Context, s *Summary) {
	g.logger.Info(ctx, "Generation finished",
		"generated", len(s.Generated),
		"unchanged", len(s.Unchanged),
		"skipped", len(s.Skipped),
		"removed", len(s.Removed),
		"failed", len(s.Failed),
		"duration", s.Duration,
	)
	for _, f := range s.Failed {
		g.logger.Warn(ctx, f.Err, "Endpoint failed", "file", f.File)
	}
}
