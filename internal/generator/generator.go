// Package generator orchestrates discovery, resolution, rendering and
// writing of client wrappers, and keeps the cache consistent with what is on
// disk.
package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/apex/internal/cache"
	"github.com/conneroisu/apex/internal/codegen"
	"github.com/conneroisu/apex/internal/config"
	"github.com/conneroisu/apex/internal/endpoint"
	apexerrors "github.com/conneroisu/apex/internal/errors"
	"github.com/conneroisu/apex/internal/fsutil"
	"github.com/conneroisu/apex/internal/index"
	"github.com/conneroisu/apex/internal/logging"
	"github.com/conneroisu/apex/internal/resolver"
	"github.com/conneroisu/apex/internal/scanner"
	"github.com/conneroisu/apex/internal/version"
)

// DefaultConcurrency bounds in-flight jobs when the config leaves it unset.
const DefaultConcurrency = 50

// Outcome is what a single generation job did.
type Outcome int

const (
	// OutcomeWritten means new bytes were written
	OutcomeWritten Outcome = iota
	// OutcomeUnchanged means the output already held identical bytes
	OutcomeUnchanged
	// OutcomeSkipped means the cache entry was current
	OutcomeSkipped
	// OutcomeStale means a newer job for the same file superseded this one
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Summary reports one batch. Paths are relative to the project root.
type Summary struct {
	Generated []string               `json:"generated" yaml:"generated"`
	Unchanged []string               `json:"unchanged" yaml:"unchanged"`
	Skipped   []string               `json:"skipped" yaml:"skipped"`
	Removed   []string               `json:"removed" yaml:"removed"`
	Failed    []apexerrors.FileError `json:"-" yaml:"-"`
	Duration  time.Duration          `json:"duration" yaml:"duration"`
}

// Err joins the failures of the batch.
func (s *Summary) Err() error {
	if len(s.Failed) == 0 {
		return nil
	}
	c := apexerrors.NewCollector()
	for _, f := range s.Failed {
		c.Add(f.File, f.Err)
	}
	return c.Err()
}

// Generator owns every component of one project.
type Generator struct {
	cfg    *config.Config
	logger logging.Logger

	root      string
	outputDir string
	opts      codegen.Options
	tmpl      *codegen.Template
	settings  uint64

	scanner  *scanner.Scanner
	idx      *index.Index
	resolver *resolver.Resolver
	tracker  *cache.Tracker
	metrics  *Metrics

	// batch serializes Run, HandleEvent and Clean
	batch sync.Mutex

	genMu  sync.Mutex
	gens   map[string]uint64
	claims map[string]string

	// rendered, when set, runs after a job renders and before it checks
	// for a newer generation
	rendered func(file string)
}

// New wires a Generator for cfg.
func New(cfg *config.Config, logger logging.Logger) (*Generator, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("generator")

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", cfg.Root, err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	sc, err := scanner.New(root, cfg.SourceDir, cfg.Ignore)
	if err != nil {
		return nil, err
	}
	idx, err := index.New(root)
	if err != nil {
		return nil, err
	}
	tracker, err := cache.Open(root, cfg.CacheDir, logger)
	if err != nil {
		return nil, err
	}

	tmplPath := cfg.Template
	if tmplPath != "" && !filepath.IsAbs(tmplPath) {
		tmplPath = filepath.Join(root, tmplPath)
	}
	tmpl, err := codegen.Load(tmplPath)
	if err != nil {
		return nil, err
	}

	pkg := cfg.OutputPackage
	if pkg == "" {
		pkg = "apex"
	}

	g := &Generator{
		cfg:       cfg,
		logger:    logger,
		root:      root,
		outputDir: within(root, cfg.OutputDir),
		opts:      codegen.Options{Package: pkg, Prefix: cfg.Prefix},
		tmpl:      tmpl,
		scanner:   sc,
		idx:       idx,
		tracker:   tracker,
		metrics:   NewMetrics(),
		gens:      make(map[string]uint64),
		claims:    make(map[string]string),
		resolver: resolver.New(idx, resolver.Options{
			Handler:       cfg.Handler,
			AsyncWrappers: cfg.AsyncWrappers,
			Strict:        cfg.Strict,
			Logger:        logger,
		}),
	}
	g.settings = g.fingerprint()
	return g, nil
}

// Root returns the resolved project root.
func (g *Generator) Root() string { return g.root }

// OutputDir returns the absolute output directory.
func (g *Generator) OutputDir() string { return g.outputDir }

// Metrics returns the job counters.
func (g *Generator) Metrics() *Metrics { return g.metrics }

// Tracker exposes the cache for inspection.
func (g *Generator) Tracker() *cache.Tracker { return g.tracker }

// fingerprint hashes every option that changes generated bytes.
func (g *Generator) fingerprint() uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%v\x00%s\x00",
		version.GetVersion(),
		g.opts.Package,
		g.opts.Prefix,
		g.cfg.BaseURL,
		g.cfg.Handler,
		g.cfg.Strict,
		strings.Join(g.cfg.AsyncWrappers, ","),
	)
	_, _ = h.WriteString(g.tmpl.Text())
	return h.Sum64()
}

// Run brings every output up to date with the endpoint tree.
func (g *Generator) Run(ctx context.Context) (*Summary, error) {
	return g.run(ctx, false)
}

// Rebuild regenerates every endpoint regardless of the cache.
func (g *Generator) Rebuild(ctx context.Context) (*Summary, error) {
	return g.run(ctx, true)
}

func (g *Generator) run(ctx context.Context, force bool) (*Summary, error) {
	g.batch.Lock()
	defer g.batch.Unlock()

	perf := logging.StartOperation(g.logger, "run")
	start := time.Now()

	files, err := g.scanner.Scan()
	if err != nil {
		return nil, err
	}
	if err := g.idx.Do(func() error { return g.idx.Refresh(ctx, files) }); err != nil {
		perf.EndWithError(ctx, err)
		return nil, fmt.Errorf("indexing endpoints: %w", err)
	}

	work, err := g.plan(files, force)
	if err != nil {
		return nil, err
	}
	g.resetClaims(files)

	summary := &Summary{}
	collector := apexerrors.NewCollector()
	g.process(ctx, work, summary, collector)

	for _, f := range files {
		if !work[f] {
			summary.Skipped = append(summary.Skipped, g.rel(f))
		}
	}

	removed, err := g.tracker.Prune(files, func(output string) error {
		return fsutil.Remove(within(g.root, output))
	})
	summary.Removed = removed
	if err != nil {
		collector.Add(g.rel(g.outputDir), err)
	}

	if err := g.finish(); err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}

	summary.Failed = collector.Errors()
	summary.Duration = time.Since(start)
	sortSummary(summary)
	perf.End(ctx,
		"generated", len(summary.Generated),
		"skipped", len(summary.Skipped),
		"removed", len(summary.Removed),
		"failed", len(summary.Failed),
	)
	return summary, nil
}

// plan returns the endpoints that must be regenerated: changed sources,
// dependents of changed endpoints and type-defining files, and endpoints
// whose output is missing. A settings change or force selects everything.
func (g *Generator) plan(files []string, force bool) (map[string]bool, error) {
	work := make(map[string]bool)

	if force || g.tracker.Settings() != g.settings {
		for _, f := range files {
			work[f] = true
		}
		g.tracker.SetSettings(g.settings)
		return work, nil
	}

	changed, err := g.tracker.Diff(files)
	if err != nil {
		return nil, err
	}
	for _, c := range changed {
		work[within(g.root, c)] = true
	}

	current := make(map[string]bool, len(files))
	for _, f := range files {
		current[f] = true
	}
	// Endpoints in one directory share a package, so a changed endpoint may
	// also define types its siblings resolve through.
	sources := append(changed, g.tracker.ChangedSources()...)
	for _, src := range sources {
		for _, dep := range g.tracker.DependentsOf(src) {
			if abs := within(g.root, dep); current[abs] {
				work[abs] = true
			}
		}
	}

	for _, f := range files {
		if e, ok := g.tracker.Get(g.rel(f)); ok && !fsutil.Exists(within(g.root, e.Output)) {
			work[f] = true
		}
	}
	return work, nil
}

// process runs one forced job per file with bounded concurrency.
func (g *Generator) process(ctx context.Context, work map[string]bool, summary *Summary, collector *apexerrors.Collector) {
	files := make([]string, 0, len(work))
	for f := range work {
		files = append(files, f)
	}
	sort.Strings(files)

	limit := g.cfg.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for _, f := range files {
		eg.Go(func() error {
			outcome, err := g.Generate(ctx, f, true)
			rel := g.rel(f)
			if err != nil {
				collector.Add(rel, err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeWritten:
				summary.Generated = append(summary.Generated, rel)
			case OutcomeUnchanged:
				summary.Unchanged = append(summary.Unchanged, rel)
			case OutcomeSkipped:
				summary.Skipped = append(summary.Skipped, rel)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// Generate brings the output of one endpoint up to date. Unless force is
// set, a current cache entry with an existing output short-circuits the job.
func (g *Generator) Generate(ctx context.Context, file string, force bool) (outcome Outcome, err error) {
	start := time.Now()
	defer func() { g.metrics.Record(outcome, err, time.Since(start)) }()

	file = within(g.root, file)
	rel := g.rel(file)
	id := g.nextGeneration(file)

	if err := ctx.Err(); err != nil {
		return OutcomeStale, err
	}

	hash, err := g.tracker.Hash(file)
	if err != nil {
		return 0, fmt.Errorf("hashing %s: %w", rel, err)
	}
	prev, hasPrev := g.tracker.Get(rel)
	if !force && hasPrev && prev.Hash == hash && fsutil.Exists(within(g.root, prev.Output)) {
		return OutcomeSkipped, nil
	}

	srcRel, ok := g.scanner.Rel(file)
	if !ok {
		return 0, &apexerrors.PathError{Path: rel, Reason: "outside the source directory"}
	}

	failed := func(err error) (Outcome, error) {
		g.tracker.Invalidate(rel)
		return 0, err
	}

	ed, err := endpoint.Derive(srcRel, g.cfg.BaseURL)
	if err != nil {
		return failed(err)
	}
	td, err := g.resolver.Resolve(ctx, file)
	if err != nil {
		return failed(err)
	}
	src, err := codegen.Generate(g.tmpl, td, ed, g.opts)
	if err != nil {
		return failed(err)
	}

	output := filepath.Join(g.outputDir, codegen.FileName(ed, g.opts))
	if err := g.claim(output, rel); err != nil {
		return failed(err)
	}

	if g.rendered != nil {
		g.rendered(file)
	}
	if g.stale(file, id) {
		g.logger.Debug(ctx, "Dropping stale result", "file", rel)
		return OutcomeStale, nil
	}

	wrote, err := fsutil.WriteIfChanged(output, src, 0o644)
	if err != nil {
		return failed(&apexerrors.WriteError{File: g.rel(output), Err: err})
	}
	if hasPrev && prev.Output != g.rel(output) {
		if err := fsutil.Remove(within(g.root, prev.Output)); err != nil {
			g.logger.Warn(ctx, err, "Failed to remove previous output", "path", prev.Output)
		}
	}

	g.tracker.Record(rel, cache.Entry{
		Hash:   hash,
		Output: g.rel(output),
		Name:   codegen.FuncName(ed, g.opts),
		Types:  *td,
	})

	if wrote {
		g.logger.Info(ctx, "Generated", "endpoint", rel, "output", g.rel(output))
		return OutcomeWritten, nil
	}
	return OutcomeUnchanged, nil
}

// finish writes the registration table, snapshots type-defining files and
// saves the cache.
func (g *Generator) finish() error {
	if err := g.writeRegistry(); err != nil {
		return err
	}
	g.tracker.RecordSources()
	if err := g.tracker.Save(); err != nil {
		return err
	}
	return nil
}

func (g *Generator) writeRegistry() error {
	path := filepath.Join(g.outputDir, codegen.RegistryFile)

	var names []string
	for _, e := range g.tracker.Entries() {
		if e.Name != "" && fsutil.Exists(within(g.root, e.Output)) {
			names = append(names, e.Name)
		}
	}
	if len(names) == 0 {
		return fsutil.Remove(path)
	}

	src, err := codegen.GenerateRegistry(g.opts.Package, names)
	if err != nil {
		return err
	}
	if _, err := fsutil.WriteIfChanged(path, src, 0o644); err != nil {
		return &apexerrors.WriteError{File: g.rel(path), Err: err}
	}
	return nil
}

// nextGeneration tags a new job for file.
func (g *Generator) nextGeneration(file string) uint64 {
	g.genMu.Lock()
	defer g.genMu.Unlock()
	g.gens[file]++
	return g.gens[file]
}

// stale reports whether a newer job for file started after id.
func (g *Generator) stale(file string, id uint64) bool {
	g.genMu.Lock()
	defer g.genMu.Unlock()
	return g.gens[file] != id
}

// claim records that output belongs to endpoint; two endpoints deriving the
// same name cannot share one file.
func (g *Generator) claim(output, endpoint string) error {
	g.genMu.Lock()
	defer g.genMu.Unlock()
	if owner, ok := g.claims[output]; ok && owner != endpoint {
		return &apexerrors.StructuralError{
			File:   endpoint,
			Reason: fmt.Sprintf("generated name collides with %s", owner),
		}
	}
	g.claims[output] = endpoint
	return nil
}

// resetClaims rebuilds the output ownership table from the cache entries of
// endpoints that still exist.
func (g *Generator) resetClaims(files []string) {
	current := make(map[string]bool, len(files))
	for _, f := range files {
		current[g.rel(f)] = true
	}

	g.genMu.Lock()
	defer g.genMu.Unlock()
	g.claims = make(map[string]string)
	for ep, e := range g.tracker.Entries() {
		if current[ep] && e.Output != "" {
			g.claims[within(g.root, e.Output)] = ep
		}
	}
}

func (g *Generator) release(endpoint string) {
	g.genMu.Lock()
	defer g.genMu.Unlock()
	for out, owner := range g.claims {
		if owner == endpoint {
			delete(g.claims, out)
		}
	}
}

// rel returns file relative to the root with forward slashes.
func (g *Generator) rel(file string) string {
	rel, err := filepath.Rel(g.root, file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

// within resolves a possibly root-relative path.
func within(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, filepath.FromSlash(path))
}

func sortSummary(s *Summary) {
	sort.Strings(s.Generated)
	sort.Strings(s.Unchanged)
	sort.Strings(s.Skipped)
	sort.Strings(s.Removed)
}

// Clean removes every generated file, the registration table and the cache
// store. It returns the removed paths relative to the root.
func (g *Generator) Clean() ([]string, error) {
	g.batch.Lock()
	defer g.batch.Unlock()

	var (
		removed []string
		errs    = apexerrors.NewCollector()
	)
	remove := func(path string) {
		if !fsutil.Exists(path) {
			return
		}
		if err := os.Remove(path); err != nil {
			errs.Add(g.rel(path), err)
			return
		}
		removed = append(removed, g.rel(path))
	}

	for ep, e := range g.tracker.Entries() {
		remove(within(g.root, e.Output))
		g.tracker.Remove(ep)
	}
	remove(filepath.Join(g.outputDir, codegen.RegistryFile))
	remove(g.tracker.Path())

	sort.Strings(removed)
	return removed, errs.Err()
}
