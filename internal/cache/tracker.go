// Package cache persists what the generator produced for every endpoint and
// answers which endpoints must be regenerated after files change.
//
// The store is a YAML document keyed by endpoint path relative to the
// project root. The dependency index (type-defining file -> endpoints) is
// derived on demand from the recorded TypeDescriptors.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/apex/internal/fsutil"
	"github.com/conneroisu/apex/internal/logging"
	"github.com/conneroisu/apex/internal/types"
)

// FileName is the name of the store inside the cache directory.
const FileName = "apex-cache.yaml"

const storeVersion = 1

// Entry is what the cache remembers about one endpoint.
type Entry struct {
	// Hash is the xxhash64 of the endpoint source at generation time
	Hash uint64 `yaml:"hash"`
	// Output is the generated file relative to the project root
	Output string `yaml:"output"`
	// Name is the generated function name including the prefix
	Name  string               `yaml:"name"`
	Types types.TypeDescriptor `yaml:"types"`
}

type store struct {
	Version int `yaml:"version"`
	// Settings fingerprints the generator options the entries were
	// produced with
	Settings uint64            `yaml:"settings,omitempty"`
	Entries  map[string]Entry  `yaml:"entries"`
	Sources  map[string]uint64 `yaml:"sources,omitempty"`
}

// Tracker is the cache and dependency tracker for one project root.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	root   string
	path   string
	data   store
	dirty  bool
	hasher *HashProvider
	logger logging.Logger
}

// Open loads the store from dir (relative to root unless absolute). A
// missing store is an empty cache; an unreadable one is logged and
// replaced.
func Open(root, dir string, logger logging.Logger) (*Tracker, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(absRoot, dir)
	}

	t := &Tracker{
		root:   absRoot,
		path:   filepath.Join(dir, FileName),
		data:   emptyStore(),
		hasher: NewHashProvider(0),
		logger: logger.WithComponent("cache"),
	}

	raw, err := os.ReadFile(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache %s: %w", t.path, err)
	}

	var loaded store
	if err := yaml.Unmarshal(raw, &loaded); err != nil || loaded.Version != storeVersion {
		if err == nil {
			err = fmt.Errorf("unsupported cache version %d", loaded.Version)
		}
		t.logger.Warn(context.Background(), err, "Discarding unreadable cache", "path", t.path)
		t.dirty = true
		return t, nil
	}
	if loaded.Entries == nil {
		loaded.Entries = make(map[string]Entry)
	}
	if loaded.Sources == nil {
		loaded.Sources = make(map[string]uint64)
	}
	t.data = loaded
	return t, nil
}

func emptyStore() store {
	return store{
		Version: storeVersion,
		Entries: make(map[string]Entry),
		Sources: make(map[string]uint64),
	}
}

// Path returns the location of the store file.
func (t *Tracker) Path() string { return t.path }

// Hash returns the content hash of file (relative to the root or absolute).
func (t *Tracker) Hash(file string) (uint64, error) {
	return t.hasher.Hash(t.abs(file))
}

// Diff returns the candidates whose content differs from the recorded hash
// or that have no entry yet.
func (t *Tracker) Diff(candidates []string) ([]string, error) {
	var changed []string
	for _, c := range candidates {
		key := t.key(c)
		hash, err := t.Hash(key)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", key, err)
		}

		t.mu.RLock()
		entry, ok := t.data.Entries[key]
		t.mu.RUnlock()

		if !ok || entry.Hash != hash {
			changed = append(changed, key)
		}
	}
	return changed, nil
}

// Record stores the entry for endpoint.
func (t *Tracker) Record(endpoint string, e Entry) {
	key := t.key(endpoint)
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.data.Entries[key]; ok && reflect.DeepEqual(old, e) {
		return
	}
	t.data.Entries[key] = e
	t.dirty = true
}

// Get returns the entry for endpoint.
func (t *Tracker) Get(endpoint string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.data.Entries[t.key(endpoint)]
	return e, ok
}

// Entries returns a copy of every entry.
func (t *Tracker) Entries() map[string]Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Entry, len(t.data.Entries))
	for k, v := range t.data.Entries {
		out[k] = v
	}
	return out
}

// Remove deletes the entry for endpoint and returns it.
func (t *Tracker) Remove(endpoint string) (Entry, bool) {
	key := t.key(endpoint)
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.data.Entries[key]
	if ok {
		delete(t.data.Entries, key)
		t.dirty = true
	}
	return e, ok
}

// Invalidate clears the recorded hash of endpoint so the next Diff reports
// it as changed. The rest of the entry is kept for pruning.
func (t *Tracker) Invalidate(endpoint string) {
	key := t.key(endpoint)
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.data.Entries[key]; ok && e.Hash != 0 {
		e.Hash = 0
		t.data.Entries[key] = e
		t.dirty = true
	}
}

// Settings returns the fingerprint stored by SetSettings.
func (t *Tracker) Settings() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.Settings
}

// SetSettings stores the fingerprint of the options used for generation.
func (t *Tracker) SetSettings(fp uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data.Settings != fp {
		t.data.Settings = fp
		t.dirty = true
	}
}

// DependentsOf returns the endpoints whose types were resolved through
// file, excluding file itself.
func (t *Tracker) DependentsOf(file string) []string {
	key := t.key(file)
	t.mu.RLock()
	defer t.mu.RUnlock()

	var deps []string
	for ep, e := range t.data.Entries {
		if ep != key && e.Types.DependsOn(key) {
			deps = append(deps, ep)
		}
	}
	sort.Strings(deps)
	return deps
}

// sourceFiles returns every type-defining file that is not itself an
// endpoint. The caller holds the lock.
func (t *Tracker) sourceFiles() []string {
	seen := make(map[string]bool)
	var files []string
	for _, e := range t.data.Entries {
		for _, f := range e.Types.Files() {
			if _, isEndpoint := t.data.Entries[f]; isEndpoint || seen[f] {
				continue
			}
			seen[f] = true
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files
}

// ChangedSources returns type-defining files whose content differs from
// the hash recorded by the last RecordSources, including deleted ones.
func (t *Tracker) ChangedSources() []string {
	t.mu.RLock()
	files := t.sourceFiles()
	recorded := make(map[string]uint64, len(t.data.Sources))
	for k, v := range t.data.Sources {
		recorded[k] = v
	}
	t.mu.RUnlock()

	var changed []string
	for _, f := range files {
		hash, err := t.Hash(f)
		old, ok := recorded[f]
		if err != nil || !ok || old != hash {
			changed = append(changed, f)
		}
	}
	return changed
}

// RecordSources snapshots the hashes of every current type-defining file.
func (t *Tracker) RecordSources() {
	t.mu.RLock()
	files := t.sourceFiles()
	t.mu.RUnlock()

	sources := make(map[string]uint64, len(files))
	for _, f := range files {
		if hash, err := t.Hash(f); err == nil {
			sources[f] = hash
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !reflect.DeepEqual(sources, t.data.Sources) {
		t.data.Sources = sources
		t.dirty = true
	}
}

// Prune removes entries for endpoints absent from current. Each removed
// entry's output is passed to remove first; failures are joined and the
// entry is kept so the next run retries.
func (t *Tracker) Prune(current []string, remove func(output string) error) ([]string, error) {
	keep := make(map[string]bool, len(current))
	for _, c := range current {
		keep[t.key(c)] = true
	}

	var stale []string
	for ep := range t.Entries() {
		if !keep[ep] {
			stale = append(stale, ep)
		}
	}
	sort.Strings(stale)

	var (
		removed []string
		errs    []error
	)
	for _, ep := range stale {
		e, _ := t.Get(ep)
		if e.Output != "" && remove != nil {
			if err := remove(e.Output); err != nil {
				errs = append(errs, fmt.Errorf("removing %s: %w", e.Output, err))
				continue
			}
		}
		t.Remove(ep)
		removed = append(removed, ep)
	}
	return removed, errors.Join(errs...)
}

// Dirty reports whether the store has unsaved changes.
func (t *Tracker) Dirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty
}

// Save writes the store atomically. Nothing is written when nothing
// changed since Open or the last Save.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.dirty {
		return nil
	}
	data, err := yaml.Marshal(&t.data)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := fsutil.WriteFileAtomic(t.path, data, 0o644); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	t.dirty = false
	return nil
}

// key normalizes a file to the slash separated root-relative form used as
// store key.
func (t *Tracker) key(file string) string {
	if filepath.IsAbs(file) {
		if rel, err := filepath.Rel(t.root, file); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(filepath.Clean(file))
}

func (t *Tracker) abs(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(t.root, filepath.FromSlash(file))
}
