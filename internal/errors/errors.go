// Package errors defines the generator's error taxonomy and a collector used
// to report per-file failures after a batch settles.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// StructuralError means a candidate file has no usable registration call.
// It is fatal for that file only.
type StructuralError struct {
	File   string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// ResolutionError means a payload or response type could not be reduced past
// the unknown sentinel while the resolver runs in strict mode.
type ResolutionError struct {
	File   string
	Field  string // "input" or "output"
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: cannot resolve %s type: %s", e.File, e.Field, e.Reason)
}

// WriteError wraps a failure to persist a generated artifact.
type WriteError struct {
	File string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.File, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// PathError reports an endpoint path that does not follow the naming convention.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid endpoint path %q: %s", e.Path, e.Reason)
}

// IsStructural reports whether err (or anything it wraps) is a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsResolution reports whether err (or anything it wraps) is a ResolutionError.
func IsResolution(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// FileError pairs a failure with the file it belongs to.
type FileError struct {
	File string
	Err  error
}

// Collector accumulates per-file failures from concurrent jobs.
type Collector struct {
	mu     sync.Mutex
	errors []FileError
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add records err for file; nil errors are ignored.
func (c *Collector) Add(file string, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, FileError{File: file, Err: err})
}

// Len returns the number of recorded failures.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors)
}

// Errors returns recorded failures sorted by file.
func (c *Collector) Errors() []FileError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FileError, len(c.errors))
	copy(out, c.errors)
	sort.SliceStable(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// Err joins every recorded failure, or returns nil.
func (c *Collector) Err() error {
	fileErrs := c.Errors()
	if len(fileErrs) == 0 {
		return nil
	}
	errs := make([]error, len(fileErrs))
	for i, fe := range fileErrs {
		errs[i] = fe.Err
	}
	return errors.Join(errs...)
}

// Summary renders a short multi-line report.
func (c *Collector) Summary() string {
	fileErrs := c.Errors()
	if len(fileErrs) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d file(s) failed:\n", len(fileErrs))
	for _, fe := range fileErrs {
		fmt.Fprintf(&b, "  %s: %v\n", fe.File, fe.Err)
	}
	return b.String()
}
