package generator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/conneroisu/apex/internal/codegen"
	"github.com/conneroisu/apex/internal/endpoint"
)

// Endpoint describes one discovered endpoint without generating it.
type Endpoint struct {
	Source   string   `json:"source" yaml:"source"`
	Name     string   `json:"name" yaml:"name"`
	Method   string   `json:"method" yaml:"method"`
	URL      string   `json:"url" yaml:"url"`
	Output   string   `json:"output" yaml:"output"`
	Input    string   `json:"input,omitempty" yaml:"input,omitempty"`
	Response string   `json:"response,omitempty" yaml:"response,omitempty"`
	Alias    string   `json:"alias,omitempty" yaml:"alias,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// List discovers and resolves every endpoint. Per-endpoint failures are
// reported in Endpoint.Error.
func (g *Generator) List(ctx context.Context) ([]Endpoint, error) {
	g.batch.Lock()
	defer g.batch.Unlock()

	files, err := g.scanner.Scan()
	if err != nil {
		return nil, err
	}
	if err := g.idx.Do(func() error { return g.idx.Refresh(ctx, files) }); err != nil {
		return nil, fmt.Errorf("indexing endpoints: %w", err)
	}

	endpoints := make([]Endpoint, 0, len(files))
	for _, file := range files {
		ep := Endpoint{Source: g.rel(file)}
		srcRel, _ := g.scanner.Rel(file)

		ed, err := endpoint.Derive(srcRel, g.cfg.BaseURL)
		if err != nil {
			ep.Error = err.Error()
			endpoints = append(endpoints, ep)
			continue
		}
		ep.Name = codegen.FuncName(ed, g.opts)
		ep.Method = ed.Method.Upper()
		ep.URL = ed.URLTemplate
		ep.Output = g.rel(filepath.Join(g.outputDir, codegen.FileName(ed, g.opts)))

		td, err := g.resolver.Resolve(ctx, file)
		if err != nil {
			ep.Error = err.Error()
		} else {
			ep.Input = td.InputType
			ep.Response = td.OutputType
			ep.Alias = td.Alias
			ep.Warnings = td.Warnings
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}
