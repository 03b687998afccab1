// Package codegen renders typed client wrappers from resolved endpoint
// descriptors. Rendering is pure: it maps descriptors to formatted Go source
// and never touches the filesystem.
package codegen

import (
	"bytes"
	_ "embed"
	"fmt"
	"go/format"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/conneroisu/apex/internal/types"
)

// RuntimePath is the import path of the package generated code depends on.
const RuntimePath = "github.com/conneroisu/apex/pkg/apex"

// RegistryFile is the name of the generated registration table.
const RegistryFile = "apex_registry.go"

//go:embed templates/endpoint.go.tmpl
var endpointTemplate string

//go:embed templates/registry.go.tmpl
var registryTemplate string

var registryTmpl = template.Must(template.New("registry").Parse(registryTemplate))

// Options controls naming and packaging of generated files.
type Options struct {
	// Package is the package clause of generated files
	Package string
	// Prefix is prepended to every endpoint name
	Prefix string
}

// View is the data a wrapper template is executed with.
type View struct {
	Package     string
	Source      string
	Name        string
	Alias       string
	Input       string
	Output      string
	Method      string
	URLTemplate string
	// URLExpr is a Go expression building the request path
	URLExpr string
	// Transport is "query" or "body"
	Transport string
	// Payload is the Go expression sent as query or body
	Payload string
	Imports []string
	Slugs   []string
}

// Template is a parsed wrapper template.
type Template struct {
	tmpl *template.Template
	text string
}

// Text returns the template source.
func (t *Template) Text() string {
	return t.text
}

// Default returns the built-in wrapper template.
func Default() *Template {
	t, err := Parse(endpointTemplate)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse parses a user-supplied wrapper template.
func Parse(text string) (*Template, error) {
	tmpl, err := template.New("endpoint").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &Template{tmpl: tmpl, text: text}, nil
}

// Load reads a template from path; an empty path selects the default.
func Load(path string) (*Template, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", path, err)
	}
	return Parse(string(data))
}

// FileName returns the output file name for an endpoint.
func FileName(ed *types.EndpointDescriptor, opts Options) string {
	return opts.Prefix + ed.Name + ".go"
}

// FuncName returns the exported wrapper name for an endpoint.
func FuncName(ed *types.EndpointDescriptor, opts Options) string {
	return opts.Prefix + ed.Name
}

// NewView prepares the template data for one endpoint.
func NewView(td *types.TypeDescriptor, ed *types.EndpointDescriptor, opts Options) *View {
	v := &View{
		Package:     opts.Package,
		Source:      ed.Source,
		Name:        FuncName(ed, opts),
		Alias:       td.Alias,
		Input:       typeText(td.InputType),
		Output:      typeText(td.OutputType),
		Method:      ed.Method.Upper(),
		URLTemplate: ed.URLTemplate,
		URLExpr:     urlExpr(ed.URLTemplate, ed.CatchAll),
		Transport:   "body",
		Payload:     "data",
		Slugs:       ed.Slugs,
	}
	if ed.Method.UsesQuery() {
		v.Transport = "query"
	}
	if len(ed.Slugs) > 0 {
		keys := make([]string, len(ed.Slugs))
		for i, s := range ed.Slugs {
			keys[i] = strconv.Quote(s)
		}
		v.Payload = "apex.Omit(data, " + strings.Join(keys, ", ") + ")"
	}

	specs := []string{"context", "encoding/json", RuntimePath}
	if len(ed.Slugs) > len(ed.CatchAll) {
		specs = append(specs, "net/url")
	}
	v.Imports = importLines(append(specs, td.Imports...))
	return v
}

// Generate renders the wrapper file for one endpoint.
func Generate(t *Template, td *types.TypeDescriptor, ed *types.EndpointDescriptor, opts Options) ([]byte, error) {
	if t == nil {
		t = Default()
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, NewView(td, ed, opts)); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return formatSource(ed.Source, buf.Bytes())
}

// GenerateRegistry renders the table mapping wrapper names to invokers.
func GenerateRegistry(pkg string, names []string) ([]byte, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	var buf bytes.Buffer
	err := registryTmpl.Execute(&buf, struct {
		Package string
		Runtime string
		Names   []string
	}{pkg, RuntimePath, sorted})
	if err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return formatSource(RegistryFile, buf.Bytes())
}

func formatSource(name string, src []byte) ([]byte, error) {
	out, err := format.Source(src)
	if err != nil {
		return nil, fmt.Errorf("formatting %s: %w", name, err)
	}
	return out, nil
}

func typeText(t string) string {
	if t == "" || t == types.Unknown {
		return "any"
	}
	return t
}

// urlExpr turns "/api/users/${id}" into
// "/api/users/" + url.PathEscape(apex.Param(data, "id")). Catch-all slugs
// expand to several escaped segments through apex.PathSegments.
func urlExpr(tmpl string, catchAll []string) string {
	var parts []string
	rest := tmpl
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			break
		}
		end += start
		if start > 0 {
			parts = append(parts, strconv.Quote(rest[:start]))
		}
		slug := rest[start+2 : end]
		if slices.Contains(catchAll, slug) {
			parts = append(parts, fmt.Sprintf("apex.PathSegments(data, %s)", strconv.Quote(slug)))
		} else {
			parts = append(parts, fmt.Sprintf("url.PathEscape(apex.Param(data, %s))", strconv.Quote(slug)))
		}
		rest = rest[end+1:]
	}
	if rest != "" || len(parts) == 0 {
		parts = append(parts, strconv.Quote(rest))
	}
	return strings.Join(parts, " + ")
}

// importLines deduplicates import specs and renders them as Go import lines,
// standard library first.
func importLines(specs []string) []string {
	type spec struct{ name, path string }
	seen := make(map[string]bool)
	var std, other []spec
	for _, s := range specs {
		name, path, ok := strings.Cut(s, " ")
		if !ok {
			name, path = "", s
		}
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		if strings.Contains(strings.SplitN(path, "/", 2)[0], ".") {
			other = append(other, spec{name, path})
		} else {
			std = append(std, spec{name, path})
		}
	}
	byPath := func(list []spec) {
		sort.Slice(list, func(i, j int) bool { return list[i].path < list[j].path })
	}
	byPath(std)
	byPath(other)

	var lines []string
	emit := func(list []spec) {
		for _, s := range list {
			line := strconv.Quote(s.path)
			if s.name != "" {
				line = s.name + " " + line
			}
			lines = append(lines, line)
		}
	}
	emit(std)
	if len(std) > 0 && len(other) > 0 {
		lines = append(lines, "")
	}
	emit(other)
	return lines
}
