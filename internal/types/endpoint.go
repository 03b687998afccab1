// Package types provides common type definitions used throughout the apex CLI.
// This package contains shared types to avoid circular dependencies between packages.
package types

import (
	"fmt"
	"strings"
)

// Unknown is the type text used when a payload or response type could not be
// reduced to a structural shape.
const Unknown = "unknown"

// HTTPMethod is the verb encoded in an endpoint file name.
type HTTPMethod string

const (
	MethodGet    HTTPMethod = "get"
	MethodPost   HTTPMethod = "post"
	MethodPut    HTTPMethod = "put"
	MethodDelete HTTPMethod = "delete"
)

// ParseMethod converts a file name verb into an HTTPMethod.
func ParseMethod(verb string) (HTTPMethod, error) {
	switch m := HTTPMethod(verb); m {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported http verb %q", verb)
	}
}

// Action returns the semantic action word used when naming an endpoint.
func (m HTTPMethod) Action() string {
	switch m {
	case MethodPost:
		return "create"
	case MethodPut:
		return "update"
	case MethodDelete:
		return "remove"
	default:
		return "get"
	}
}

// UsesQuery reports whether the payload travels as query parameters rather
// than a request body.
func (m HTTPMethod) UsesQuery() bool {
	return m == MethodGet || m == MethodDelete
}

// Upper returns the method in the form net/http expects.
func (m HTTPMethod) Upper() string {
	return strings.ToUpper(string(m))
}

// EndpointDescriptor is everything derived from an endpoint's path.
type EndpointDescriptor struct {
	// Source is the endpoint path relative to the scanned source directory,
	// slash separated (e.g. "users/[id]/posts.get.go")
	Source string `json:"source" yaml:"source"`
	// URLTemplate is the request path with ${slug} placeholders
	URLTemplate string `json:"url_template" yaml:"url_template"`
	// Method is the HTTP verb
	Method HTTPMethod `json:"method" yaml:"method"`
	// Slugs lists path parameter names in order of first appearance
	Slugs []string `json:"slugs,omitempty" yaml:"slugs,omitempty"`
	// CatchAll lists the slugs bound by [...name] segments; their values are
	// lists of path segments
	CatchAll []string `json:"catch_all,omitempty" yaml:"catch_all,omitempty"`
	// Name is the generated function name without the configured prefix
	Name string `json:"name" yaml:"name"`
}

// TypeDescriptor is the outcome of type resolution for one endpoint.
type TypeDescriptor struct {
	// InputType is the structural text of the payload type
	InputType string `json:"input_type" yaml:"input_type"`
	// InputSource is the file that declares the payload type
	InputSource string `json:"input_source" yaml:"input_source"`
	// OutputType is the structural text of the response type
	OutputType string `json:"output_type" yaml:"output_type"`
	// OutputSource is the file that ultimately builds the response
	OutputSource string `json:"output_source" yaml:"output_source"`
	// Alias is an optional extra export name taken from file comments
	Alias string `json:"alias,omitempty" yaml:"alias,omitempty"`
	// Imports lists the packages referenced by qualified names in the type
	// texts: an import path, or "name path" when the package name is not the
	// last path element
	Imports []string `json:"imports,omitempty" yaml:"imports,omitempty"`
	// References lists every file consulted while resolving the types
	References []string `json:"references,omitempty" yaml:"references,omitempty"`
	// Warnings collects non-fatal resolution problems
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// HasUnknown reports whether either side fell back to the Unknown sentinel.
func (td *TypeDescriptor) HasUnknown() bool {
	return td.InputType == Unknown || td.OutputType == Unknown
}

// DependsOn reports whether file contributed to this descriptor.
func (td *TypeDescriptor) DependsOn(file string) bool {
	if td.InputSource == file || td.OutputSource == file {
		return true
	}
	for _, ref := range td.References {
		if ref == file {
			return true
		}
	}
	return false
}

// Files returns the distinct files this descriptor depends on.
func (td *TypeDescriptor) Files() []string {
	seen := make(map[string]bool)
	var files []string
	add := func(f string) {
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		files = append(files, f)
	}
	add(td.InputSource)
	add(td.OutputSource)
	for _, ref := range td.References {
		add(ref)
	}
	return files
}
