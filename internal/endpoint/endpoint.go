// Package endpoint derives request names and URL templates from endpoint
// file paths.
//
// An endpoint path looks like "users/[id]/posts.get.go": folder segments,
// then a leaf "<name>.<verb>.go". Bracketed segments are path parameters
// (slugs). Derivation is pure and deterministic.
package endpoint

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	apexerrors "github.com/conneroisu/apex/internal/errors"
	"github.com/conneroisu/apex/internal/types"
)

// Ext is the file extension of endpoint sources.
const Ext = ".go"

const indexName = "index"

var (
	dynamicPattern = regexp.MustCompile(`^\[(?:\.\.\.)?([^\[\]]+)\]$`)
	wordSplit      = regexp.MustCompile(`[-_.\s]+`)
)

// IsEndpoint reports whether rel (slash or OS separated) follows the endpoint
// file convention.
func IsEndpoint(rel string) bool {
	_, _, err := splitLeaf(path.Base(toSlash(rel)))
	return err == nil
}

// Derive computes the EndpointDescriptor for an endpoint path relative to the
// scanned source directory. baseURL is prepended to the URL template.
func Derive(rel, baseURL string) (*types.EndpointDescriptor, error) {
	rel = strings.TrimPrefix(toSlash(rel), "/")
	if rel == "" {
		return nil, &apexerrors.PathError{Path: rel, Reason: "empty path"}
	}

	parts := strings.Split(rel, "/")
	folders, leaf := parts[:len(parts)-1], parts[len(parts)-1]

	rawName, verb, err := splitLeaf(leaf)
	if err != nil {
		return nil, &apexerrors.PathError{Path: rel, Reason: err.Error()}
	}
	method, err := types.ParseMethod(verb)
	if err != nil {
		return nil, &apexerrors.PathError{Path: rel, Reason: err.Error()}
	}

	var (
		prefix   strings.Builder
		segments []string
		slugs    []string
		catchAll []string
		seen     = make(map[string]bool)
	)
	addSlug := func(segment, slug string) {
		if seen[slug] {
			return
		}
		seen[slug] = true
		slugs = append(slugs, slug)
		if IsCatchAll(segment) {
			catchAll = append(catchAll, slug)
		}
	}

	for _, folder := range folders {
		if folder == "" {
			return nil, &apexerrors.PathError{Path: rel, Reason: "empty folder segment"}
		}
		if slug, ok := Slug(folder); ok {
			addSlug(folder, slug)
			segments = append(segments, "${"+slug+"}")
			prefix.WriteString(Pascal(slug))
			continue
		}
		segments = append(segments, folder)
		prefix.WriteString(Pascal(folder))
	}

	action := Pascal(method.Action())
	var name string
	switch slug, dynamic := Slug(rawName); {
	case dynamic:
		addSlug(rawName, slug)
		segments = append(segments, "${"+slug+"}")
		name = action + "By" + Pascal(slug)
	case rawName == indexName:
		name = action
	default:
		segments = append(segments, rawName)
		name = Pascal(rawName) + action
	}

	name = prefix.String() + name
	if r := []rune(name); len(r) > 0 && unicode.IsDigit(r[0]) {
		name = "N" + name
	}

	return &types.EndpointDescriptor{
		Source:      rel,
		URLTemplate: JoinURL(baseURL, segments...),
		Method:      method,
		Slugs:       slugs,
		CatchAll:    catchAll,
		Name:        name,
	}, nil
}

// Slug returns the parameter name of a bracketed segment.
func Slug(segment string) (string, bool) {
	m := dynamicPattern.FindStringSubmatch(segment)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsCatchAll reports whether segment is a catch-all slug such as "[...path]",
// which binds any number of path segments.
func IsCatchAll(segment string) bool {
	return strings.HasPrefix(segment, "[...") && dynamicPattern.MatchString(segment)
}

// Pascal capitalizes every word of s without lowering the remaining letters,
// dropping separators: "order-id" -> "OrderId", "orderId" -> "OrderId".
func Pascal(s string) string {
	// Casers carry state and must not be shared between goroutines.
	title := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, word := range wordSplit.Split(s, -1) {
		if word == "" {
			continue
		}
		b.WriteString(title.String(word))
	}
	return sanitizeIdentifier(b.String())
}

// JoinURL joins base and segments with single slashes. A scheme prefix such as
// "https://" is preserved; otherwise the result starts with "/".
func JoinURL(base string, segments ...string) string {
	scheme := ""
	if i := strings.Index(base, "://"); i >= 0 {
		scheme, base = base[:i+3], base[i+3:]
	}

	joined := strings.Join(append([]string{base}, segments...), "/")
	var b strings.Builder
	lastSlash := false
	for _, r := range joined {
		if r == '/' {
			if lastSlash {
				continue
			}
			lastSlash = true
		} else {
			lastSlash = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	if scheme != "" {
		return scheme + strings.TrimPrefix(out, "/")
	}
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}

// Placeholders returns the ${name} placeholders of a URL template in order of
// first appearance.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for {
		start := strings.Index(template, "${")
		if start < 0 {
			return names
		}
		end := strings.Index(template[start:], "}")
		if end < 0 {
			return names
		}
		name := template[start+2 : start+end]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		template = template[start+end+1:]
	}
}

func splitLeaf(leaf string) (name, verb string, err error) {
	if !strings.HasSuffix(leaf, Ext) || strings.HasSuffix(leaf, "_test"+Ext) {
		return "", "", errString("not a " + Ext + " endpoint file")
	}
	stem := strings.TrimSuffix(leaf, Ext)
	dot := strings.LastIndex(stem, ".")
	if dot <= 0 || dot == len(stem)-1 {
		return "", "", errString("missing <name>.<verb> leaf")
	}
	name, verb = stem[:dot], stem[dot+1:]
	if _, err := types.ParseMethod(verb); err != nil {
		return "", "", err
	}
	return name, verb, nil
}

// sanitizeIdentifier removes characters that cannot appear in a Go identifier.
func sanitizeIdentifier(identifier string) string {
	var cleaned strings.Builder
	for _, r := range identifier {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			cleaned.WriteRune(r)
		}
	}
	return cleaned.String()
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

type errString string

func (e errString) Error() string { return string(e) }
