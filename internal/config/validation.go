package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/conneroisu/apex/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	for _, p := range []struct{ field, value string }{
		{"source_dir", config.SourceDir},
		{"output_dir", config.OutputDir},
		{"cache_dir", config.CacheDir},
	} {
		if err := validatePath(p.value); err != nil {
			return &ValidationError{Field: p.field, Value: p.value, Message: err.Error(),
				Suggestions: []string{"Use a path relative to root without '..'"}}
		}
	}

	if config.Concurrency < 1 {
		return &ValidationError{Field: "concurrency", Value: config.Concurrency,
			Message: "must be at least 1", Suggestions: []string{"The default is 50"}}
	}

	if !isIdentifier(config.Handler) {
		return &ValidationError{Field: "handler", Value: config.Handler,
			Message: "must be a Go identifier", Suggestions: []string{"The default is Define"}}
	}
	if config.Prefix != "" && !isIdentifier(config.Prefix) {
		return &ValidationError{Field: "prefix", Value: config.Prefix,
			Message: "must be empty or a Go identifier"}
	}
	if !isIdentifier(config.OutputPackage) {
		return &ValidationError{Field: "output_package", Value: config.OutputPackage,
			Message: "must be a Go package name"}
	}

	for _, w := range config.AsyncWrappers {
		if !isIdentifier(w) {
			return &ValidationError{Field: "async_wrappers", Value: w,
				Message: fmt.Sprintf("%q is not a type name", w)}
		}
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		return &ValidationError{Field: "log.level", Value: config.Log.Level, Message: err.Error(),
			Suggestions: []string{"Use debug, info, warn or error"}}
	}
	if f := config.Log.Format; f != "text" && f != "json" {
		return &ValidationError{Field: "log.format", Value: f, Message: "must be text or json"}
	}

	if config.Watch.Debounce < 0 {
		return &ValidationError{Field: "watch.debounce", Value: config.Watch.Debounce,
			Message: "must not be negative"}
	}
	return nil
}

// validatePath rejects empty, absolute and escaping paths
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path should be relative: %s", path)
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
