// Package config provides configuration management for apex using Viper for
// flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration lives in .apex.yml; every key can be overridden with an
// APEX_ prefixed environment variable (APEX_SOURCE_DIR, APEX_WATCH_DEBOUNCE)
// or a flag bound by the CLI. A .env file next to the config is loaded
// first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".apex.yml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "APEX"

type Config struct {
	Root          string      `mapstructure:"root" yaml:"root"`
	SourceDir     string      `mapstructure:"source_dir" yaml:"source_dir"`
	OutputDir     string      `mapstructure:"output_dir" yaml:"output_dir"`
	OutputPackage string      `mapstructure:"output_package" yaml:"output_package,omitempty"`
	Prefix        string      `mapstructure:"prefix" yaml:"prefix"`
	Handler       string      `mapstructure:"handler" yaml:"handler"`
	BaseURL       string      `mapstructure:"base_url" yaml:"base_url"`
	Ignore        []string    `mapstructure:"ignore" yaml:"ignore,omitempty"`
	Concurrency   int         `mapstructure:"concurrency" yaml:"concurrency"`
	CacheDir      string      `mapstructure:"cache_dir" yaml:"cache_dir"`
	Strict        bool        `mapstructure:"strict" yaml:"strict"`
	AsyncWrappers []string    `mapstructure:"async_wrappers" yaml:"async_wrappers"`
	Template      string      `mapstructure:"template" yaml:"template,omitempty"`
	Watch         WatchConfig `mapstructure:"watch" yaml:"watch"`
	Log           LogConfig   `mapstructure:"log" yaml:"log"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Root:          ".",
		SourceDir:     "server/api",
		OutputDir:     "client/apex",
		Prefix:        "Fetch",
		Handler:       "Define",
		BaseURL:       "/api",
		Concurrency:   50,
		CacheDir:      ".apex/cache",
		AsyncWrappers: []string{"Future", "Promise", "Task", "chan"},
		Watch:         WatchConfig{Debounce: 100 * time.Millisecond},
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// SetDefaults registers every default with viper so that env overrides of
// keys absent from the config file are still picked up by Unmarshal.
func SetDefaults() {
	d := Default()
	viper.SetDefault("root", d.Root)
	viper.SetDefault("source_dir", d.SourceDir)
	viper.SetDefault("output_dir", d.OutputDir)
	viper.SetDefault("output_package", "")
	viper.SetDefault("prefix", d.Prefix)
	viper.SetDefault("handler", d.Handler)
	viper.SetDefault("base_url", d.BaseURL)
	viper.SetDefault("ignore", []string{})
	viper.SetDefault("concurrency", d.Concurrency)
	viper.SetDefault("cache_dir", d.CacheDir)
	viper.SetDefault("strict", d.Strict)
	viper.SetDefault("async_wrappers", d.AsyncWrappers)
	viper.SetDefault("template", "")
	viper.SetDefault("watch.debounce", d.Watch.Debounce)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle slices set via viper (workaround for viper slice handling of
	// comma separated env values)
	if viper.IsSet("ignore") && len(config.Ignore) == 0 {
		config.Ignore = viper.GetStringSlice("ignore")
	}
	if viper.IsSet("async_wrappers") && len(config.AsyncWrappers) == 0 {
		config.AsyncWrappers = viper.GetStringSlice("async_wrappers")
	}
	config.Ignore = splitList(config.Ignore)
	config.AsyncWrappers = splitList(config.AsyncWrappers)
	if config.AsyncWrappers == nil {
		// Defaults always fill the key, so nil means an explicit empty list,
		// which turns unwrapping off.
		config.AsyncWrappers = []string{}
	}

	if config.OutputPackage == "" {
		config.OutputPackage = packageName(config.OutputDir)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SourcePath returns the absolute-or-root-relative endpoint directory.
func (c *Config) SourcePath() string {
	return filepath.Join(c.Root, c.SourceDir)
}

// OutputPath returns the directory generated files are written to.
func (c *Config) OutputPath() string {
	return filepath.Join(c.Root, c.OutputDir)
}

// CachePath returns the directory holding the cache store.
func (c *Config) CachePath() string {
	return filepath.Join(c.Root, c.CacheDir)
}

// splitList expands comma separated entries, which is how list values
// arrive from environment variables.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// packageName derives a Go package name from the last element of dir.
func packageName(dir string) string {
	base := filepath.Base(filepath.Clean(dir))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "client" + name
	}
	return name
}
