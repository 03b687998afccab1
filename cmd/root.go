// Package cmd provides the command-line interface for apex.
//
// Configuration sources, highest priority first:
//
//  1. command-line flags
//  2. APEX_* environment variables (APEX_SOURCE_DIR, APEX_WATCH_DEBOUNCE)
//  3. the file named by --config or APEX_CONFIG_FILE
//  4. .apex.yml in the working directory
//
// A .env file in the working directory is loaded before any of them, so
// its variables behave like real environment variables.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/apex/internal/config"
	"github.com/conneroisu/apex/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apex",
	Short: "Typed client generator for file-routed Go endpoints",
	Long: `apex scans a tree of endpoint files, infers each endpoint's payload and
response types from the Go type checker and writes a typed client wrapper
for every endpoint.

Endpoint files are named <name>.<get|post|put|delete>.go; bracketed path
segments ([id]) become URL parameters. Each file registers its handler:

  var _ = apex.Define[Input](func(ctx context.Context, in Input) (Output, error) {
  	...
  })

Quick Start:
  apex init                       Write a default .apex.yml
  apex generate                   Generate wrappers for changed endpoints
  apex watch                      Regenerate as files change
  apex list                       Show discovered endpoints and their types`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .apex.yml, can also use APEX_CONFIG_FILE env var)")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("root", ".", "project root")

	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("root", flags.Lookup("root"))
}

// initConfig points viper at the configuration file and the environment.
func initConfig() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}

	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	case os.Getenv("APEX_CONFIG_FILE") != "":
		viper.SetConfigFile(os.Getenv("APEX_CONFIG_FILE"))
	default:
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(config.FileName, ".yml"))
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing file is fine; defaults and the environment still apply.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "Warning: reading config:", err)
		}
	}
}

// loadConfig loads the configuration and builds the logger it describes.
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}
