package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/apex/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Write a default .apex.yml",
	Long: `Write a .apex.yml holding the default configuration into dir (the
working directory by default) and create the endpoint source directory.

Examples:
  apex init                       # Initialize the current directory
  apex init --source api --output client/api`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initForce  bool
	initSource string
	initOutput string
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration")
	initCmd.Flags().StringVar(&initSource, "source", "", "Endpoint source directory")
	initCmd.Flags().StringVar(&initOutput, "output", "", "Output directory for generated files")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	if initSource != "" {
		cfg.SourceDir = initSource
	}
	if initOutput != "" {
		cfg.OutputDir = initOutput
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	content := append([]byte("# apex configuration\n"), data...)

	if err := os.MkdirAll(filepath.Join(dir, cfg.SourceDir), 0o755); err != nil {
		return fmt.Errorf("creating source directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
	return nil
}
