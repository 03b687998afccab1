package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/apex/internal/generator"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove generated files and the cache",
	Long: `Remove every generated wrapper, the registration table and the cache
store. The next generate run starts from scratch.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	g, err := generator.New(cfg, logger)
	if err != nil {
		return err
	}

	removed, err := g.Clean()
	for _, path := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
	}
	if err != nil {
		return fmt.Errorf("cleaning: %w", err)
	}
	if len(removed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to clean.")
	}
	return nil
}
