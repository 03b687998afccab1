package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/apex/internal/generator"
)

var generateCmd = &cobra.Command{
	Use:     "generate",
	Aliases: []string{"gen", "g"},
	Short:   "Generate client wrappers for changed endpoints",
	Long: `Generate typed client wrappers for every endpoint whose source, or whose
type-defining files, changed since the last run. Deleted endpoints lose
their generated files.

Examples:
  apex generate                   # Incremental generation
  apex generate --force           # Ignore the cache and regenerate everything
  apex generate --strict          # Fail endpoints whose types cannot be resolved
  apex generate -f json           # Print the summary as JSON`,
	RunE: runGenerate,
}

var (
	generateFlags *OutputFlags
	generateForce bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateFlags = AddOutputFlags(generateCmd, "text", "json")
	generateCmd.Flags().BoolVar(&generateForce, "force", false, "Regenerate every endpoint")
	addGeneratorFlags(generateCmd)
}

// generatorBindings maps the flags shared by generate and watch to their
// configuration keys. They are bound when the command runs since both
// commands define the same flags.
var generatorBindings = map[string]string{
	"strict":      "strict",
	"source":      "source_dir",
	"output":      "output_dir",
	"concurrency": "concurrency",
}

func addGeneratorFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("strict", false, "Treat unresolved types as errors")
	cmd.Flags().String("source", "", "Endpoint source directory")
	cmd.Flags().String("output", "", "Output directory for generated files")
	cmd.Flags().IntP("concurrency", "j", 0, "Maximum concurrent jobs")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := generateFlags.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	BindFlags(cmd, generatorBindings)
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	g, err := generator.New(cfg, logger)
	if err != nil {
		return err
	}

	run := g.Run
	if generateForce {
		run = g.Rebuild
	}
	summary, err := run(cmd.Context())
	if err != nil {
		return err
	}

	if !generateFlags.Quiet {
		if err := printSummary(cmd.OutOrStdout(), summary, generateFlags); err != nil {
			return err
		}
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d endpoint(s) failed", len(summary.Failed))
	}
	return nil
}

type summaryJSON struct {
	*generator.Summary
	Failed map[string]string `json:"failed,omitempty"`
}

func printSummary(w io.Writer, s *generator.Summary, flags *OutputFlags) error {
	if flags.Format == "json" {
		out := summaryJSON{Summary: s}
		if len(s.Failed) > 0 {
			out.Failed = make(map[string]string, len(s.Failed))
			for _, f := range s.Failed {
				out.Failed[f.File] = f.Err.Error()
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Generated %d, unchanged %d, skipped %d, removed %d, failed %d (%s)\n",
		len(s.Generated), len(s.Unchanged), len(s.Skipped), len(s.Removed), len(s.Failed), s.Duration.Round(1e6))
	if flags.Verbose {
		for _, f := range s.Generated {
			fmt.Fprintf(w, "  ✓ %s\n", f)
		}
		for _, f := range s.Removed {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	for _, f := range s.Failed {
		fmt.Fprintf(w, "  ✗ %s: %v\n", f.File, f.Err)
	}
	return nil
}
