package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/apex/internal/generator"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Regenerate client wrappers as files change",
	Long: `Run a full generation, then watch the project for changes. Editing an
endpoint regenerates it; editing a shared type file regenerates every
endpoint that depends on it; deleting an endpoint removes its wrapper.

Examples:
  apex watch                      # Watch with the configured debounce
  apex watch --debounce 300ms     # Wait longer before reacting`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("debounce", 0, "Quiet period before handling a change")
	addGeneratorFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	BindFlags(cmd, generatorBindings)
	BindFlags(cmd, map[string]string{"debounce": "watch.debounce"})
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	g, err := generator.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return g.Watch(ctx)
}
