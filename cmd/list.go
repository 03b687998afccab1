package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/apex/internal/generator"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l", "ls"},
	Short:   "List discovered endpoints",
	Long: `List every discovered endpoint with its generated name, method, URL
template and resolved types. Nothing is written.

Examples:
  apex list                       # Table output
  apex list -f json               # Output as JSON
  apex list -f yaml -v            # Output as YAML including types`,
	RunE: runList,
}

var listFlags *OutputFlags

func init() {
	rootCmd.AddCommand(listCmd)
	listFlags = AddOutputFlags(listCmd, "table", "json", "yaml")
}

func runList(cmd *cobra.Command, args []string) error {
	if err := listFlags.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	g, err := generator.New(cfg, logger)
	if err != nil {
		return err
	}

	endpoints, err := g.List(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(endpoints) == 0 && listFlags.Format == "table" {
		fmt.Fprintln(w, "No endpoints found.")
		return nil
	}

	switch strings.ToLower(listFlags.Format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(endpoints)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(endpoints)
	default:
		return outputTable(w, endpoints, listFlags.Verbose)
	}
}

func outputTable(out io.Writer, endpoints []generator.Endpoint, verbose bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if verbose {
		fmt.Fprintln(w, "NAME\tMETHOD\tURL\tSOURCE\tINPUT\tRESPONSE")
	} else {
		fmt.Fprintln(w, "NAME\tMETHOD\tURL\tSOURCE")
	}
	for _, ep := range endpoints {
		name := ep.Name
		if ep.Error != "" {
			name = "!" + name
		}
		if verbose {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", name, ep.Method, ep.URL, ep.Source, ep.Input, ep.Response)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, ep.Method, ep.URL, ep.Source)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, ep := range endpoints {
		if ep.Error != "" {
			fmt.Fprintf(out, "! %s: %s\n", ep.Source, ep.Error)
		}
	}
	return nil
}
