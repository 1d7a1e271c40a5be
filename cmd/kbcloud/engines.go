package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/knowledge-bank/kb-cloud/engines"
)

var enginesJSON bool

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the engine catalog",
	Long: `Prints the engine catalog served at /api/engines, from ENGINES_CONFIG when
set and the built-in list otherwise.`,
	Args: cobra.NoArgs,
	RunE: listEngines,
}

func init() {
	enginesCmd.Flags().BoolVar(&enginesJSON, "json", false, "Print the catalog as JSON")
}

func listEngines(cmd *cobra.Command, args []string) error {
	catalog, err := engines.Load(cfg.EnginesConfig)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if enginesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog.All())
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tROLE\tNAME")
	for _, e := range catalog.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Kind, e.Role, e.Name)
	}
	return tw.Flush()
}
