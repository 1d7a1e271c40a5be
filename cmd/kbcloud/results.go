package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knowledge-bank/kb-cloud/results"
)

var resultsDir string

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect Profit Engine result envelopes",
}

var resultsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the newest result envelope",
	Long: `Scans the results directory (PROFIT_ENGINE_RESULTS_DIR, or --dir) the same
way GET /api/profit-engine/results does and prints the newest envelope.`,
	Args: cobra.NoArgs,
	RunE: showLatestResult,
}

func init() {
	resultsCmd.PersistentFlags().StringVar(&resultsDir, "dir", "", "Results directory (overrides PROFIT_ENGINE_RESULTS_DIR)")
	resultsCmd.AddCommand(resultsLatestCmd)
}

func showLatestResult(cmd *cobra.Command, args []string) error {
	dir := cfg.ResultsDir
	if resultsDir != "" {
		dir = resultsDir
	}

	res, err := results.NewReader(dir).Latest()
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}

	out := cmd.OutOrStdout()
	if res.Status == results.StatusEmpty {
		fmt.Fprintf(out, "No Profit Engine result envelopes found in %s\n", dir)
		return nil
	}

	fmt.Fprintf(out, "%s (%d files, modified %s)\n", res.File, len(res.Files), res.ModTime.Format("2006-01-02 15:04:05"))
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Raw)
}
