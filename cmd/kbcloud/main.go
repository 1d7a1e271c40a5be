package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knowledge-bank/kb-cloud/config"
	"github.com/knowledge-bank/kb-cloud/logger"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	cfg *config.EnvConfig
	log *logger.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kbcloud",
	Short: "Knowledge Bank cloud API",
	Long: `kbcloud serves the Knowledge Bank API: the engine catalog, job intake for
Profit Engine, Zalara and Signal Forge, Profit Engine result envelopes, the
waitlist, and a websocket stream of job and result events.

Configuration is read from the environment, with .env.local and .env loaded
first when present.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadEnv()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		if err := logger.Configure(cfg.LogLevel, cfg.LogFormat, "kb-cloud"); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		log = logger.GetLogger()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or text (overrides LOG_FORMAT)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(enginesCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(waitlistCmd)
	rootCmd.AddCommand(eventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
