package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/statetree/internal/logging"
)

var (
	cfg    Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "statetree",
	Short: "statetree hosts agents driven by hierarchical state trees",
	Long: `statetree compiles state tree definitions (YAML or JSON), hosts agents that
run them frame by frame and exposes the fleet over HTTP and MCP.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = loadConfig()
		applyFlags(cmd, &cfg)
		// stdout belongs to the MCP transport, so logs always go to stderr.
		logger = logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(logger)
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("listen-addr", "", "HTTP listen address (default :4100)")
	flags.String("db-path", "", "database path (default ~/.statetree/statetree.db)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	flags.Int("pool-size", 0, "worker pool size for fleet frames")
	flags.String("tick-interval", "", "frame interval, e.g. 100ms")
	flags.String("tick-policy", "", "enter_only or queue_on_completion")
	flags.String("redis-addr", "", "Redis address for the event hub and checkpoints")
	flags.String("trees-dir", "", "directory of tree definitions registered at startup")
}
