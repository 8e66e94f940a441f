// Command desk drives the invoice recognition session: it serves the session API,
// processes single files from the shell and follows published session state.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-desk/internal/config"
	"github.com/kirillkom/invoice-desk/internal/observability/logging"
)

const (
	Version = "0.1.0"
	appName = "invoice-desk"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	logLevel  string
	logFormat string
}

// load reads configuration and builds the process logger. Flags override LOG_LEVEL.
func (o *globalOptions) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.LogLevel
	if strings.TrimSpace(o.logLevel) != "" {
		level = o.logLevel
	}
	logger := logging.New(os.Stderr, appName, level, o.logFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "desk",
		Short: "Invoice recognition operator desk",
		Long: `desk uploads invoices to the recognition service, waits for the
extracted fields, applies operator corrections and forwards the result to
bookkeeping exactly once.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "json", "Log format (json, text)")

	cmd.AddCommand(
		serveCmd(opts),
		processCmd(opts),
		recentCmd(opts),
		watchCmd(opts),
		journalCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}
