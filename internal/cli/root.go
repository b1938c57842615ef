// Package cli implements the heartbeat command line.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/heartbeat/pkg/logger"
)

var (
	flagLogLevel string
	flagPretty   bool

	log zerolog.Logger
)

// NewRootCmd creates the root cobra command for the heartbeat binary.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "heartbeat",
		Short: "Market-aware job heartbeat with leader election",
		Long: "heartbeat runs registered jobs from a single leader-elected loop whose " +
			"cadence follows whether any market is open.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = logger.New(logger.Config{
				Level:  flagLogLevel,
				Pretty: flagPretty,
				Output: cmd.ErrOrStderr(),
			})
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flagPretty, "pretty", false, "Human-readable console logs")

	root.AddCommand(
		newRunCmd(),
		newLeaseCmd(),
		newJobsCmd(),
	)

	return root
}
