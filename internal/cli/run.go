package cli

import (
	"github.com/spf13/cobra"

	"stock-threshold-alerts/internal/app"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check every configured ticker once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{DryRun: runDryRun})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run checks on the configured schedule during market hours",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context())
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve TICKER...",
	Short: "Print raw observations and the resolved price",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Resolve(cmd.Context(), args)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Keep state in memory and print alerts instead of sending them")
}
