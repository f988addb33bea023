package cli

import (
	"github.com/spf13/cobra"

	"stock-threshold-alerts/internal/app"
)

var (
	reportDays int
	reportSend bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), app.ReportOptions{Days: reportDays, Send: reportSend})
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportDays, "days", 0, "Window in days (defaults to report.window_days)")
	reportCmd.Flags().BoolVar(&reportSend, "send", false, "Deliver through the configured channels instead of printing")
}
