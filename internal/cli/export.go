package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stock-threshold-alerts/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export daily alert counts as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		loc := a.Config.Location()
		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		var err error
		if opts.From, err = parseTimeFlag("--from", exportFrom, loc); err != nil {
			return err
		}
		if opts.To, err = parseTimeFlag("--to", exportTo, loc); err != nil {
			return err
		}

		return a.Export(cmd.Context(), opts)
	},
}

// parseTimeFlag accepts RFC3339 or a bare date, read in the market timezone.
func parseTimeFlag(name, raw string, loc *time.Location) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: want RFC3339 or YYYY-MM-DD", name, raw)
	}
	return &t, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start (RFC3339 or YYYY-MM-DD in market timezone, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End (RFC3339 or YYYY-MM-DD in market timezone, exclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum days to export (defaults to config)")
}
