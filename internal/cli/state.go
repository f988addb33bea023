package cli

import (
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or upgrade the persisted alert state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the alert state as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StateShow(cmd.Context())
	},
}

var stateMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite the alert state in the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StateMigrate(cmd.Context())
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateMigrateCmd)
}
