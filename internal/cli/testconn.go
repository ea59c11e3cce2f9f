package cli

import (
	"github.com/spf13/cobra"
)

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Verify database connectivity and report the latest rate date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().TestConnection(cmd.Context())
	},
}
