package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a single collection pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().RunOnce(cmd.Context(), runForce)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Status)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runForce, "force", "f", false, "Bypass the trading-day gate and the already-recorded check")
}
