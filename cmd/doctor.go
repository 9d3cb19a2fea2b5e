package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"ps1dev/internal/catalog"
	"ps1dev/internal/doctor"
)

var outputJSON bool

// doctorCmd reports the state of every tool, the config file and the catalog.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check toolchain health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := doctor.Run(current.paths, current.catalog, catalog.CurrentPlatform())
		if outputJSON {
			if err := doctor.WriteJSON(cmd.OutOrStdout(), checks); err != nil {
				return err
			}
		} else {
			doctor.Render(cmd.OutOrStdout(), current.paths.Root, checks)
		}
		if !doctor.Healthy(checks) {
			return errors.New("toolchain is not ready; run 'ps1dev setup'")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")
}
