package cmd

import (
	"github.com/spf13/cobra"

	"ps1dev/internal/environment"
	"ps1dev/internal/logger"
)

// setupCmd installs whatever part of the toolchain is missing, optional tools included.
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Set up the development environment (download missing tools)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := current.env.Setup(cmd.Context(), environment.SetupOptions{
			Manual:    true,
			AssumeYes: current.settings.AssumeYes,
		})
		logger.Debug("[DEBUG] Environment state: %s\n", st)
		return err
	},
}

// checkCmd records tools that are already present and offers to download missing
// required ones. Missing optional tools are reported but not fetched.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the environment and offer to install missing required tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := current.env.CheckAndSetup(cmd.Context(), current.settings.AssumeYes)
		if err != nil {
			return err
		}
		switch st {
		case environment.MissingOptionalOnly:
			logger.Warn("[WARN] Optional tools are missing; run 'ps1dev setup' to install them\n")
		case environment.MissingRequired:
			logger.Warn("[WARN] Required tools are still missing\n")
		}
		return nil
	},
}
