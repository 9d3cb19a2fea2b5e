package cmd

import (
	"github.com/spf13/cobra"

	"ps1dev/internal/installer"
	"ps1dev/internal/logger"
)

// fixPermissionsCmd restores executable bits on every installed tool.
var fixPermissionsCmd = &cobra.Command{
	Use:   "fix-permissions",
	Short: "Make installed tool binaries executable again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := installer.FixPermissions(current.paths.ToolsDir)
		if err != nil {
			return err
		}
		logger.Info("[INFO] Permissions fixed (%d files changed)\n", n)
		return nil
	},
}
