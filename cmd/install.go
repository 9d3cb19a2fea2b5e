package cmd

import (
	"github.com/spf13/cobra"

	"ps1dev/internal/state"
)

// installCmd groups the single-tool installers. Each reinstalls its tool even when
// it is already present.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install one tool of the toolchain",
}

func init() {
	installCmd.AddCommand(
		installToolCmd("compiler", "Install GCC for PlayStation 1", state.GCC),
		installToolCmd("sdk", "Install PSn00bSDK", state.PS1SDK),
		installToolCmd("emulator", "Install the PlayStation 1 emulator", state.Emulator),
		installToolCmd("debugger", "Install the GDB multiarch debugger", state.GDB),
	)
}

func installToolCmd(use, short, toolID string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return current.env.InstallTool(cmd.Context(), toolID)
		},
	}
}
