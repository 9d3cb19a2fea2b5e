package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ps1dev/internal/environment"
	"ps1dev/internal/logger"
)

// printOnly makes build, run and iso print the shell command instead of running it.
var printOnly bool

// helloCmd creates the hello-world project in the project directory.
var helloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Create a Hello World project in the project directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := current.project()
		if err != nil {
			return err
		}
		created, err := current.env.CreateHelloWorld(cmd.Context(), dir, current.settings.AssumeYes)
		if err != nil {
			return fmt.Errorf("create Hello World project: %w", err)
		}
		if created {
			logger.Info("[INFO] Next: ps1dev build -C %s\n", dir)
		}
		return nil
	},
}

var buildCmd = makeCommand("build", "Build the project with make", nil)

var runCmd = makeCommand("run", "Build the project and start it in the emulator (make run)", []string{"run"})

var isoCmd = makeCommand("iso", "Build a CD image of the project (make iso)", []string{"iso"})

// makeCommand builds a command that runs make with makeArgs in the project directory.
func makeCommand(use, short string, makeArgs []string) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMake(cmd, makeArgs)
		},
	}
	c.Flags().BoolVar(&printOnly, "print", false, "Print the equivalent shell command instead of running it")
	return c
}

func runMake(cmd *cobra.Command, makeArgs []string) error {
	ctx := cmd.Context()
	dir, err := current.project()
	if err != nil {
		return err
	}
	if printOnly {
		if _, err := current.env.Invocation(dir, makeArgs...); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), current.env.ShellCommand(dir, makeArgs...))
		return nil
	}

	if environment.DetectPresence(current.paths).State(current.paths) == environment.MissingRequired {
		logger.Warn("[WARN] The compiler or SDK is not installed; run 'ps1dev setup' first\n")
	}

	switch {
	case len(makeArgs) == 0:
		return current.env.Build(ctx, dir)
	case makeArgs[0] == "run":
		return current.env.Run(ctx, dir)
	default:
		return current.env.GenerateISO(ctx, dir)
	}
}
