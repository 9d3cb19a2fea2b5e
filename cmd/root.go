package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"ps1dev/internal/catalog"
	"ps1dev/internal/config"
	"ps1dev/internal/environment"
	"ps1dev/internal/installer"
	"ps1dev/internal/logger"
)

// Flags read before settings exist. The remaining persistent flags are only read
// through config.LoadSettings, where unset ones fall back to ps1dev.yaml and
// PS1DEV_* variables.
var (
	debug   bool
	rootDir string
)

// app is everything a subcommand needs, assembled once per invocation.
type app struct {
	paths     config.Paths
	settings  config.Settings
	catalog   *catalog.Catalog
	installer *installer.Installer
	env       *environment.Environment
}

var current *app

// rootCmd is the base command for the CLI tool `ps1dev`.
var rootCmd = &cobra.Command{
	Use:   "ps1dev",
	Short: "PlayStation 1 homebrew toolchain manager",
	Long: `ps1dev downloads and maintains a PlayStation 1 homebrew toolchain
(GCC for mipsel, PSn00bSDK, an emulator and GDB multiarch) and builds
projects against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,

	// PersistentPreRunE loads settings and wires the components before any subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func newApp(cmd *cobra.Command) (*app, error) {
	root, err := config.ResolveRoot(rootDir)
	if err != nil {
		return nil, err
	}
	paths := config.NewPaths(root)

	settings, err := config.LoadSettings(paths.SettingsFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := logger.Init(debug, settings.LogFile); err != nil {
		return nil, err
	}
	logger.Debug("[DEBUG] Install root: %s\n", root)

	cat, err := loadCatalog(paths, settings.Catalog)
	if err != nil {
		return nil, err
	}

	inst := installer.New(paths, cat)
	inst.Timeout = settings.Timeout

	env := environment.New(paths, inst,
		environment.NewConsolePrompter(settings.AssumeYes),
		environment.NewExecDispatcher(),
		catalog.CurrentPlatform(),
	)
	return &app{paths: paths, settings: settings, catalog: cat, installer: inst, env: env}, nil
}

// loadCatalog reads an explicit catalog override, which must exist, or the catalog in
// the install root, which falls back to the built-in one.
func loadCatalog(paths config.Paths, override string) (*catalog.Catalog, error) {
	if override == "" {
		return catalog.Load(paths.CatalogFile)
	}
	if _, err := os.Stat(override); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", override, err)
	}
	logger.Debug("[DEBUG] Using catalog %s\n", override)
	return catalog.Load(override)
}

// project resolves the project directory: --project, the settings file, or the
// working directory.
func (a *app) project() (string, error) {
	dir := a.settings.Project
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Abs(dir)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&rootDir, "root", "", "Install root (default $PS1DEV_ROOT or ~/.ps1dev)")
	flags.StringP("project", "C", "", "Project directory (default: working directory)")
	flags.BoolP("yes", "y", false, "Answer yes to confirmation prompts")
	flags.Duration("timeout", 0, "Per-download timeout, e.g. 10m (default: none)")
	flags.String("catalog", "", "Tool catalog file (JSON or YAML)")
	flags.String("log-file", "", "Append JSON diagnostics to this file")

	rootCmd.AddCommand(setupCmd, checkCmd)
	rootCmd.AddCommand(helloCmd, buildCmd, runCmd, isoCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(fixPermissionsCmd)
	rootCmd.AddCommand(doctorCmd)
}

// Execute runs the CLI. Any error is printed in red and the process exits with
// status 1; Ctrl-C cancels in-flight downloads and builds.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error("[ERROR] %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}
