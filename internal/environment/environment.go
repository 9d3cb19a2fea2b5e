// Package environment provisions the PS1 toolchain and drives project workflows:
// checking which tools are present, installing missing ones, creating the hello-world
// project and running make with the toolchain on PATH.
package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ps1dev/internal/config"
	"ps1dev/internal/logger"
	"ps1dev/internal/project"
	"ps1dev/internal/state"
	"ps1dev/internal/templater"
)

var (
	// ErrRequiredToolsMissing is returned when setup ends without a usable toolchain.
	ErrRequiredToolsMissing = errors.New("required tools are not installed")
	// ErrInstallFailed is returned by InstallTool; details go to the log.
	ErrInstallFailed = errors.New("tool installation failed")
)

// WorkspaceStateError reports a project directory that is missing or not a directory.
type WorkspaceStateError struct {
	Dir    string
	Reason string
}

func (e *WorkspaceStateError) Error() string {
	return fmt.Sprintf("project directory %s: %s", e.Dir, e.Reason)
}

// MissingArtifactError reports a project file a workflow needs but cannot find.
type MissingArtifactError struct {
	Artifact string
	Path     string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("%s not found in the project directory (%s)", e.Artifact, e.Path)
}

// ToolInstaller fetches and unpacks a tool by catalog name. It only reports success;
// failure details are logged by the implementation.
type ToolInstaller interface {
	FetchAndInstall(ctx context.Context, catalogName string) bool
	SourceURL(catalogName string) string
}

// Environment ties the tool table, the config file, the installer and the project
// workflows together.
type Environment struct {
	Paths      config.Paths
	Installer  ToolInstaller
	Templater  *templater.Templater
	Prompter   Prompter
	Dispatcher Dispatcher
	Platform   string // GOOS used for the printed shell command
}

// New wires an Environment for paths.
func New(paths config.Paths, inst ToolInstaller, prompter Prompter, dispatcher Dispatcher, platform string) *Environment {
	return &Environment{
		Paths:      paths,
		Installer:  inst,
		Templater:  templater.New(paths),
		Prompter:   prompter,
		Dispatcher: dispatcher,
		Platform:   platform,
	}
}

// SetupOptions tune a Setup pass.
type SetupOptions struct {
	// Manual is set for an explicit setup request. It also installs missing optional
	// tools when the required ones are already present.
	Manual bool
	// AssumeYes skips the download confirmation.
	AssumeYes bool
}

// CheckAndSetup is the automatic check run before project workflows.
func (e *Environment) CheckAndSetup(ctx context.Context, assumeYes bool) (State, error) {
	return e.Setup(ctx, SetupOptions{AssumeYes: assumeYes})
}

// Setup runs one provisioning pass. Tools whose directories are populated are
// recorded as installed whatever put them there. Missing required tools are
// downloaded after confirmation, in order, stopping at the first failure; optional
// tools are tried only while every download so far succeeded, and their failures
// only warn. config.json is written once at the end.
func (e *Environment) Setup(ctx context.Context, opts SetupOptions) (State, error) {
	// Create the install root and tools directory if this is a first run
	if err := e.ensureDirs(); err != nil {
		return NotChecked, err
	}
	// Load config.json, or the default skeleton when there is none yet
	cfg, err := state.Load(e.Paths.ConfigFile)
	if err != nil {
		return NotChecked, err
	}

	// Anything already on disk counts as installed, whatever the config said
	presence := DetectPresence(e.Paths)
	for _, t := range Tools(e.Paths) {
		if presence[t.ID] {
			cfg.MarkInstalled(t.ID, "")
		}
	}

	// Nothing to download: record what was found and stop
	current := presence.State(e.Paths)
	if current == FullyPresent || (current == MissingOptionalOnly && !opts.Manual) {
		if err := state.Save(e.Paths.ConfigFile, cfg); err != nil {
			return current, err
		}
		logger.Info("[INFO] Development environment already set up (%s)\n", current)
		return current, nil
	}

	// Only a missing compiler or SDK is worth asking about
	if current == MissingRequired && !opts.AssumeYes {
		ok, err := e.Prompter.Confirm("Required tools for PlayStation 1 development were not found. Download them now?", true)
		if err != nil {
			return current, err
		}
		if !ok {
			logger.Warn("[WARN] The development environment is not completely configured. Run 'ps1dev setup' when you are ready.\n")
			return MissingRequired, nil
		}
	}

	// Install missing tools in table order; a failed required tool skips the rest
	downloadSuccess := true
	for _, t := range Tools(e.Paths) {
		if presence[t.ID] || !downloadSuccess {
			continue
		}
		logger.Info("[INFO] Downloading %s...\n", t.Label)
		if e.Installer.FetchAndInstall(ctx, t.CatalogName) {
			cfg.MarkInstalled(t.ID, e.Installer.SourceURL(t.CatalogName))
			presence[t.ID] = true
			logger.Info("[INFO] %s downloaded successfully\n", t.Label)
			continue
		}
		if t.Required {
			downloadSuccess = false
			continue
		}
		logger.Warn("[WARN] Failed to download %s, but it is optional\n", t.Label)
	}

	// Save once, after every attempt, so partial progress is kept
	if err := state.Save(e.Paths.ConfigFile, cfg); err != nil {
		return presence.State(e.Paths), err
	}

	final := presence.State(e.Paths)
	if !downloadSuccess {
		return final, fmt.Errorf("set up the development environment: %w (see the log for details)", ErrRequiredToolsMissing)
	}
	logger.Info("[INFO] PlayStation 1 development environment setup complete!\n")
	return final, nil
}

// InstallTool installs a single tool regardless of whether it is already present,
// recording it in config.json on success.
func (e *Environment) InstallTool(ctx context.Context, name string) error {
	t, err := LookupTool(e.Paths, name)
	if err != nil {
		return err
	}
	if err := e.ensureDirs(); err != nil {
		return err
	}
	cfg, err := state.Load(e.Paths.ConfigFile)
	if err != nil {
		return err
	}

	logger.Info("[INFO] Installing %s...\n", t.Label)
	if !e.Installer.FetchAndInstall(ctx, t.CatalogName) {
		return fmt.Errorf("install %s: %w", t.Label, ErrInstallFailed)
	}
	cfg.MarkInstalled(t.ID, e.Installer.SourceURL(t.CatalogName))
	return state.Save(e.Paths.ConfigFile, cfg)
}

// CreateHelloWorld copies the hello-world project into dir after confirmation and
// fills in the toolchain paths. It reports false when the user declined.
func (e *Environment) CreateHelloWorld(ctx context.Context, dir string, assumeYes bool) (bool, error) {
	if err := checkProjectDir(dir); err != nil {
		return false, err
	}

	if !assumeYes {
		existing, err := project.Existing(dir)
		if err != nil {
			return false, err
		}
		question := fmt.Sprintf("This will create Hello World project files in %s.", dir)
		if len(existing) > 0 {
			question += fmt.Sprintf(" %d existing files will be overwritten.", len(existing))
		}
		ok, err := e.Prompter.Confirm(question+" Continue?", len(existing) == 0)
		if err != nil {
			return false, err
		}
		if !ok {
			logger.Warn("[WARN] Hello World project creation cancelled\n")
			return false, nil
		}
	}

	if err := project.CopyTemplate(dir); err != nil {
		return false, fmt.Errorf("copy project template: %w", err)
	}
	if err := e.Templater.UpdateProject(dir); err != nil {
		return false, err
	}
	logger.Info("[INFO] Hello World project created in %s and configured with the SDK paths\n", dir)
	return true, nil
}

// Build runs make in dir.
func (e *Environment) Build(ctx context.Context, dir string) error {
	return e.runMake(ctx, dir)
}

// Run runs make run in dir, which starts the emulator on the built executable.
func (e *Environment) Run(ctx context.Context, dir string) error {
	return e.runMake(ctx, dir, "run")
}

// GenerateISO runs make iso in dir.
func (e *Environment) GenerateISO(ctx context.Context, dir string) error {
	return e.runMake(ctx, dir, "iso")
}

// Invocation prepares the make run for dir without starting it: the Makefile must
// exist, and setup.mk and the launch descriptor are re-templated first.
func (e *Environment) Invocation(dir string, args ...string) (Invocation, error) {
	if err := checkProjectDir(dir); err != nil {
		return Invocation{}, err
	}
	makefile := filepath.Join(dir, templater.MakefileName)
	if _, err := os.Stat(makefile); err != nil {
		return Invocation{}, &MissingArtifactError{Artifact: templater.MakefileName, Path: makefile}
	}
	if err := e.Templater.UpdateProject(dir); err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Dir:  dir,
		Name: "make",
		Args: args,
		Env:  prefixPATH(os.Environ(), e.Paths.GCCBin(), e.Paths.SDKBin()),
	}, nil
}

// ShellCommand is the terminal one-liner equivalent to running make with args in dir.
func (e *Environment) ShellCommand(dir string, args ...string) string {
	return ShellCommand(e.Platform, dir, e.Paths.GCCBin(), e.Paths.SDKBin(), args...)
}

func (e *Environment) runMake(ctx context.Context, dir string, args ...string) error {
	inv, err := e.Invocation(dir, args...)
	if err != nil {
		return err
	}
	logger.Info("[INFO] Running %s in %s\n", inv, dir)
	if err := e.Dispatcher.Dispatch(ctx, inv); err != nil {
		return err
	}
	logger.Info("[INFO] %s finished\n", inv)
	return nil
}

func (e *Environment) ensureDirs() error {
	for _, t := range Tools(e.Paths) {
		if err := os.MkdirAll(t.Dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", t.Dir, err)
		}
	}
	return nil
}

func checkProjectDir(dir string) error {
	if dir == "" {
		return &WorkspaceStateError{Dir: dir, Reason: "no project directory given"}
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &WorkspaceStateError{Dir: dir, Reason: "does not exist"}
		}
		return &WorkspaceStateError{Dir: dir, Reason: err.Error()}
	}
	if !info.IsDir() {
		return &WorkspaceStateError{Dir: dir, Reason: "not a directory"}
	}
	return nil
}
