// Package templater fills path placeholders in project build files and patches the
// debugger launch descriptor for a project's build target.
package templater

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"ps1dev/internal/config"
	"ps1dev/internal/logger"
)

// Placeholder tokens recognised in templated files.
const (
	TokenGCC       = "$(GCC_PATH)"
	TokenSDK       = "$(PS1SDK_PATH)"
	TokenPluginSDK = "$(PLUGIN_SDK_PATH)"
	TokenEmulator  = "$(EMULATOR_PATH)"
	TokenGDB       = "$(GDB_PATH)"
)

// DefaultTarget is the target name assumed when a Makefile declares none.
const DefaultTarget = "hello_world"

const (
	SetupFileName  = "setup.mk"
	LaunchFileName = "launch.json"
	LaunchDirName  = ".vscode"
	MakefileName   = "Makefile"
)

// defaultExecutableRef is the program path the hello-world launch descriptor ships with.
const defaultExecutableRef = "${workspaceFolder}/bin/" + DefaultTarget

var (
	targetPattern = regexp.MustCompile(`TARGET\s*=\s*([\w_-]+)`)
	// The default reference only matches when not followed by more identifier
	// characters, so a target like hello_world_v2 is not patched twice.
	defaultRefPattern = regexp.MustCompile(regexp.QuoteMeta(defaultExecutableRef) + `([^\w-]|$)`)
)

// Templater substitutes tokens with the paths of one install root.
type Templater struct {
	paths    config.Paths
	replacer *strings.Replacer
}

// New binds the token set to paths. Paths are written with forward slashes on every
// platform so make and the debugger read them the same way.
func New(paths config.Paths) *Templater {
	t := &Templater{paths: paths}
	var pairs []string
	for token, value := range t.Tokens() {
		pairs = append(pairs, token, value)
	}
	t.replacer = strings.NewReplacer(pairs...)
	return t
}

// Tokens maps each placeholder token to the path it resolves to.
func (t *Templater) Tokens() map[string]string {
	sdk := filepath.ToSlash(t.paths.SDK)
	return map[string]string{
		TokenGCC:       filepath.ToSlash(t.paths.GCC),
		TokenSDK:       sdk,
		TokenPluginSDK: sdk,
		TokenEmulator:  filepath.ToSlash(t.paths.Emulator),
		TokenGDB:       filepath.ToSlash(t.paths.GDB),
	}
}

// SubstitutePaths replaces every placeholder token in text. Text without tokens is
// returned unchanged, so running it twice is the same as running it once.
func (t *Templater) SubstitutePaths(text string) string {
	return t.replacer.Replace(text)
}

// ExtractTargetName returns the first TARGET assignment in a Makefile, or DefaultTarget.
func ExtractTargetName(makefile string) string {
	m := targetPattern.FindStringSubmatch(makefile)
	if m == nil {
		return DefaultTarget
	}
	return m[1]
}

// PatchLaunchDescriptor fills the debugger path and points the default executable
// reference at target.
func (t *Templater) PatchLaunchDescriptor(text, target string) string {
	text = strings.ReplaceAll(text, TokenGDB, filepath.ToSlash(t.paths.GDB))
	if target != DefaultTarget {
		text = defaultRefPattern.ReplaceAllStringFunc(text, func(m string) string {
			return "${workspaceFolder}/bin/" + target + m[len(defaultExecutableRef):]
		})
	}
	return text
}

// UpdateFile substitutes tokens in the file at path, in place. It reports whether the
// file existed; the file is only rewritten when its content changes.
func (t *Templater) UpdateFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	out := t.SubstitutePaths(string(data))
	if out == string(data) {
		logger.Debug("[DEBUG] %s already up to date\n", path)
		return true, nil
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return true, fmt.Errorf("write %s: %w", path, err)
	}
	logger.Debug("[DEBUG] Updated paths in %s\n", path)
	return true, nil
}

// UpdateLaunchDescriptor patches projectDir/.vscode/launch.json using the target named
// in projectDir/Makefile. It reports whether a launch descriptor was present.
func (t *Templater) UpdateLaunchDescriptor(projectDir string) (bool, error) {
	launchPath := filepath.Join(projectDir, LaunchDirName, LaunchFileName)
	data, err := os.ReadFile(launchPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", launchPath, err)
	}

	target := DefaultTarget
	makefile, err := os.ReadFile(filepath.Join(projectDir, MakefileName))
	switch {
	case err == nil:
		target = ExtractTargetName(string(makefile))
	case !os.IsNotExist(err):
		return true, fmt.Errorf("read Makefile: %w", err)
	}

	out := t.PatchLaunchDescriptor(string(data), target)
	if out == string(data) {
		return true, nil
	}
	if err := os.WriteFile(launchPath, []byte(out), 0o644); err != nil {
		return true, fmt.Errorf("write %s: %w", launchPath, err)
	}
	logger.Debug("[DEBUG] Launch descriptor now targets %s\n", target)
	return true, nil
}

// UpdateProject re-templates setup.mk and the launch descriptor of projectDir,
// skipping whichever is absent.
func (t *Templater) UpdateProject(projectDir string) error {
	if _, err := t.UpdateFile(filepath.Join(projectDir, SetupFileName)); err != nil {
		return err
	}
	_, err := t.UpdateLaunchDescriptor(projectDir)
	return err
}
