package config

import (
	"path/filepath"
	"time"
)

// File and directory names under the install root.
const (
	ConfigFileName   = "config.json"
	CatalogFileName  = "tools-urls.json"
	SettingsFileName = "ps1dev.yaml"
	ToolsDirName     = "tools"
)

// Paths holds every filesystem location the tool works with. It is resolved once at
// startup from the install root and passed to each component; nothing reads paths
// from package state.
type Paths struct {
	Root         string // Install root, e.g. ~/.ps1dev
	ToolsDir     string // <root>/tools
	GCC          string // Cross-compiler install dir
	SDK          string // PSn00bSDK install dir
	Emulator     string // Emulator install dir
	GDB          string // GDB multiarch install dir
	ConfigFile   string // Installed-tool state (config.json)
	CatalogFile  string // Tool catalog (tools-urls.json); embedded default if absent
	SettingsFile string // Optional ps1dev.yaml
}

// NewPaths derives all locations from an absolute install root.
func NewPaths(root string) Paths {
	tools := filepath.Join(root, ToolsDirName)
	return Paths{
		Root:         root,
		ToolsDir:     tools,
		GCC:          filepath.Join(tools, "gcc"),
		SDK:          filepath.Join(tools, "psn00b_sdk"),
		Emulator:     filepath.Join(tools, "emulator"),
		GDB:          filepath.Join(tools, "gdb"),
		ConfigFile:   filepath.Join(root, ConfigFileName),
		CatalogFile:  filepath.Join(root, CatalogFileName),
		SettingsFile: filepath.Join(root, SettingsFileName),
	}
}

// GCCBin and SDKBin are prepended to PATH for make invocations.
func (p Paths) GCCBin() string { return filepath.Join(p.GCC, "bin") }

func (p Paths) SDKBin() string { return filepath.Join(p.SDK, "bin") }

// Settings are the user-tunable knobs layered from defaults, ps1dev.yaml,
// PS1DEV_* environment variables and command-line flags (highest wins).
type Settings struct {
	Catalog   string        // Catalog file override; empty means <root>/tools-urls.json
	Timeout   time.Duration // Per-download timeout; zero waits indefinitely
	AssumeYes bool          // Answer yes to confirmation prompts
	LogFile   string        // Diagnostics log destination; empty disables it
	Project   string        // Project directory; empty means the working directory
}
