package environment

import (
	"fmt"

	"ps1dev/internal/config"
	"ps1dev/internal/installer"
	"ps1dev/internal/state"
)

// Tool describes one provisioned tool: its config key, the catalog name it is
// resolved by and the directory it lives in.
type Tool struct {
	ID          string // Key in config.json
	Label       string // Human-readable name for messages
	CatalogName string // Name resolved against the catalog (prefix match per platform)
	Required    bool   // Builds cannot run without it
	Dir         string // Install directory
}

// Tools returns the tool table for paths. Required tools come first, and Setup
// installs in this order.
func Tools(paths config.Paths) []Tool {
	return []Tool{
		{ID: state.GCC, Label: "GCC for PlayStation 1", CatalogName: "gcc", Required: true, Dir: paths.GCC},
		{ID: state.PS1SDK, Label: "PSn00bSDK", CatalogName: "psn00b_sdk", Required: true, Dir: paths.SDK},
		{ID: state.Emulator, Label: "PlayStation 1 emulator", CatalogName: "emulator", Dir: paths.Emulator},
		{ID: state.GDB, Label: "GDB multiarch debugger", CatalogName: "gdb_multiarch", Dir: paths.GDB},
	}
}

// LookupTool finds a tool by config ID or catalog name.
func LookupTool(paths config.Paths, name string) (Tool, error) {
	for _, t := range Tools(paths) {
		if t.ID == name || t.CatalogName == name {
			return t, nil
		}
	}
	return Tool{}, fmt.Errorf("unknown tool %q", name)
}

// State is the result of an environment check.
type State int

const (
	NotChecked State = iota
	MissingRequired
	MissingOptionalOnly
	FullyPresent
)

func (s State) String() string {
	switch s {
	case MissingRequired:
		return "missing required tools"
	case MissingOptionalOnly:
		return "missing optional tools"
	case FullyPresent:
		return "fully present"
	default:
		return "not checked"
	}
}

// Presence maps tool IDs to whether the tool's directory exists and holds at least
// one entry. The contents themselves are not validated.
type Presence map[string]bool

// DetectPresence checks every tool directory under paths.
func DetectPresence(paths config.Paths) Presence {
	p := make(Presence)
	for _, t := range Tools(paths) {
		p[t.ID] = installer.DirPopulated(t.Dir)
	}
	return p
}

// State derives the environment state from presence.
func (p Presence) State(paths config.Paths) State {
	st := FullyPresent
	for _, t := range Tools(paths) {
		if p[t.ID] {
			continue
		}
		if t.Required {
			return MissingRequired
		}
		st = MissingOptionalOnly
	}
	return st
}
