// Package doctor inspects an install root and reports the health of each tool.
package doctor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ps1dev/internal/catalog"
	"ps1dev/internal/config"
	"ps1dev/internal/environment"
	"ps1dev/internal/state"
)

const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// listLimit caps how many directory entries a summary names.
const listLimit = 5

// Check is one line of the report.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

// Run inspects paths. Missing required tools are errors, missing optional tools are
// warnings. The catalog check resolves every tool for platform.
func Run(paths config.Paths, cat *catalog.Catalog, platform string) []Check {
	var checks []Check
	for _, t := range environment.Tools(paths) {
		switch t.ID {
		case state.GCC:
			checks = append(checks, checkTool(t, "bin"))
		case state.PS1SDK:
			checks = append(checks, checkTool(t, "include", "lib"))
		default:
			checks = append(checks, checkTool(t))
		}
	}
	checks = append(checks, checkConfig(paths))
	checks = append(checks, checkCatalog(paths, cat, platform))
	return checks
}

// Healthy reports whether no check failed.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if c.Status == StatusError {
			return false
		}
	}
	return true
}

func checkTool(t environment.Tool, subdirs ...string) Check {
	missing := StatusWarning
	if t.Required {
		missing = StatusError
	}
	entries, err := listDir(t.Dir)
	if err != nil || len(entries) == 0 {
		return Check{Name: t.ID, Status: missing, Summary: fmt.Sprintf("%s not found or directory is empty (%s)", t.Label, t.Dir)}
	}
	if len(subdirs) == 0 {
		return Check{Name: t.ID, Status: StatusOK, Summary: "files: " + preview(entries)}
	}

	var parts []string
	for _, sub := range subdirs {
		files, err := listDir(filepath.Join(t.Dir, sub))
		if err != nil {
			return Check{Name: t.ID, Status: missing, Summary: fmt.Sprintf("%s directory not found in %s", sub, t.Dir)}
		}
		parts = append(parts, fmt.Sprintf("%s: %s", sub, preview(files)))
	}
	return Check{Name: t.ID, Status: StatusOK, Summary: strings.Join(parts, "; ")}
}

func checkConfig(paths config.Paths) Check {
	if _, err := os.Stat(paths.ConfigFile); os.IsNotExist(err) {
		return Check{Name: "config", Status: StatusWarning, Summary: "no config.json yet; run ps1dev setup"}
	}
	cfg, err := state.Load(paths.ConfigFile)
	if err != nil {
		return Check{Name: "config", Status: StatusError, Summary: err.Error()}
	}
	var installed []string
	for _, id := range state.KnownTools {
		if cfg.Installed(id) {
			installed = append(installed, id)
		}
	}
	if len(installed) == 0 {
		return Check{Name: "config", Status: StatusOK, Summary: "no tools recorded as installed"}
	}
	return Check{Name: "config", Status: StatusOK, Summary: "installed: " + strings.Join(installed, ", ")}
}

func checkCatalog(paths config.Paths, cat *catalog.Catalog, platform string) Check {
	var unresolved []string
	status := StatusOK
	for _, t := range environment.Tools(paths) {
		if _, err := cat.Resolve(t.CatalogName, platform); err != nil {
			unresolved = append(unresolved, t.CatalogName)
			if t.Required {
				status = StatusError
			} else if status == StatusOK {
				status = StatusWarning
			}
		}
	}
	if len(unresolved) == 0 {
		return Check{Name: "catalog", Status: StatusOK, Summary: fmt.Sprintf("all tools available for %s", platform)}
	}
	return Check{Name: "catalog", Status: status, Summary: fmt.Sprintf("no entry for %s on %s", strings.Join(unresolved, ", "), platform)}
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func preview(names []string) string {
	if len(names) == 0 {
		return "(empty)"
	}
	if len(names) > listLimit {
		return strings.Join(names[:listLimit], ", ") + ", ..."
	}
	return strings.Join(names, ", ")
}

// WriteJSON writes checks as an indented JSON array.
func WriteJSON(w io.Writer, checks []Check) error {
	data, err := json.MarshalIndent(checks, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Render writes the human-readable report.
func Render(w io.Writer, root string, checks []Check) {
	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	fmt.Fprintln(w, bold.Render("TOOLCHAIN HEALTH:")+" "+root)
	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case StatusOK:
			statusStr = green.Render("OK")
		case StatusWarning:
			statusStr = yellow.Render("WARN")
		case StatusError:
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(w, "  %-10s %s    %s\n", c.Name+":", statusStr, c.Summary)
	}
}
