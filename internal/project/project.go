// Package project holds the embedded hello-world project template.
package project

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"ps1dev/internal/logger"
)

const templateRoot = "hello-world"

//go:embed all:hello-world
var templateFS embed.FS

// Files lists the template's files as slash-separated paths relative to its root.
func Files() ([]string, error) {
	var files []string
	err := fs.WalkDir(templateFS, templateRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := relTemplatePath(p)
		files = append(files, rel)
		return nil
	})
	return files, err
}

// Existing returns the template files already present in dest.
func Existing(dest string) ([]string, error) {
	files, err := Files()
	if err != nil {
		return nil, err
	}
	var found []string
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dest, filepath.FromSlash(f))); err == nil {
			found = append(found, f)
		}
	}
	return found, nil
}

// CopyTemplate writes the hello-world project into dest, overwriting files with the
// same names and leaving any others alone.
func CopyTemplate(dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dest, err)
	}
	return fs.WalkDir(templateFS, templateRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, ok := relTemplatePath(p)
		if !ok {
			return nil
		}
		out := filepath.Join(dest, filepath.FromSlash(rel))
		if d.IsDir() {
			return os.MkdirAll(out, 0o755)
		}
		content, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		logger.Debug("[DEBUG] Wrote %s\n", out)
		return nil
	})
}

// relTemplatePath strips the template root; the root itself yields false.
func relTemplatePath(p string) (string, bool) {
	if p == templateRoot {
		return "", false
	}
	rel := p[len(templateRoot)+1:]
	return path.Clean(rel), true
}
