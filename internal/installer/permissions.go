package installer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ps1dev/internal/logger"
)

// MakeExecutable adds the executable bits to every regular file below root and
// returns how many files changed. Archives do not reliably carry permission bits
// (ZIPs made on Windows carry none), so every extracted file gets them back; this
// is the single policy for installs and for fix-permissions.
func MakeExecutable(root string) (int, error) {
	changed := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode().Perm()
		if mode&0o111 == 0o111 {
			return nil
		}
		if err := os.Chmod(p, mode|0o111); err != nil {
			return fmt.Errorf("chmod +x %s: %w", p, err)
		}
		changed++
		return nil
	})
	if err != nil {
		return changed, err
	}
	logger.Debug("[DEBUG] Marked %d files executable under %s\n", changed, root)
	return changed, nil
}

// FixPermissions restores executable bits for every populated tool directory under
// toolsDir. It does nothing on Windows, where the bits carry no meaning.
func FixPermissions(toolsDir string) (int, error) {
	if isWindows() {
		logger.Info("[INFO] Permissions do not need fixing on Windows\n")
		return 0, nil
	}
	entries, err := os.ReadDir(toolsDir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("[WARN] No tools installed under %s\n", toolsDir)
			return 0, nil
		}
		return 0, fmt.Errorf("read tools directory: %w", err)
	}

	total := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(toolsDir, e.Name())
		n, err := MakeExecutable(dir)
		total += n
		if err != nil {
			return total, err
		}
		logger.Info("[INFO] Fixed permissions for %s (%d files)\n", e.Name(), n)
	}
	return total, nil
}
