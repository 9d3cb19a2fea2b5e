package installer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"ps1dev/internal/catalog"
	"ps1dev/internal/config"
	"ps1dev/internal/logger"
)

// sdkFolderMarkers are matched, case-insensitively, against top-level directory names
// of a flattened archive. The first directory in name order containing either wins;
// archives with several such folders resolve by that order alone.
var sdkFolderMarkers = []string{"psn00b", "sdk"}

// Installer downloads catalog tools and unpacks them under the install root.
type Installer struct {
	Paths    config.Paths
	Catalog  *catalog.Catalog
	Client   *http.Client
	Runner   Runner        // Spawns hdiutil and cp for disk images
	Platform string        // Platform used for catalog resolution
	Timeout  time.Duration // Per-download limit; zero waits indefinitely
	TempDir  string        // Base for scratch files; empty means os.TempDir()
}

// New returns an Installer for the current platform using os/exec and a default HTTP client.
func New(paths config.Paths, cat *catalog.Catalog) *Installer {
	return &Installer{
		Paths:    paths,
		Catalog:  cat,
		Client:   &http.Client{},
		Runner:   ExecRunner{},
		Platform: catalog.CurrentPlatform(),
	}
}

// Result describes a completed install.
type Result struct {
	Tool       string
	Entry      catalog.Entry
	ExtractDir string
	CheckFile  string
}

// FetchAndInstall installs toolName and reports success as a boolean. Failures are
// logged to the console and the diagnostics log; callers only learn that it failed.
func (in *Installer) FetchAndInstall(ctx context.Context, toolName string) bool {
	res, err := in.Install(ctx, toolName)
	if err != nil {
		logger.Error("[ERROR] Failed to download and extract %s: %v\n", toolName, err)
		logger.Diag("installer").Error("install failed",
			zap.String("tool", toolName),
			zap.String("platform", in.Platform),
			zap.Error(err),
		)
		return false
	}
	logger.Info("[INFO] %s installed successfully in %s\n", toolName, res.ExtractDir)
	return true
}

// SourceURL returns the catalog URL toolName would be fetched from, or "" if the
// catalog has no entry for this platform.
func (in *Installer) SourceURL(toolName string) string {
	entry, err := in.Catalog.Resolve(toolName, in.Platform)
	if err != nil {
		return ""
	}
	return entry.URL
}

// Install runs the install protocol for toolName: resolve the catalog entry, download
// the archive into memory, unpack it (mounting disk images, flattening SDK archives),
// restore executable bits and verify the check file. Any failing step aborts the rest;
// partially extracted files are left in place.
func (in *Installer) Install(ctx context.Context, toolName string) (Result, error) {
	// Look up the catalog entry for this platform
	entry, err := in.Catalog.Resolve(toolName, in.Platform)
	if err != nil {
		return Result{}, err
	}

	// Resolve the install directory and refuse anything outside the install root
	extractDir := filepath.Join(in.Paths.Root, filepath.FromSlash(entry.ExtractPath))
	if extractDir == filepath.Clean(in.Paths.Root) || !within(in.Paths.Root, extractDir) {
		return Result{}, fmt.Errorf("catalog entry %s: extractPath %q must be a path inside %s", entry.Name, entry.ExtractPath, in.Paths.Root)
	}
	checkFile := filepath.Join(extractDir, filepath.FromSlash(entry.CheckFile))
	res := Result{Tool: toolName, Entry: entry, ExtractDir: extractDir, CheckFile: checkFile}
	logger.Debug("[DEBUG] Installing %s from %s into %s\n", toolName, entry.URL, extractDir)

	// Make sure the target directory exists before anything is written to it
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return res, fmt.Errorf("create %s: %w", extractDir, err)
	}

	// Work out the archive format from the catalog override or the URL suffix
	kind, err := KindFor(entry.URL, entry.Archive)
	if err != nil {
		return res, &ExtractionError{Tool: toolName, Err: err}
	}

	// Fetch the whole archive into memory
	logger.Info("[INFO] Downloading %s...\n", toolName)
	data, err := in.download(ctx, entry.URL)
	if err != nil {
		return res, err
	}

	// Unpack: disk images are mounted, SDK archives are flattened, the rest extract in place
	logger.Info("[INFO] Extracting %s...\n", toolName)
	switch {
	case kind == KindDMG:
		err = in.installDMG(ctx, toolName, data, extractDir)
	case entry.Flatten:
		err = in.extractFlattened(toolName, kind, data, extractDir)
	default:
		if xerr := ExtractArchive(kind, data, extractDir); xerr != nil {
			err = &ExtractionError{Tool: toolName, Err: xerr}
		}
	}
	if err != nil {
		return res, err
	}

	// Restore executable bits the archive may not have carried
	if !isWindows() {
		if _, err := MakeExecutable(extractDir); err != nil {
			return res, err
		}
	}

	// The check file is the only proof the install produced something usable
	if !FileExists(checkFile) {
		return res, &ExtractionError{Tool: toolName, Path: checkFile, Err: ErrCheckFileMissing}
	}
	return res, nil
}

func (in *Installer) download(ctx context.Context, url string) ([]byte, error) {
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}
	return Download(ctx, in.Client, url)
}

func (in *Installer) tempBase() string {
	if in.TempDir != "" {
		return in.TempDir
	}
	return os.TempDir()
}

// extractFlattened unpacks into a scratch directory, then copies the SDK folder's
// contents (or everything, if there is no such folder) into a cleared extractDir.
func (in *Installer) extractFlattened(toolName string, kind Kind, data []byte, extractDir string) error {
	tmp, err := os.MkdirTemp(in.tempBase(), toolName+"-extract-")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			logger.Warn("[WARN] Failed to remove scratch directory %s: %v\n", tmp, err)
		}
	}()

	if err := ExtractArchive(kind, data, tmp); err != nil {
		return &ExtractionError{Tool: toolName, Err: err}
	}
	if err := emptyDir(extractDir); err != nil {
		return fmt.Errorf("clear %s: %w", extractDir, err)
	}

	src := tmp
	if name, ok := findSDKFolder(tmp); ok {
		logger.Debug("[DEBUG] Flattening SDK folder %s\n", name)
		src = filepath.Join(tmp, name)
	}
	if err := copyTree(src, extractDir); err != nil {
		return &ExtractionError{Tool: toolName, Err: fmt.Errorf("copy into %s: %w", extractDir, err)}
	}

	// Links that were relative to the dropped top-level folder now resolve elsewhere
	g, err := newDestGuard(extractDir)
	if err != nil {
		return err
	}
	if err := g.verifyLinks(extractDir); err != nil {
		return &ExtractionError{Tool: toolName, Err: err}
	}
	return nil
}

// findSDKFolder returns the first top-level directory of dir whose name contains an
// SDK marker.
func findSDKFolder(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		for _, marker := range sdkFolderMarkers {
			if strings.Contains(lower, marker) {
				return e.Name(), true
			}
		}
	}
	return "", false
}

// installDMG writes the image to a temp file, attaches it, copies the volume contents
// into extractDir and detaches it. Each step is a separate process; the first failure
// is returned. A failed copy still attempts the detach so the volume is not left mounted.
func (in *Installer) installDMG(ctx context.Context, toolName string, data []byte, extractDir string) error {
	// Write the image to disk so hdiutil can attach it
	f, err := os.CreateTemp(in.tempBase(), toolName+"-*.dmg")
	if err != nil {
		return fmt.Errorf("create disk image file: %w", err)
	}
	dmgPath := f.Name()
	defer os.Remove(dmgPath)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write disk image: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write disk image: %w", err)
	}

	// Mount into a private directory instead of /Volumes
	mountPoint, err := os.MkdirTemp(in.tempBase(), toolName+"-mount-")
	if err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}
	defer os.Remove(mountPoint)

	// Attach the image
	if _, err := in.Runner.Run(ctx, "hdiutil", "attach", dmgPath, "-mountpoint", mountPoint, "-nobrowse", "-quiet"); err != nil {
		return err
	}

	// Copy the volume contents, then detach whether or not the copy worked
	_, copyErr := in.Runner.Run(ctx, "cp", "-R", mountPoint+string(os.PathSeparator)+".", extractDir+string(os.PathSeparator))
	_, detachErr := in.Runner.Run(ctx, "hdiutil", "detach", mountPoint, "-quiet")
	return errors.Join(copyErr, detachErr)
}
