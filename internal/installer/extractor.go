package installer

import (
	"archive/tar"    // For reading .tar archives
	"archive/zip"    // For reading .zip archives
	"bytes"          // Archives arrive as in-memory buffers
	"compress/bzip2" // For reading .bz2 compressed data
	"compress/gzip"  // For reading .gz compressed data
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip" // For reading .7z archives
	"github.com/xi2/xz"          // For reading .xz compressed data

	"ps1dev/internal/logger"
)

// Kind identifies an archive format.
type Kind string

const (
	KindZip    Kind = "zip"
	Kind7z     Kind = "7z"
	KindTar    Kind = "tar"
	KindTarGz  Kind = "tar.gz"
	KindTarBz2 Kind = "tar.bz2"
	KindTarXz  Kind = "tar.xz"
	KindDMG    Kind = "dmg"
)

// suffixKinds is checked in order, so compound suffixes come before ".tar".
var suffixKinds = []struct {
	suffix string
	kind   Kind
}{
	{".dmg", KindDMG},
	{".zip", KindZip},
	{".7z", Kind7z},
	{".tar.gz", KindTarGz},
	{".tgz", KindTarGz},
	{".tar.bz2", KindTarBz2},
	{".tar.xz", KindTarXz},
	{".tar", KindTar},
}

// KindFor decides the archive kind from an explicit override or the URL's path suffix.
// URLs with no recognised suffix are treated as ZIP archives.
func KindFor(rawURL, override string) (Kind, error) {
	if override != "" {
		k := Kind(strings.ToLower(strings.TrimPrefix(override, ".")))
		switch k {
		case KindZip, Kind7z, KindTar, KindTarGz, KindTarBz2, KindTarXz, KindDMG:
			return k, nil
		case "tgz":
			return KindTarGz, nil
		}
		return "", fmt.Errorf("unsupported archive kind %q", override)
	}

	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.ToLower(path.Base(p))
	for _, sk := range suffixKinds {
		if strings.HasSuffix(p, sk.suffix) {
			return sk.kind, nil
		}
	}
	return KindZip, nil
}

// ExtractArchive unpacks data into dest, overwriting existing files. Disk images are
// not archives in this sense and must go through the mount path instead.
func ExtractArchive(kind Kind, data []byte, dest string) error {
	logger.Debug("[DEBUG] Extracting %s archive (%d bytes) to %s\n", kind, len(data), dest)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	g, err := newDestGuard(dest)
	if err != nil {
		return err
	}

	switch kind {
	case KindZip:
		err = g.extractZip(data)
	case Kind7z:
		err = g.extract7z(data)
	case KindTar, KindTarGz, KindTarBz2, KindTarXz:
		err = g.extractTarArchive(kind, data)
	default:
		return fmt.Errorf("unsupported archive format: %s", kind)
	}
	if err != nil {
		return err
	}
	// A link can resolve differently once later members exist, so check them all again
	return g.verifyLinks(dest)
}

// ErrEscapesDestination is wrapped by extraction errors for archive members whose path
// or symlink target would land outside the destination.
var ErrEscapesDestination = errors.New("archive entry escapes destination")

// destGuard confines the writes of one extraction to dest. Paths are checked against
// the filesystem as it is at the time of each write, so a symlink placed by an
// earlier member cannot carry a later one outside dest.
type destGuard struct {
	dest     string // Destination as given
	resolved string // Destination with symlinks resolved
}

func newDestGuard(dest string) (*destGuard, error) {
	resolved, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}
	return &destGuard{dest: filepath.Clean(dest), resolved: resolved}, nil
}

// path resolves an archive member name under dest. The name must stay inside dest as
// written, and its parent directory must still be inside dest once symlinks on disk
// are followed.
func (g *destGuard) path(name string) (string, error) {
	target := filepath.Join(g.dest, filepath.FromSlash(name))
	if !within(g.dest, target) {
		return "", fmt.Errorf("%w: %s", ErrEscapesDestination, name)
	}
	parent, err := resolveExisting(filepath.Dir(target))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	if !within(g.resolved, parent) {
		return "", fmt.Errorf("%w: %s (through symlink to %s)", ErrEscapesDestination, name, parent)
	}
	return target, nil
}

// link checks that linkname, read from the directory target will live in, resolves
// inside dest.
func (g *destGuard) link(target, linkname string) error {
	if filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return fmt.Errorf("%w: symlink %s -> %s", ErrEscapesDestination, target, linkname)
	}
	parent, err := resolveExisting(filepath.Dir(target))
	if err != nil {
		return err
	}
	resolved, err := resolveLink(parent, linkname)
	if err != nil {
		return err
	}
	if !within(g.resolved, resolved) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrEscapesDestination, target, linkname)
	}
	return nil
}

// verifyLinks rejects, and removes, any symlink under root that resolves outside dest
// now that every member is in place. Targets that do not exist yet are resolved by
// name, so a dangling link cannot point outside either.
func (g *destGuard) verifyLinks(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		linkname, err := os.Readlink(p)
		if err != nil {
			return err
		}
		resolved := linkname
		if !filepath.IsAbs(linkname) && !strings.HasPrefix(linkname, "/") {
			parent, err := filepath.EvalSymlinks(filepath.Dir(p))
			if err != nil {
				return err
			}
			if resolved, err = resolveLink(parent, linkname); err != nil {
				// Loops and similar cannot be written through
				return nil
			}
		}
		if within(g.resolved, resolved) {
			return nil
		}
		if err := os.Remove(p); err != nil {
			logger.Warn("[WARN] Failed to remove symlink %s: %v\n", p, err)
		}
		return fmt.Errorf("%w: symlink %s -> %s", ErrEscapesDestination, p, linkname)
	})
}

// resolveExisting follows symlinks in the deepest existing ancestor of p and appends
// the components that do not exist yet.
func resolveExisting(p string) (string, error) {
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

// resolveLink walks linkname from dir one component at a time, following symlinks as
// it goes, so ".." applies to the resolved location the way the kernel applies it.
func resolveLink(dir, linkname string) (string, error) {
	cur := dir
	for _, part := range strings.Split(filepath.ToSlash(linkname), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}
		cur = filepath.Join(cur, part)
		resolved, err := filepath.EvalSymlinks(cur)
		switch {
		case err == nil:
			cur = resolved
		case !errors.Is(err, fs.ErrNotExist):
			return "", err
		}
	}
	return cur, nil
}

// within reports whether p is root or lies below it.
func within(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	return p == root || strings.HasPrefix(p, root+string(os.PathSeparator))
}

// writeFile streams r into target, creating parents and replacing any existing file.
func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	// Archives built on Windows often carry no permission bits at all
	if mode.Perm() == 0 {
		mode = 0o644
	}
	// Remove first so a read-only or symlinked predecessor does not block the write
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeSymlink recreates a symlink member, refusing targets that resolve outside dest.
func (g *destGuard) writeSymlink(target, linkname string) error {
	if err := g.link(target, linkname); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	return os.Symlink(linkname, target)
}

// extractZip extracts a .zip archive held in memory
func (g *destGuard) extractZip(data []byte) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	for _, f := range r.File {
		target, err := g.path(f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		if f.Mode()&os.ModeSymlink != 0 {
			link, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			if err := g.writeSymlink(target, string(link)); err != nil {
				return err
			}
			continue
		}
		err = writeFile(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return nil
}

// extract7z handles .7z extraction using the sevenzip library
func (g *destGuard) extract7z(data []byte) error {
	r, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}

	for _, f := range r.File {
		target, err := g.path(f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		err = writeFile(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return nil
}

// extractTarArchive handles tar and compressed tar variants
func (g *destGuard) extractTarArchive(kind Kind, data []byte) error {
	var reader io.Reader = bytes.NewReader(data)
	switch kind {
	case KindTarGz:
		gr, err := gzip.NewReader(reader)
		if err != nil {
			return fmt.Errorf("open gzip: %w", err)
		}
		defer gr.Close()
		reader = gr
	case KindTarBz2:
		reader = bzip2.NewReader(reader)
	case KindTarXz:
		xzr, err := xz.NewReader(reader, 0)
		if err != nil {
			return fmt.Errorf("open xz: %w", err)
		}
		reader = xzr
	}

	tr := tar.NewReader(reader)
	// Iterate over each member in the archive
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break // End of archive
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		target, err := g.path(hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("write %s: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := g.writeSymlink(target, hdr.Linkname); err != nil {
				return err
			}
		default:
			logger.Debug("[DEBUG] Skipping tar member %s (type %c)\n", hdr.Name, hdr.Typeflag)
		}
	}
	return nil
}
