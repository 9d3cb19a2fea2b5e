package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ps1dev/internal/catalog"
	"ps1dev/internal/config"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type tarMember struct {
	name     string
	body     string
	linkname string
	dir      bool
}

func tarGzBytes(t *testing.T, members []tarMember) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, m := range members {
		hdr := &tar.Header{Name: m.name, Mode: 0o644, Size: int64(len(m.body)), Typeflag: tar.TypeReg}
		switch {
		case m.dir:
			hdr.Typeflag, hdr.Mode, hdr.Size = tar.TypeDir, 0o755, 0
		case m.linkname != "":
			hdr.Typeflag, hdr.Linkname, hdr.Size = tar.TypeSymlink, m.linkname, 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(m.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

// zipEntries writes members in order, storing symlinks the way Info-ZIP does: Unix
// mode bits plus the link target as the entry body.
func zipEntries(t *testing.T, members []tarMember) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		hdr := &zip.FileHeader{Name: m.name, Method: zip.Deflate}
		body := m.body
		switch {
		case m.dir:
			hdr.SetMode(os.ModeDir | 0o755)
		case m.linkname != "":
			hdr.SetMode(os.ModeSymlink | 0o777)
			body = m.linkname
		default:
			hdr.SetMode(0o644)
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		if !m.dir {
			_, err = w.Write([]byte(body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// chainedEscape is a link that stays inside the destination on paper but resolves
// through an earlier link to two levels above it, followed by a file written through it.
var chainedEscape = []tarMember{
	{name: "d1/", dir: true},
	{name: "d1/d2", linkname: "."},
	{name: "d1/d2/l", linkname: "../.."},
	{name: "d1/d2/l/evil.txt", body: "pwned"},
}

func skipWithoutSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
}

// archiveServer serves fixed payloads by path and 404s everything else.
func archiveServer(t *testing.T, payloads map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestInstaller(t *testing.T, catalogJSON string) *Installer {
	t.Helper()
	cat, err := catalog.Parse([]byte(catalogJSON))
	require.NoError(t, err)
	in := New(config.NewPaths(t.TempDir()), cat)
	in.Platform = "linux"
	in.TempDir = t.TempDir()
	return in
}

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls []call
	fn    func(name string, args []string) error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.fn != nil {
		if err := f.fn(name, args); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		url      string
		override string
		want     Kind
	}{
		{url: "http://x/gcc.zip", want: KindZip},
		{url: "http://x/Emulator.DMG", want: KindDMG},
		{url: "http://x/sdk.tar.gz?token=1", want: KindTarGz},
		{url: "http://x/sdk.tgz", want: KindTarGz},
		{url: "http://x/sdk.tar.xz", want: KindTarXz},
		{url: "http://x/sdk.tar.bz2", want: KindTarBz2},
		{url: "http://x/sdk.tar", want: KindTar},
		{url: "http://x/gdb.7z", want: Kind7z},
		{url: "http://x/download?id=42", want: KindZip},
		{url: "http://x/download?id=42", override: ".7z", want: Kind7z},
		{url: "http://x/archive", override: "tgz", want: KindTarGz},
	}
	for _, tt := range tests {
		got, err := KindFor(tt.url, tt.override)
		require.NoError(t, err, tt.url)
		require.Equal(t, tt.want, got, tt.url)
	}

	_, err := KindFor("http://x/a.zip", "rar")
	require.Error(t, err)
}

func TestExtractZipRejectsEscapingEntries(t *testing.T) {
	dest := t.TempDir()
	data := zipBytes(t, map[string]string{"../evil.txt": "x"})

	err := ExtractArchive(KindZip, data, dest)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt"))
	require.True(t, os.IsNotExist(statErr))
}

func TestExtractZipOverwrites(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "bin", "gcc"), []byte("old"), 0o444))

	require.NoError(t, ExtractArchive(KindZip, zipBytes(t, map[string]string{"bin/gcc": "new"}), dest))

	data, err := os.ReadFile(filepath.Join(dest, "bin", "gcc"))
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}

func TestExtractTarGz(t *testing.T) {
	skipWithoutSymlinks(t)
	dest := t.TempDir()
	data := tarGzBytes(t, []tarMember{
		{name: "lib/", dir: true},
		{name: "lib/libpsn00b.a", body: "archive"},
		{name: "lib/current.a", linkname: "libpsn00b.a"},
	})

	require.NoError(t, ExtractArchive(KindTarGz, data, dest))

	body, err := os.ReadFile(filepath.Join(dest, "lib", "current.a"))
	require.NoError(t, err)
	require.Equal(t, "archive", string(body))
}

func TestExtractTarRejectsEscapingSymlink(t *testing.T) {
	data := tarGzBytes(t, []tarMember{{name: "passwd", linkname: "../../etc/passwd"}})
	require.Error(t, ExtractArchive(KindTarGz, data, t.TempDir()))
}

func TestExtractRejectsChainedSymlinkEscape(t *testing.T) {
	skipWithoutSymlinks(t)
	archives := map[Kind][]byte{
		KindTarGz: tarGzBytes(t, chainedEscape),
		KindZip:   zipEntries(t, chainedEscape),
	}
	for kind, data := range archives {
		t.Run(string(kind), func(t *testing.T) {
			base := t.TempDir()
			dest := filepath.Join(base, "a", "dest")

			err := ExtractArchive(kind, data, dest)
			require.ErrorIs(t, err, ErrEscapesDestination)
			require.NoFileExists(t, filepath.Join(base, "evil.txt"))
			require.NoFileExists(t, filepath.Join(base, "a", "evil.txt"))
		})
	}
}

func TestExtractRejectsLinkThatEscapesOnceLaterMembersLand(t *testing.T) {
	skipWithoutSymlinks(t)
	dest := t.TempDir()
	data := tarGzBytes(t, []tarMember{
		{name: "l", linkname: "a/b/../.."},
		{name: "a", linkname: "."},
		{name: "b/", dir: true},
	})

	err := ExtractArchive(KindTarGz, data, dest)
	require.ErrorIs(t, err, ErrEscapesDestination)
	_, statErr := os.Lstat(filepath.Join(dest, "l"))
	require.True(t, os.IsNotExist(statErr), "escaping link is removed")
}

func TestExtractRejectsWriteThroughLaterEscape(t *testing.T) {
	skipWithoutSymlinks(t)
	base := t.TempDir()
	dest := filepath.Join(base, "dest")
	data := tarGzBytes(t, []tarMember{
		{name: "l", linkname: "a/b/../.."},
		{name: "a", linkname: "."},
		{name: "b/", dir: true},
		{name: "l/evil.txt", body: "pwned"},
	})

	require.ErrorIs(t, ExtractArchive(KindTarGz, data, dest), ErrEscapesDestination)
	require.NoFileExists(t, filepath.Join(base, "evil.txt"))
}

func TestExtractZipSymlink(t *testing.T) {
	skipWithoutSymlinks(t)
	dest := t.TempDir()
	data := zipEntries(t, []tarMember{
		{name: "lib/", dir: true},
		{name: "lib/libpsn00b.a", body: "archive"},
		{name: "lib/current.a", linkname: "libpsn00b.a"},
	})

	require.NoError(t, ExtractArchive(KindZip, data, dest))

	info, err := os.Lstat(filepath.Join(dest, "lib", "current.a"))
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&os.ModeSymlink)
	body, err := os.ReadFile(filepath.Join(dest, "lib", "current.a"))
	require.NoError(t, err)
	require.Equal(t, "archive", string(body))
}

func TestExtractArchiveFixtures(t *testing.T) {
	tests := []struct {
		file string
		kind Kind
	}{
		{file: "sdk.7z", kind: Kind7z},
		{file: "sdk.tar", kind: KindTar},
		{file: "sdk.tar.bz2", kind: KindTarBz2},
		{file: "sdk.tar.xz", kind: KindTarXz},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join("testdata", tt.file))
			require.NoError(t, err)
			kind, err := KindFor("http://x/"+tt.file, "")
			require.NoError(t, err)
			require.Equal(t, tt.kind, kind)

			dest := t.TempDir()
			require.NoError(t, ExtractArchive(kind, data, dest))

			elf2x, err := os.ReadFile(filepath.Join(dest, "bin", "elf2x"))
			require.NoError(t, err)
			require.Equal(t, "elf2x\n", string(elf2x))
			header, err := os.ReadFile(filepath.Join(dest, "include", "psx.h"))
			require.NoError(t, err)
			require.Equal(t, "#define PSX 1\n", string(header))
		})
	}
}

func TestInstallSevenZip(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "sdk.7z"))
	require.NoError(t, err)
	srv := archiveServer(t, map[string][]byte{"/sdk.7z": data})
	in := newTestInstaller(t, `{"psn00b_sdk": {"url": "`+srv.URL+`/sdk.7z", "extractPath": "tools/psn00b_sdk", "checkFile": "bin/elf2x"}}`)

	res, err := in.Install(context.Background(), "psn00b_sdk")
	require.NoError(t, err)
	require.FileExists(t, res.CheckFile)
}

func TestInstallReportsEscapeAsExtractionError(t *testing.T) {
	skipWithoutSymlinks(t)
	srv := archiveServer(t, map[string][]byte{"/gcc.tar.gz": tarGzBytes(t, chainedEscape)})
	in := newTestInstaller(t, `{"gcc": {"url": "`+srv.URL+`/gcc.tar.gz", "extractPath": "tools/gcc", "checkFile": "bin/gcc"}}`)

	_, err := in.Install(context.Background(), "gcc")
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.ErrorIs(t, err, ErrEscapesDestination)
	require.NoFileExists(t, filepath.Join(in.Paths.Root, "tools", "evil.txt"))
}

func TestInstallPlainZip(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/gcc.zip": zipBytes(t, map[string]string{"bin/gcc": "#!/bin/sh\n", "share/doc.txt": "doc"}),
	})
	in := newTestInstaller(t, `{"gcc": {"url": "`+srv.URL+`/gcc.zip", "extractPath": "tools/gcc", "checkFile": "bin/gcc"}}`)

	require.True(t, in.FetchAndInstall(context.Background(), "gcc"))

	gcc := filepath.Join(in.Paths.Root, "tools", "gcc", "bin", "gcc")
	info, err := os.Stat(gcc)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o111), info.Mode().Perm()&0o111)
		doc, err := os.Stat(filepath.Join(in.Paths.Root, "tools", "gcc", "share", "doc.txt"))
		require.NoError(t, err)
		require.NotZero(t, doc.Mode().Perm()&0o100, "every extracted file is made executable")
	}
}

func TestInstallMissingCheckFile(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/gcc.zip": zipBytes(t, map[string]string{"bin/cc1": "x"}),
	})
	in := newTestInstaller(t, `{"gcc": {"url": "`+srv.URL+`/gcc.zip", "extractPath": "tools/gcc", "checkFile": "bin/gcc"}}`)

	_, err := in.Install(context.Background(), "gcc")
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.True(t, errors.Is(err, ErrCheckFileMissing))
	require.Equal(t, filepath.Join(in.Paths.Root, "tools", "gcc", "bin", "gcc"), extractErr.Path)

	require.False(t, in.FetchAndInstall(context.Background(), "gcc"))
}

func TestInstallDownloadFailure(t *testing.T) {
	srv := archiveServer(t, nil)
	in := newTestInstaller(t, `{"gcc": {"url": "`+srv.URL+`/gone.zip", "extractPath": "tools/gcc", "checkFile": "bin/gcc"}}`)

	_, err := in.Install(context.Background(), "gcc")
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	require.Equal(t, http.StatusNotFound, dlErr.Status)
}

func TestInstallUnknownTool(t *testing.T) {
	in := newTestInstaller(t, `{"gcc": {"url": "http://x/gcc.zip", "extractPath": "tools/gcc", "checkFile": "bin/gcc"}}`)

	_, err := in.Install(context.Background(), "emulator")
	var notFound *catalog.ToolNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.False(t, in.FetchAndInstall(context.Background(), "emulator"))
}

func TestInstallRejectsExtractPathOutsideRoot(t *testing.T) {
	in := newTestInstaller(t, `{"gcc": {"url": "http://x/gcc.zip", "extractPath": "../elsewhere", "checkFile": "bin/gcc"}}`)

	_, err := in.Install(context.Background(), "gcc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "extractPath")
}

func TestInstallFlattensSDKFolder(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/sdk.zip": zipBytes(t, map[string]string{
			"README.txt":                   "readme",
			"PSn00bSDK-0.24/bin/elf2x":     "elf2x",
			"PSn00bSDK-0.24/lib/libc.a":    "libc",
			"PSn00bSDK-0.24/include/psx.h": "header",
		}),
	})
	in := newTestInstaller(t, `{"psn00b_sdk": {"url": "`+srv.URL+`/sdk.zip", "extractPath": "tools/psn00b_sdk", "checkFile": "bin/elf2x", "flatten": true}}`)

	sdkDir := filepath.Join(in.Paths.Root, "tools", "psn00b_sdk")
	require.NoError(t, os.MkdirAll(sdkDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sdkDir, "stale.txt"), []byte("old"), 0o644))

	res, err := in.Install(context.Background(), "psn00b_sdk")
	require.NoError(t, err)
	require.Equal(t, sdkDir, res.ExtractDir)

	require.FileExists(t, filepath.Join(sdkDir, "bin", "elf2x"))
	require.FileExists(t, filepath.Join(sdkDir, "include", "psx.h"))
	require.NoFileExists(t, filepath.Join(sdkDir, "stale.txt"))
	require.NoFileExists(t, filepath.Join(sdkDir, "README.txt"))

	leftovers, err := os.ReadDir(in.TempDir)
	require.NoError(t, err)
	require.Empty(t, leftovers, "scratch directory is removed")
}

func TestInstallFlattenWithoutSDKFolderCopiesEverything(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{
		"/sdk.zip": zipBytes(t, map[string]string{"bin/elf2x": "elf2x", "tools/mkpsxiso": "iso"}),
	})
	in := newTestInstaller(t, `{"psn00b_sdk": {"url": "`+srv.URL+`/sdk.zip", "extractPath": "tools/psn00b_sdk", "checkFile": "bin/elf2x", "flatten": true}}`)

	_, err := in.Install(context.Background(), "psn00b_sdk")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(in.Paths.Root, "tools", "psn00b_sdk", "tools", "mkpsxiso"))
}

func TestInstallFlattenRejectsLinkOutOfSDKFolder(t *testing.T) {
	skipWithoutSymlinks(t)
	srv := archiveServer(t, map[string][]byte{
		"/sdk.zip": zipEntries(t, []tarMember{
			{name: "README.txt", body: "readme"},
			{name: "PSn00bSDK-0.24/bin/elf2x", body: "elf2x"},
			{name: "PSn00bSDK-0.24/bin/readme", linkname: "../../README.txt"},
		}),
	})
	in := newTestInstaller(t, `{"psn00b_sdk": {"url": "`+srv.URL+`/sdk.zip", "extractPath": "tools/psn00b_sdk", "checkFile": "bin/elf2x", "flatten": true}}`)

	_, err := in.Install(context.Background(), "psn00b_sdk")
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.ErrorIs(t, err, ErrEscapesDestination)
	_, statErr := os.Lstat(filepath.Join(in.Paths.Root, "tools", "psn00b_sdk", "bin", "readme"))
	require.True(t, os.IsNotExist(statErr))
}

func TestFindSDKFolderPicksFirstByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"docs", "zz-sdk", "PSn00bSDK"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sdk-notes.txt"), nil, 0o644))

	name, ok := findSDKFolder(dir)
	require.True(t, ok)
	require.Equal(t, "PSn00bSDK", name)
}

func TestInstallDiskImage(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{"/emu.dmg": []byte("not really a disk image")})
	in := newTestInstaller(t, `{"emulator": {"url": "`+srv.URL+`/emu.dmg", "extractPath": "tools/emulator", "checkFile": "Emu.app/Contents/MacOS/Emu"}}`)

	runner := &fakeRunner{fn: func(name string, args []string) error {
		if name != "cp" {
			return nil
		}
		// Stand in for the mounted volume's contents landing in the extract dir
		dst := strings.TrimSuffix(args[len(args)-1], string(os.PathSeparator))
		app := filepath.Join(dst, "Emu.app", "Contents", "MacOS")
		if err := os.MkdirAll(app, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(app, "Emu"), []byte("bin"), 0o644)
	}}
	in.Runner = runner

	_, err := in.Install(context.Background(), "emulator")
	require.NoError(t, err)

	require.Len(t, runner.calls, 3)
	require.Equal(t, "hdiutil", runner.calls[0].name)
	require.Equal(t, "attach", runner.calls[0].args[0])
	require.Equal(t, "cp", runner.calls[1].name)
	require.Equal(t, "hdiutil", runner.calls[2].name)
	require.Equal(t, "detach", runner.calls[2].args[0])

	// The temporary image file is gone once the install finishes
	require.NoFileExists(t, runner.calls[0].args[1])
}

func TestInstallDiskImageAttachFailure(t *testing.T) {
	srv := archiveServer(t, map[string][]byte{"/emu.dmg": []byte("image")})
	in := newTestInstaller(t, `{"emulator": {"url": "`+srv.URL+`/emu.dmg", "extractPath": "tools/emulator", "checkFile": "Emu"}}`)

	runner := &fakeRunner{fn: func(name string, args []string) error {
		return &ExternalProcessError{Command: name + " " + strings.Join(args, " "), ExitCode: 1}
	}}
	in.Runner = runner

	_, err := in.Install(context.Background(), "emulator")
	var procErr *ExternalProcessError
	require.ErrorAs(t, err, &procErr)
	require.Equal(t, 1, procErr.ExitCode)
	require.Len(t, runner.calls, 1, "copy and detach are skipped after a failed attach")
}

func TestMakeExecutableAndFixPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits are not meaningful on windows")
	}
	tools := t.TempDir()
	gccBin := filepath.Join(tools, "gcc", "bin")
	require.NoError(t, os.MkdirAll(gccBin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gccBin, "gcc"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gccBin, "as"), []byte("x"), 0o755))

	n, err := FixPermissions(tools)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	info, err := os.Stat(filepath.Join(gccBin, "gcc"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	n, err = FixPermissions(filepath.Join(tools, "missing"))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDirPopulated(t *testing.T) {
	dir := t.TempDir()
	require.False(t, DirPopulated(filepath.Join(dir, "missing")))
	require.False(t, DirPopulated(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), nil, 0o644))
	require.True(t, DirPopulated(dir))
}
