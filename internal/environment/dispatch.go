package environment

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"ps1dev/internal/installer"
	"ps1dev/internal/logger"
)

const pathEnv = "PATH"

// Invocation is one make run inside a project directory.
type Invocation struct {
	Dir  string   // Working directory
	Name string   // Program, normally "make"
	Args []string // Arguments, e.g. ["run"]
	Env  []string // Full environment, PATH already prefixed
}

// String renders the invocation as a command line for messages.
func (inv Invocation) String() string {
	return strings.TrimSpace(inv.Name + " " + strings.Join(inv.Args, " "))
}

// Dispatcher runs an Invocation to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv Invocation) error
}

// ExecDispatcher runs invocations as child processes attached to the given streams,
// so build output reaches the terminal as it is produced.
type ExecDispatcher struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecDispatcher attaches child processes to this process's standard streams.
func NewExecDispatcher() *ExecDispatcher {
	return &ExecDispatcher{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Dispatch starts inv and waits for it. A non-zero exit is returned as
// *installer.ExternalProcessError.
func (d *ExecDispatcher) Dispatch(ctx context.Context, inv Invocation) error {
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdin = d.Stdin
	cmd.Stdout = d.Stdout
	cmd.Stderr = d.Stderr

	logger.Debug("[DEBUG] Running %s in %s\n", inv, inv.Dir)
	if err := cmd.Run(); err != nil {
		return installer.ProcessError(inv.String(), nil, err)
	}
	return nil
}

// prefixPATH returns env with dirs placed at the front of PATH, dropping later
// duplicates.
func prefixPATH(env []string, dirs ...string) []string {
	sep := string(os.PathListSeparator)
	merged := mergePATH(strings.Join(dirs, sep), envVarValue(env, pathEnv))
	return setEnvValue(env, pathEnv, merged)
}

func envVarValue(env []string, key string) string {
	var value string
	for _, entry := range env {
		if hasEnvKey(entry, key) {
			value = entry[len(key)+1:]
		}
	}
	return value
}

func setEnvValue(env []string, key, value string) []string {
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if hasEnvKey(entry, key) {
			continue
		}
		out = append(out, entry)
	}
	return append(out, key+"="+value)
}

// hasEnvKey reports whether entry assigns key. Windows variable names are
// case-insensitive, so Path and PATH are the same variable there.
func hasEnvKey(entry, key string) bool {
	if len(entry) <= len(key) || entry[len(key)] != '=' {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.EqualFold(entry[:len(key)], key)
	}
	return entry[:len(key)] == key
}

func mergePATH(primary, fallback string) string {
	separator := string(os.PathListSeparator)
	seen := map[string]struct{}{}
	out := make([]string, 0, 8)

	appendPath := func(path string) {
		for _, entry := range strings.Split(path, separator) {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if _, exists := seen[entry]; exists {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}
	appendPath(primary)
	appendPath(fallback)
	return strings.Join(out, separator)
}

// ShellCommand renders the equivalent one-line shell command for goos: PowerShell
// syntax on Windows, POSIX sh elsewhere. It is printed for users who want to run the
// build in their own terminal.
func ShellCommand(goos, projectDir, gccBin, sdkBin string, args ...string) string {
	makeCmd := strings.TrimSpace("make " + strings.Join(args, " "))
	if goos == "windows" {
		return fmt.Sprintf(`cd "%s"; $env:PATH = "%s;%s;$env:PATH"; %s`, projectDir, gccBin, sdkBin, makeCmd)
	}
	return fmt.Sprintf(`cd "%s" && PATH="%s:%s:$PATH" %s`, projectDir, gccBin, sdkBin, makeCmd)
}
