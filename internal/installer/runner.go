package installer

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"ps1dev/internal/logger"
)

// Runner spawns an external command and returns its combined output.
// Tests substitute a fake; production code uses ExecRunner.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args, waiting for it to finish. A non-zero exit or a
// failure to start is returned as *ExternalProcessError carrying the output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	logger.Debug("[DEBUG] Running command: %s\n", strings.Join(cmd.Args, " "))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, ProcessError(strings.Join(cmd.Args, " "), output, err)
	}
	return output, nil
}

// ProcessError wraps err from a finished or failed command as *ExternalProcessError.
func ProcessError(command string, output []byte, err error) error {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ExternalProcessError{
		Command:  command,
		ExitCode: code,
		Output:   strings.TrimSpace(string(output)),
		Err:      err,
	}
}
