package environment

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"ps1dev/internal/logger"
)

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(question string, defaultYes bool) (bool, error)
}

// ConsolePrompter reads answers from In. When the input is not a terminal it does
// not wait for an answer and returns false unless AssumeYes is set.
type ConsolePrompter struct {
	In          io.Reader
	Out         io.Writer
	AssumeYes   bool
	Interactive bool
}

// NewConsolePrompter prompts on stdin/stdout.
func NewConsolePrompter(assumeYes bool) *ConsolePrompter {
	fd := os.Stdin.Fd()
	return &ConsolePrompter{
		In:          os.Stdin,
		Out:         os.Stdout,
		AssumeYes:   assumeYes,
		Interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// Confirm prints question with a [Y/n] or [y/N] hint and reads one line. An empty
// answer takes the default.
func (p *ConsolePrompter) Confirm(question string, defaultYes bool) (bool, error) {
	if p.AssumeYes {
		logger.Debug("[DEBUG] Assuming yes: %s\n", question)
		return true, nil
	}
	if !p.Interactive {
		logger.Warn("[WARN] %s (no terminal attached, answering no; pass --yes to accept)\n", question)
		return false, nil
	}

	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	fmt.Fprintf(p.Out, "%s %s ", question, hint)

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
