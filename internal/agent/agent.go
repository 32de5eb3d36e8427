// Package agent starts the coding agent inside a job's window and checks
// on it afterwards. The agent runs as a child of the window's shell, not
// of the daemon, so it survives daemon restarts.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/deckhand-dev/deckhand/internal/logging"
)

// PromptFile is the name of the rendered prompt inside a job's daemon
// directory.
const PromptFile = "prompt.md"

// Terminal is the window surface the launcher drives. *tmux.Manager
// implements it.
type Terminal interface {
	SendKeys(ctx context.Context, job int64, keys string) error
	PaneCommand(ctx context.Context, job int64) (string, error)
}

// Launcher delivers rendered prompts into job windows and starts the
// agent process there.
type Launcher struct {
	command string
	args    []string
	term    Terminal
	logger  *logging.Logger
}

// New creates a Launcher that starts command with args.
func New(command string, args []string, term Terminal, logger *logging.Logger) *Launcher {
	return &Launcher{
		command: command,
		args:    args,
		term:    term,
		logger:  logger,
	}
}

// Launch writes the prompt to a file under dir and starts the agent in
// the job's window reading it from stdin. Going through a file keeps the
// prompt out of shell quoting entirely.
func (l *Launcher) Launch(ctx context.Context, job int64, prompt, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create prompt directory %s: %w", dir, err)
	}
	promptFile := filepath.Join(dir, PromptFile)
	if err := os.WriteFile(promptFile, []byte(prompt), 0o644); err != nil {
		return fmt.Errorf("failed to write prompt file %s: %w", promptFile, err)
	}

	line := l.commandLine(promptFile)
	l.logger.Info("starting agent",
		zap.Int64("job", job),
		zap.String("command", line))
	return l.term.SendKeys(ctx, job, line)
}

// commandLine builds the shell line that starts the agent with the prompt
// file on stdin.
func (l *Launcher) commandLine(promptFile string) string {
	parts := make([]string, 0, len(l.args)+3)
	parts = append(parts, l.command)
	parts = append(parts, l.args...)
	parts = append(parts, "<", promptFile)
	return strings.Join(parts, " ")
}

// IsRunning reports whether the agent is what the job's window is
// currently running. A missing window counts as not running.
func (l *Launcher) IsRunning(ctx context.Context, job int64) (bool, error) {
	current, err := l.term.PaneCommand(ctx, job)
	if err != nil {
		return false, err
	}
	return matchesCommand(current, l.command), nil
}

// matchesCommand reports whether the pane command looks like the agent
// binary. tmux reports the executable name only, so the configured
// command is reduced to its base name before comparing.
func matchesCommand(current, command string) bool {
	if current == "" {
		return false
	}
	return strings.Contains(strings.ToLower(current), strings.ToLower(filepath.Base(command)))
}
