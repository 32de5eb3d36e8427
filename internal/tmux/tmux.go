// Package tmux manages the terminal session and per-job windows through
// the tmux CLI. Window names double as job metadata: a window is created
// as "issue-{N}-{slug}" and later renamed to "issue-{N}-{state}", so
// existence checks match on the "issue-{N}" prefix rather than the full
// name.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// EnvVar is a session-scoped environment variable applied on every
// EnsureSession call.
type EnvVar struct {
	Name  string
	Value string
}

// Manager runs tmux commands against one named session.
type Manager struct {
	// tmuxPath is the path to the tmux executable
	tmuxPath    string
	sessionName string
	env         []EnvVar
}

// NewManager creates a new Manager for the named session.
// It verifies that tmux is available on the system.
func NewManager(ctx context.Context, sessionName string) (*Manager, error) {
	tmuxPath, err := exec.LookPath("tmux")
	if err != nil {
		return nil, fmt.Errorf("tmux not found in PATH: %w", err)
	}

	// Verify tmux works
	cmd := exec.CommandContext(ctx, tmuxPath, "-V")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tmux command failed: %w", err)
	}

	return &Manager{tmuxPath: tmuxPath, sessionName: sessionName}, nil
}

// WithEnv registers an environment variable to apply to the session.
func (m *Manager) WithEnv(name, value string) *Manager {
	m.env = append(m.env, EnvVar{Name: name, Value: value})
	return m
}

// SessionName returns the name of the managed session.
func (m *Manager) SessionName() string {
	return m.sessionName
}

// Path returns the resolved tmux executable path.
func (m *Manager) Path() string {
	return m.tmuxPath
}

// EnsureSession creates the session if it does not exist, then applies
// the registered environment variables. Variables are re-applied even
// when the session already exists; a long-lived session would otherwise
// keep a stale token after the config changes.
func (m *Manager) EnsureSession(ctx context.Context) error {
	check := exec.CommandContext(ctx, m.tmuxPath, "has-session", "-t", m.sessionName)
	if err := check.Run(); err != nil {
		create := exec.CommandContext(ctx, m.tmuxPath, "new-session", "-d", "-s", m.sessionName)
		if out, err := create.CombinedOutput(); err != nil {
			return fmt.Errorf("tmux new-session %s failed: %s: %w", m.sessionName, strings.TrimSpace(string(out)), err)
		}
	}

	for _, v := range m.env {
		cmd := exec.CommandContext(ctx, m.tmuxPath, "set-environment", "-t", m.sessionName, v.Name, v.Value)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("tmux set-environment %s failed: %s: %w", v.Name, strings.TrimSpace(string(out)), err)
		}
	}
	return nil
}

// Window is one entry from tmux list-windows.
type Window struct {
	Index int
	Name  string
}

// WindowName builds the initial window name for a job. The slug is
// cosmetic; prefix matching ignores it.
func WindowName(job int64, slug string) string {
	if slug == "" {
		return fmt.Sprintf("issue-%d", job)
	}
	return fmt.Sprintf("issue-%d-%s", job, slug)
}

// matchesJob reports whether a window name belongs to the job, allowing
// any suffix after the number. "issue-4" must not match "issue-42-fix".
func matchesJob(name string, job int64) bool {
	prefix := fmt.Sprintf("issue-%d", job)
	return name == prefix || strings.HasPrefix(name, prefix+"-")
}

// JobNumber extracts the job number from a window name, if the name
// follows the issue-window convention.
func JobNumber(name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, "issue-")
	if !ok {
		return 0, false
	}
	digits := rest
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		digits = rest[:i]
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListWindows returns index and name of every window in the session.
// A missing session is an empty list, not an error.
func (m *Manager) ListWindows(ctx context.Context) ([]Window, error) {
	cmd := exec.CommandContext(ctx, m.tmuxPath, "list-windows", "-t", m.sessionName,
		"-F", "#{window_index} #{window_name}")
	output, err := cmd.Output()
	if err != nil {
		// Session does not exist yet.
		return nil, nil
	}
	return parseWindows(string(output)), nil
}

func parseWindows(output string) []Window {
	var windows []Window
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idxStr, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		windows = append(windows, Window{Index: idx, Name: name})
	}
	return windows
}

// nextIndex returns the first window slot past every existing window.
func nextIndex(windows []Window) int {
	next := 0
	for _, w := range windows {
		if w.Index >= next {
			next = w.Index + 1
		}
	}
	return next
}

// findWindow returns the job's window, or nil if it has none.
func (m *Manager) findWindow(ctx context.Context, job int64) (*Window, error) {
	windows, err := m.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	for i := range windows {
		if matchesJob(windows[i].Name, job) {
			return &windows[i], nil
		}
	}
	return nil, nil
}

// WindowExists reports whether the job already has a window, matching on
// the issue-number prefix so renames do not hide it.
func (m *Manager) WindowExists(ctx context.Context, job int64) (bool, error) {
	w, err := m.findWindow(ctx, job)
	if err != nil {
		return false, err
	}
	return w != nil, nil
}

// CreateWindow creates the job's window at the next free index with the
// working directory set. Creating an existing window is a no-op. When a
// concurrent creation takes the chosen index first, existence is
// re-checked instead of failing.
func (m *Manager) CreateWindow(ctx context.Context, job int64, slug, workingDir string) error {
	if err := m.EnsureSession(ctx); err != nil {
		return err
	}

	windows, err := m.ListWindows(ctx)
	if err != nil {
		return err
	}
	for _, w := range windows {
		if matchesJob(w.Name, job) {
			return nil
		}
	}

	name := WindowName(job, slug)
	target := fmt.Sprintf("%s:%d", m.sessionName, nextIndex(windows))
	cmd := exec.CommandContext(ctx, m.tmuxPath, "new-window", "-t", target, "-n", name, "-c", workingDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "in use") {
			exists, checkErr := m.WindowExists(ctx, job)
			if checkErr == nil && exists {
				return nil
			}
		}
		return fmt.Errorf("tmux new-window %s failed: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// RenameWindow renames the job's window to "issue-{N}-{suffix}". The
// window is resolved by prefix and targeted by index, so the current
// suffix does not matter.
func (m *Manager) RenameWindow(ctx context.Context, job int64, suffix string) error {
	w, err := m.findWindow(ctx, job)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("no window for issue #%d in session %s", job, m.sessionName)
	}
	target := fmt.Sprintf("%s:%d", m.sessionName, w.Index)
	newName := fmt.Sprintf("issue-%d-%s", job, suffix)
	cmd := exec.CommandContext(ctx, m.tmuxPath, "rename-window", "-t", target, newName)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux rename-window to %s failed: %s: %w", newName, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// SendKeys types keys into the job's window followed by Enter.
func (m *Manager) SendKeys(ctx context.Context, job int64, keys string) error {
	w, err := m.findWindow(ctx, job)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("no window for issue #%d in session %s", job, m.sessionName)
	}
	target := fmt.Sprintf("%s:%d", m.sessionName, w.Index)
	cmd := exec.CommandContext(ctx, m.tmuxPath, "send-keys", "-t", target, keys, "Enter")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tmux send-keys to issue #%d failed: %s: %w", job, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// PaneCommand returns the command currently running in the job window's
// pane, or "" when the job has no window.
func (m *Manager) PaneCommand(ctx context.Context, job int64) (string, error) {
	w, err := m.findWindow(ctx, job)
	if err != nil {
		return "", err
	}
	if w == nil {
		return "", nil
	}
	target := fmt.Sprintf("%s:%d", m.sessionName, w.Index)
	cmd := exec.CommandContext(ctx, m.tmuxPath, "list-panes", "-t", target, "-F", "#{pane_current_command}")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tmux list-panes for issue #%d failed: %w", job, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// SelectPane focuses the job's window and its active pane so a following
// attach lands on the job.
func (m *Manager) SelectPane(ctx context.Context, job int64) error {
	w, err := m.findWindow(ctx, job)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("no window for issue #%d in session %s", job, m.sessionName)
	}
	target := fmt.Sprintf("%s:%d", m.sessionName, w.Index)
	if out, err := exec.CommandContext(ctx, m.tmuxPath, "select-window", "-t", target).CombinedOutput(); err != nil {
		return fmt.Errorf("tmux select-window for issue #%d failed: %s: %w", job, strings.TrimSpace(string(out)), err)
	}
	if out, err := exec.CommandContext(ctx, m.tmuxPath, "select-pane", "-t", target).CombinedOutput(); err != nil {
		return fmt.Errorf("tmux select-pane for issue #%d failed: %s: %w", job, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// AttachCommand returns the executable path and argv for replacing the
// current process with a tmux attach. A nonzero job first focuses that
// job's window.
func (m *Manager) AttachCommand(ctx context.Context, job int64) (string, []string, error) {
	if job > 0 {
		if err := m.SelectPane(ctx, job); err != nil {
			return "", nil, err
		}
	}
	return m.tmuxPath, []string{"tmux", "attach", "-t", m.sessionName}, nil
}
