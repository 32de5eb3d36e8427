// Package hooks installs deckhand's agent integration into a worktree:
// lifecycle hooks in .claude/settings.json and slash commands under
// .claude/commands. The hooks shell out to "deckhand run-hook", which is
// how the agent reports progress back to the daemon.
package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/deckhand-dev/deckhand/internal/events"
)

// Hook is one hook command entry in the agent settings file.
type Hook struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// HookEntry groups the hooks run for one event.
type HookEntry struct {
	Hooks []Hook `json:"hooks"`
}

// GenerateSettings returns the hooks section of the agent settings file,
// one run-hook invocation per lifecycle event.
func GenerateSettings() map[string][]HookEntry {
	settings := make(map[string][]HookEntry, len(events.All()))
	for _, event := range events.All() {
		settings[string(event)] = []HookEntry{
			{
				Hooks: []Hook{
					{Type: "command", Command: "deckhand run-hook " + string(event)},
				},
			},
		}
	}
	return settings
}

// SettingsJSON renders the hooks section as a standalone settings
// document, for inspection via "deckhand hooks generate".
func SettingsJSON() (string, error) {
	doc := map[string]any{"hooks": GenerateSettings()}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize hooks settings: %w", err)
	}
	return string(out), nil
}

// Install writes the hooks into dir/.claude/settings.json, preserving
// any unrelated settings already in the file, and installs the slash
// commands next to them. The hooks key is replaced outright so upgrades
// never leave stale events behind.
func Install(dir string) error {
	claudeDir := filepath.Join(dir, ".claude")
	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", claudeDir, err)
	}

	settingsFile := filepath.Join(claudeDir, "settings.json")
	settings := map[string]any{}
	if raw, err := os.ReadFile(settingsFile); err == nil {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return fmt.Errorf("failed to parse %s: %w", settingsFile, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", settingsFile, err)
	}

	settings["hooks"] = GenerateSettings()

	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}
	if err := os.WriteFile(settingsFile, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", settingsFile, err)
	}

	return InstallCommands(dir)
}

// ExtractJobNumber recovers the job number from a path inside a worktree.
// Worktree directories are named "{number}-{slug}_{username}_{suffix}";
// the older "issue-{number}" form is still recognized so hooks keep
// working in worktrees provisioned before the rename.
func ExtractJobNumber(path string) (int64, bool) {
	for _, component := range strings.Split(path, "/") {
		if rest, ok := strings.CutPrefix(component, "issue-"); ok {
			if n, err := strconv.ParseInt(rest, 10, 64); err == nil && n > 0 {
				return n, true
			}
		}

		if i := strings.IndexByte(component, '-'); i > 0 {
			if n, err := strconv.ParseInt(component[:i], 10, 64); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}
