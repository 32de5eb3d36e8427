package hooks

import (
	"fmt"
	"os"
	"path/filepath"
)

// shipitCommand is the content of the /deckhand-shipit slash command.
const shipitCommand = `# Ship It

Create a pull request for the current work and mark the job as completed.

## Steps
1. Stage and commit any uncommitted changes with a descriptive message
2. Push the current branch to origin
3. Create a pull request using ` + "`gh pr create`" + `:
   - Title: Use the issue title or branch name
   - Body: Reference the issue number (Closes #XXX)
4. Run: ` + "`deckhand transition <issue-number> completed`" + `
5. Report the PR URL to the user

## Context
- Working directory: Current worktree (directory name starts with the issue number)
- Branch: Already created by deckhand
- Issue number: Extract from current directory path

## Important
- If there are no changes to commit, skip step 1
- If a PR already exists for this branch, report the existing PR instead of creating a new one
- Always transition to completed after the PR is created/found
`

// abandonCommand is the content of the /deckhand-abandon slash command.
const abandonCommand = `# Abandon Job

Give up on the current job and hand it back.

## Steps
1. Extract the issue number from the current directory path (the directory name starts with it)
2. Remove all deckhand labels from the issue:
   ` + "```bash" + `
   deckhand transition <issue-number> none
   ` + "```" + `
   (Note: "none" strips every deckhand lifecycle label)
3. Optionally: Ask the user if they want to delete the worktree and close the tmux window
4. Report that the issue is no longer managed by deckhand

## Context
- The issue stays open on GitHub, just without deckhand labels
- Re-adding the entry label restarts work later
- Worktree cleanup is optional so partial work is not lost
`

// statusCommand is the content of the /deckhand-status slash command.
const statusCommand = `# Deckhand Status

Show the current deckhand state for this job.

## Steps
1. Extract the issue number from the current directory path
2. Run: ` + "`deckhand status <issue-number>`" + `
3. Display the output to the user

## Output Format
The command shows:
- Issue number and title
- Current state (entry/provisioning/awaiting-input/active/completed/released, or "untracked")
- GitHub issue URL
`

// CommandFile returns the content of a named slash command, or false for
// a name deckhand does not ship.
func CommandFile(name string) (string, bool) {
	switch name {
	case "deckhand-shipit":
		return shipitCommand, true
	case "deckhand-abandon":
		return abandonCommand, true
	case "deckhand-status":
		return statusCommand, true
	default:
		return "", false
	}
}

// CommandNames lists the slash commands deckhand installs.
func CommandNames() []string {
	return []string{"deckhand-shipit", "deckhand-abandon", "deckhand-status"}
}

// InstallCommands writes every slash command into dir/.claude/commands.
func InstallCommands(dir string) error {
	commandsDir := filepath.Join(dir, ".claude", "commands")
	if err := os.MkdirAll(commandsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", commandsDir, err)
	}

	for _, name := range CommandNames() {
		content, ok := CommandFile(name)
		if !ok {
			return fmt.Errorf("unknown command: %s", name)
		}
		file := filepath.Join(commandsDir, name+".md")
		if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", file, err)
		}
	}
	return nil
}
