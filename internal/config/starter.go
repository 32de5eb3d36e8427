package config

// starter is the commented template written by `deckhand config init`.
// Kept in sync with DefaultConfig by TestStarterMatchesDefaults.
const starter = `# deckhand configuration
# Watches GitHub issues and provisions a worktree + tmux window per job.

github:
  owner: ""            # GitHub owner or org (required)
  repo: ""             # repository name (required)
  token_env: GITHUB_TOKEN

# Lifecycle state labels. These live on the issue and are the only record
# of a job's state; they must be pairwise distinct.
labels:
  entry: "deckhand:entry"
  provisioning: "deckhand:provisioning"
  awaiting_input: "deckhand:awaiting-input"
  active: "deckhand:active"
  completed: "deckhand:completed"
  released: "deckhand:released"

agent:
  command: claude
  args:
    - "--dangerously-skip-permissions"

# Relative paths resolve against this file's directory.
paths:
  repo_dir: "./repo"
  worktree_base: "./worktrees"

prompts:
  dir: "./prompts"
  new_issue: "new_issue.md"

watch:
  poll_interval_secs: 5

tmux:
  session_name: deckhand

branch:
  suffix: deckhand

# Shell commands sent to each fresh window before the agent starts.
# Template variables like {{.WorktreePath}} and {{.IssueNumber}} expand here.
provision:
  on_provision: []

logging:
  level: info
  format: console
`

// Starter returns the annotated starting-point config file contents.
func Starter() string {
	return starter
}
