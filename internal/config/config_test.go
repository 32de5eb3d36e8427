package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "github:\n  owner: octo\n  repo: widgets\n")
	chdir(t, dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "octo", cfg.GitHub.Owner)
	assert.Equal(t, "widgets", cfg.GitHub.Repo)
	assert.Equal(t, "GITHUB_TOKEN", cfg.GitHub.TokenEnv)
	assert.Equal(t, "deckhand:entry", cfg.Labels.Entry)
	assert.Equal(t, "deckhand:awaiting-input", cfg.Labels.AwaitingInput)
	assert.Equal(t, 5, cfg.Watch.PollIntervalSecs)
	assert.Equal(t, "deckhand", cfg.Tmux.SessionName)
	assert.Equal(t, "claude", cfg.Agent.Command)
	assert.NotEmpty(t, cfg.Source)
}

func TestLoadSearchesParents(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "github:\n  owner: octo\n  repo: widgets\npaths:\n  repo_dir: ./repo\n")
	nested := filepath.Join(root, "worktrees", "42-fix-login")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	chdir(t, nested)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "octo", cfg.GitHub.Owner)

	// Relative paths resolve against the config file's directory, not cwd.
	assert.Equal(t, filepath.Join(filepath.Dir(cfg.Source), "repo"), cfg.Paths.RepoDir)
}

func TestLoadMissingFile(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
github:
  owner: octo
  repo: widgets
labels:
  entry: "queue:take-me"
watch:
  poll_interval_secs: 30
tmux:
  session_name: crew
`)
	chdir(t, dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "queue:take-me", cfg.Labels.Entry)
	assert.Equal(t, "deckhand:provisioning", cfg.Labels.Provisioning)
	assert.Equal(t, 30, cfg.Watch.PollIntervalSecs)
	assert.Equal(t, "crew", cfg.Tmux.SessionName)
}

func TestValidate(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg := DefaultConfig()
	cfg.GitHub.Owner = "octo"
	cfg.GitHub.Repo = "widgets"
	require.NoError(t, cfg.Validate())
}

func TestValidateMissingOwner(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github.owner")
	assert.Contains(t, err.Error(), "github.repo")
}

func TestValidateMissingToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GitHub.Owner = "octo"
	cfg.GitHub.Repo = "widgets"
	cfg.GitHub.TokenEnv = "DECKHAND_TEST_ABSENT_TOKEN"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DECKHAND_TEST_ABSENT_TOKEN")
}

func TestValidateDuplicateLabels(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg := DefaultConfig()
	cfg.GitHub.Owner = "octo"
	cfg.GitHub.Repo = "widgets"
	cfg.Labels.Active = cfg.Labels.Entry

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "label conflict")
}

func TestDaemonDirPerRepo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GitHub.Owner = "octo"
	cfg.GitHub.Repo = "widgets"

	dir, err := cfg.DaemonDir()
	require.NoError(t, err)
	assert.Contains(t, dir, filepath.Join(".deckhand", "octo-widgets"))

	logFile, err := cfg.LogFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "deckhand.log"), logFile)

	pidFile, err := cfg.PIDFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "deckhand.pid"), pidFile)
}

func TestStarterMatchesDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(Starter()), &cfg))

	d := DefaultConfig()
	assert.Equal(t, d.Labels, cfg.Labels)
	assert.Equal(t, d.Agent, cfg.Agent)
	assert.Equal(t, d.Watch, cfg.Watch)
	assert.Equal(t, d.Tmux, cfg.Tmux)
	assert.Equal(t, d.Branch, cfg.Branch)
	assert.Equal(t, d.GitHub.TokenEnv, cfg.GitHub.TokenEnv)
}
