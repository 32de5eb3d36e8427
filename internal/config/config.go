// Package config loads and validates deckhand configuration.
// Configuration comes from deckhand.yaml (searched in the working directory
// and up to two parents, so commands work from inside worktrees), overlaid
// with DECKHAND_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/deckhand-dev/deckhand/internal/logging"
)

// DefaultFilename is the config file deckhand looks for.
const DefaultFilename = "deckhand.yaml"

// Config holds all configuration sections for deckhand.
type Config struct {
	GitHub    GitHubConfig    `mapstructure:"github" yaml:"github"`
	Labels    LabelConfig     `mapstructure:"labels" yaml:"labels"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Paths     PathsConfig     `mapstructure:"paths" yaml:"paths"`
	Prompts   PromptsConfig   `mapstructure:"prompts" yaml:"prompts"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Tmux      TmuxConfig      `mapstructure:"tmux" yaml:"tmux"`
	Branch    BranchConfig    `mapstructure:"branch" yaml:"branch"`
	Provision ProvisionConfig `mapstructure:"provision" yaml:"provision"`
	Logging   logging.Config  `mapstructure:"logging" yaml:"logging"`

	// Source is the path of the config file this Config was loaded from,
	// empty when built from defaults.
	Source string `mapstructure:"-" yaml:"-"`
}

// GitHubConfig identifies the watched repository and how to authenticate.
type GitHubConfig struct {
	Owner    string `mapstructure:"owner" yaml:"owner"`
	Repo     string `mapstructure:"repo" yaml:"repo"`
	TokenEnv string `mapstructure:"token_env" yaml:"token_env"`
}

// LabelConfig maps each lifecycle state to the tracker label that encodes it.
// The labels are the system of record; they must be pairwise distinct.
type LabelConfig struct {
	Entry         string `mapstructure:"entry" yaml:"entry"`
	Provisioning  string `mapstructure:"provisioning" yaml:"provisioning"`
	AwaitingInput string `mapstructure:"awaiting_input" yaml:"awaiting_input"`
	Active        string `mapstructure:"active" yaml:"active"`
	Completed     string `mapstructure:"completed" yaml:"completed"`
	Released      string `mapstructure:"released" yaml:"released"`
}

// All returns the state labels in lifecycle order.
func (l LabelConfig) All() []string {
	return []string{l.Entry, l.Provisioning, l.AwaitingInput, l.Active, l.Completed, l.Released}
}

// AgentConfig describes how to start the coding agent inside a window.
type AgentConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
}

// PathsConfig locates the repo clone and the worktree base directory.
// Relative paths are resolved against the directory containing the config
// file, not the process working directory.
type PathsConfig struct {
	RepoDir      string `mapstructure:"repo_dir" yaml:"repo_dir"`
	WorktreeBase string `mapstructure:"worktree_base" yaml:"worktree_base"`
}

// PromptsConfig locates prompt templates.
type PromptsConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	NewIssue string `mapstructure:"new_issue" yaml:"new_issue"`
}

// WatchConfig controls the poll loop.
type WatchConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs" yaml:"poll_interval_secs"`
}

// PollInterval returns the poll interval as a time.Duration.
func (w WatchConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSecs) * time.Second
}

// TmuxConfig names the session that owns all job windows.
type TmuxConfig struct {
	SessionName string `mapstructure:"session_name" yaml:"session_name"`
}

// BranchConfig controls branch naming.
type BranchConfig struct {
	Suffix string `mapstructure:"suffix" yaml:"suffix"`
}

// ProvisionConfig lists shell commands run in a fresh window before the
// agent starts. Commands are template-expanded with the job context and
// execute in the worktree.
type ProvisionConfig struct {
	OnProvision []string `mapstructure:"on_provision" yaml:"on_provision"`
}

// DefaultConfig returns a Config with every default filled in. Owner and
// repo are intentionally empty; they have no sensible default.
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			TokenEnv: "GITHUB_TOKEN",
		},
		Labels: LabelConfig{
			Entry:         "deckhand:entry",
			Provisioning:  "deckhand:provisioning",
			AwaitingInput: "deckhand:awaiting-input",
			Active:        "deckhand:active",
			Completed:     "deckhand:completed",
			Released:      "deckhand:released",
		},
		Agent: AgentConfig{
			Command: "claude",
			Args:    []string{"--dangerously-skip-permissions"},
		},
		Paths: PathsConfig{
			RepoDir:      "./repo",
			WorktreeBase: "./worktrees",
		},
		Prompts: PromptsConfig{
			Dir:      "./prompts",
			NewIssue: "new_issue.md",
		},
		Watch: WatchConfig{
			PollIntervalSecs: 5,
		},
		Tmux: TmuxConfig{
			SessionName: "deckhand",
		},
		Branch: BranchConfig{
			Suffix: "deckhand",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// setDefaults pushes DefaultConfig values into viper so a sparse config
// file still unmarshals complete.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("github.token_env", d.GitHub.TokenEnv)

	v.SetDefault("labels.entry", d.Labels.Entry)
	v.SetDefault("labels.provisioning", d.Labels.Provisioning)
	v.SetDefault("labels.awaiting_input", d.Labels.AwaitingInput)
	v.SetDefault("labels.active", d.Labels.Active)
	v.SetDefault("labels.completed", d.Labels.Completed)
	v.SetDefault("labels.released", d.Labels.Released)

	v.SetDefault("agent.command", d.Agent.Command)
	v.SetDefault("agent.args", d.Agent.Args)

	v.SetDefault("paths.repo_dir", d.Paths.RepoDir)
	v.SetDefault("paths.worktree_base", d.Paths.WorktreeBase)

	v.SetDefault("prompts.dir", d.Prompts.Dir)
	v.SetDefault("prompts.new_issue", d.Prompts.NewIssue)

	v.SetDefault("watch.poll_interval_secs", d.Watch.PollIntervalSecs)
	v.SetDefault("tmux.session_name", d.Tmux.SessionName)
	v.SetDefault("branch.suffix", d.Branch.Suffix)

	v.SetDefault("provision.on_provision", []string{})

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
}

// Load finds and parses the config file, searching the working directory
// and up to two parent directories. The returned Config is not validated;
// callers that need a working daemon setup call Validate as well.
func Load(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultFilename
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DECKHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir := filepath.Dir(filename); dir != "." {
		// Explicit path given, no search.
		v.SetConfigFile(filename)
	} else {
		name := strings.TrimSuffix(filename, filepath.Ext(filename))
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("..", ".."))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config file %q not found in current directory or up to 2 parent directories (run 'deckhand config init' to create one)", filename)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Source = v.ConfigFileUsed()
	cfg.resolvePaths(filepath.Dir(cfg.Source))

	return &cfg, nil
}

// resolvePaths anchors relative paths at the config file's directory so
// "./repo" means the same thing no matter where the command runs from.
func (c *Config) resolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Paths.RepoDir = resolve(c.Paths.RepoDir)
	c.Paths.WorktreeBase = resolve(c.Paths.WorktreeBase)
	c.Prompts.Dir = resolve(c.Prompts.Dir)
}

// Validate checks that the configuration can actually drive the daemon.
func (c *Config) Validate() error {
	var errs []string

	if c.GitHub.Owner == "" {
		errs = append(errs, "github.owner must not be empty")
	}
	if c.GitHub.Repo == "" {
		errs = append(errs, "github.repo must not be empty")
	}
	if c.GitHub.TokenEnv == "" {
		errs = append(errs, "github.token_env must not be empty")
	} else if os.Getenv(c.GitHub.TokenEnv) == "" {
		errs = append(errs, fmt.Sprintf("GitHub token not found in environment variable %q (set it with: export %s=<your-token>)", c.GitHub.TokenEnv, c.GitHub.TokenEnv))
	}

	labels := c.Labels.All()
	for i, a := range labels {
		if a == "" {
			errs = append(errs, "every state label must be non-empty")
			break
		}
		for _, b := range labels[i+1:] {
			if a == b {
				errs = append(errs, fmt.Sprintf("label conflict: %q is used for multiple states", a))
			}
		}
	}

	if c.Watch.PollIntervalSecs <= 0 {
		errs = append(errs, "watch.poll_interval_secs must be positive")
	}
	if c.Tmux.SessionName == "" {
		errs = append(errs, "tmux.session_name must not be empty")
	}
	if c.Agent.Command == "" {
		errs = append(errs, "agent.command must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Token returns the GitHub token from the configured environment variable.
func (c *Config) Token() string {
	return os.Getenv(c.GitHub.TokenEnv)
}

// DaemonDir returns the per-repository daemon directory,
// ~/.deckhand/{owner}-{repo}/. It holds the log, PID file, hook socket,
// and downloaded job attachments.
func (c *Config) DaemonDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".deckhand", fmt.Sprintf("%s-%s", c.GitHub.Owner, c.GitHub.Repo)), nil
}

// LogFile returns the daemon log path inside the daemon directory.
func (c *Config) LogFile() (string, error) {
	dir, err := c.DaemonDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "deckhand.log"), nil
}

// PIDFile returns the daemon PID file path inside the daemon directory.
func (c *Config) PIDFile() (string, error) {
	dir, err := c.DaemonDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "deckhand.pid"), nil
}

// SocketFile returns the hook socket path inside the daemon directory.
func (c *Config) SocketFile() (string, error) {
	dir, err := c.DaemonDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "deckhand.sock"), nil
}
