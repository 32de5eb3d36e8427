// deckhand watches a GitHub repository for labeled issues and provisions
// an isolated git worktree plus a tmux window running a coding agent for
// each one. Issue labels are the only record of a job's state; every
// command here reads and writes them through the tracker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deckhand-dev/deckhand/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Issue-driven agent orchestrator",
	Long: `deckhand turns GitHub issues into running coding agents.

Label an issue and the daemon provisions a git worktree and a tmux window,
renders the issue into a prompt, and starts an agent on it. Lifecycle
hooks report the agent's progress back as label changes, so the issue
itself always shows where the work stands.

Start with:
  deckhand config init   # write a starter deckhand.yaml
  deckhand doctor        # check the environment
  deckhand watch         # run the daemon`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: search deckhand.yaml upward from the working directory)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug output")
}

// loadConfig loads the config file or exits. Commands that can run
// without a complete daemon setup use this.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// loadValidConfig loads the config file and validates it, exiting on
// either failure. Commands that talk to the tracker or start the daemon
// use this.
func loadValidConfig() *config.Config {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
