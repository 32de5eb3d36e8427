package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/deckhand-dev/deckhand/internal/config"
	"github.com/deckhand-dev/deckhand/internal/tracker"
)

// minGitVersion is the oldest git that supports 'git worktree remove'.
const minGitVersion = "v2.17.0"

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check deckhand installation and environment health",
	Long: `Run health checks to diagnose common deckhand configuration and
environment issues.

This command checks for:
- Configuration file presence and validity
- GitHub token and repository access
- git and tmux availability
- Agent command availability
- Repository clone status
- Daemon and hook socket state

Exit codes:
  0 - All checks passed
  1 - One or more checks failed (but not critical)
  2 - Critical failures that prevent deckhand from running`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		fixIssues, _ := cmd.Flags().GetBool("fix")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running deckhand health checks...\n\n")

		var failures []string
		var warnings []string
		var criticalFailures []string

		// Check 1: Configuration
		fmt.Printf("%s Configuration\n", cyan("→"))
		cfg, err := config.Load(cfgFile)
		if err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("Cannot load config: %v", err))
			fmt.Printf("  %s Cannot load configuration\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
			fmt.Printf("\n%s Critical failures prevent deckhand from running\n", red("✗"))
			os.Exit(2)
		}
		fmt.Printf("  %s Loaded %s\n", green("✓"), cfg.Source)
		configValid := true
		if err := cfg.Validate(); err != nil {
			configValid = false
			failures = append(failures, fmt.Sprintf("Configuration invalid: %v", err))
			fmt.Printf("  %s Configuration invalid\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Configuration valid (%s/%s)\n", green("✓"), cfg.GitHub.Owner, cfg.GitHub.Repo)
		}

		// Check 2: GitHub token
		fmt.Printf("%s GitHub token\n", cyan("→"))
		token := cfg.Token()
		if token == "" {
			failures = append(failures, fmt.Sprintf("%s not set", cfg.GitHub.TokenEnv))
			fmt.Printf("  %s %s not set\n", red("✗"), cfg.GitHub.TokenEnv)
			fmt.Printf("    The daemon cannot call the GitHub API without it\n")
		} else {
			fmt.Printf("  %s %s is set\n", green("✓"), cfg.GitHub.TokenEnv)
			if verbose && len(token) > 8 {
				fmt.Printf("    Token: %s...%s\n", token[:4], token[len(token)-4:])
			}
		}

		// Check 3: git
		fmt.Printf("%s Git\n", cyan("→"))
		if gitPath, err := exec.LookPath("git"); err != nil {
			criticalFailures = append(criticalFailures, "git not found in PATH")
			fmt.Printf("  %s git not found in PATH\n", red("✗"))
		} else {
			fmt.Printf("  %s git found: %s\n", green("✓"), gitPath)
			if ver, err := gitVersion(); err != nil {
				warnings = append(warnings, fmt.Sprintf("Cannot determine git version: %v", err))
				fmt.Printf("  %s Cannot determine git version\n", yellow("⚠"))
			} else if !gitVersionAtLeast(ver, minGitVersion) {
				failures = append(failures, fmt.Sprintf("git %s is too old (worktrees need %s+)", ver, strings.TrimPrefix(minGitVersion, "v")))
				fmt.Printf("  %s git %s is too old (need %s or newer)\n", red("✗"), ver, strings.TrimPrefix(minGitVersion, "v"))
			} else {
				fmt.Printf("  %s git %s supports worktrees\n", green("✓"), ver)
			}
		}

		// Check 4: tmux
		fmt.Printf("%s Tmux\n", cyan("→"))
		if tmuxPath, err := exec.LookPath("tmux"); err != nil {
			criticalFailures = append(criticalFailures, "tmux not found in PATH")
			fmt.Printf("  %s tmux not found in PATH\n", red("✗"))
			fmt.Printf("    Agent sessions run inside tmux; install it first\n")
		} else {
			fmt.Printf("  %s tmux found: %s\n", green("✓"), tmuxPath)
			if verbose {
				if out, err := exec.Command("tmux", "-V").Output(); err == nil {
					fmt.Printf("    %s\n", strings.TrimSpace(string(out)))
				}
			}
		}

		// Check 5: Agent command
		fmt.Printf("%s Agent command\n", cyan("→"))
		if agentPath, err := exec.LookPath(cfg.Agent.Command); err != nil {
			failures = append(failures, fmt.Sprintf("agent command %q not found in PATH", cfg.Agent.Command))
			fmt.Printf("  %s %q not found in PATH\n", red("✗"), cfg.Agent.Command)
		} else {
			fmt.Printf("  %s %s found: %s\n", green("✓"), cfg.Agent.Command, agentPath)
		}

		// Check 6: Repository clone
		fmt.Printf("%s Repository clone\n", cyan("→"))
		gitDir := filepath.Join(cfg.Paths.RepoDir, ".git")
		if _, err := os.Stat(gitDir); err != nil {
			fmt.Printf("  %s Not cloned yet (cloned on first 'deckhand watch')\n", green("✓"))
		} else {
			fmt.Printf("  %s Clone present: %s\n", green("✓"), cfg.Paths.RepoDir)
		}

		// Check 7: Daemon
		fmt.Printf("%s Daemon\n", cyan("→"))
		daemonRunning := false
		pidFile, pidErr := cfg.PIDFile()
		if pidErr != nil {
			warnings = append(warnings, fmt.Sprintf("Cannot resolve daemon directory: %v", pidErr))
			fmt.Printf("  %s Cannot resolve daemon directory\n", yellow("⚠"))
		} else if pid := readPIDFile(pidFile); pid == 0 {
			fmt.Printf("  %s No daemon running (start with 'deckhand watch')\n", green("✓"))
		} else if processExists(pid) {
			daemonRunning = true
			fmt.Printf("  %s Daemon running (PID %d)\n", green("✓"), pid)
		} else {
			warnings = append(warnings, "Stale PID file (daemon died without cleanup)")
			fmt.Printf("  %s Stale PID file for dead process %d\n", yellow("⚠"), pid)
			if fixIssues {
				if err := os.Remove(pidFile); err != nil {
					fmt.Printf("    %s Failed to remove: %v\n", red("✗"), err)
				} else {
					fmt.Printf("    %s Removed %s\n", green("✓"), pidFile)
					warnings = warnings[:len(warnings)-1]
				}
			}
		}

		// Check 8: Hook socket
		fmt.Printf("%s Hook socket\n", cyan("→"))
		if socket, err := cfg.SocketFile(); err != nil {
			warnings = append(warnings, fmt.Sprintf("Cannot resolve socket path: %v", err))
			fmt.Printf("  %s Cannot resolve socket path\n", yellow("⚠"))
		} else if _, err := os.Stat(socket); err != nil {
			if daemonRunning {
				warnings = append(warnings, "Daemon running but hook socket missing")
				fmt.Printf("  %s Daemon running but no socket at %s\n", yellow("⚠"), socket)
			} else {
				fmt.Printf("  %s No socket (daemon not running)\n", green("✓"))
			}
		} else if daemonRunning {
			fmt.Printf("  %s Socket present: %s\n", green("✓"), socket)
		} else {
			warnings = append(warnings, "Stale hook socket (daemon not running)")
			fmt.Printf("  %s Stale socket at %s\n", yellow("⚠"), socket)
			if fixIssues {
				if err := os.Remove(socket); err != nil {
					fmt.Printf("    %s Failed to remove: %v\n", red("✗"), err)
				} else {
					fmt.Printf("    %s Removed %s\n", green("✓"), socket)
					warnings = warnings[:len(warnings)-1]
				}
			}
		}

		// Check 9: GitHub access
		fmt.Printf("%s GitHub access\n", cyan("→"))
		if token == "" || !configValid {
			fmt.Printf("  %s Skipped (needs a valid config and token)\n", yellow("⚠"))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			tc := tracker.NewClient(cfg.GitHub.Owner, cfg.GitHub.Repo, token)
			if err := tc.VerifyAccess(ctx); err != nil {
				failures = append(failures, fmt.Sprintf("Cannot access %s/%s: %v", cfg.GitHub.Owner, cfg.GitHub.Repo, err))
				fmt.Printf("  %s Cannot access %s/%s\n", red("✗"), cfg.GitHub.Owner, cfg.GitHub.Repo)
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			} else {
				fmt.Printf("  %s Token can access %s/%s\n", green("✓"), cfg.GitHub.Owner, cfg.GitHub.Repo)
				if verbose {
					if user, err := tc.AuthenticatedUser(ctx); err == nil {
						fmt.Printf("    Authenticated as: %s\n", user)
					}
				}
			}
			cancel()
		}

		// Summary
		fmt.Printf("\n%s\n", strings.Repeat("─", 60))

		totalIssues := len(criticalFailures) + len(failures) + len(warnings)
		if totalIssues == 0 {
			fmt.Printf("%s All checks passed! deckhand is ready to run.\n", green("✓"))
			os.Exit(0)
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s Critical failures (%d):\n", red("✗"), len(criticalFailures))
			for _, failure := range criticalFailures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s Failures (%d):\n", red("✗"), len(failures))
			for _, failure := range failures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(warnings) > 0 {
			fmt.Printf("\n%s Warnings (%d):\n", yellow("⚠"), len(warnings))
			for _, warning := range warnings {
				fmt.Printf("  • %s\n", warning)
			}
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s deckhand cannot run until critical issues are resolved.\n", red("✗"))
			os.Exit(2)
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s deckhand may not work correctly. Please address the failures above.\n", yellow("⚠"))
			os.Exit(1)
		}

		fmt.Printf("\n%s deckhand should work, but some warnings were detected.\n", green("✓"))
		os.Exit(0)
	},
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "Remove stale PID files and sockets")
	rootCmd.AddCommand(doctorCmd)
}

// gitVersion returns the installed git version, e.g. "2.39.2".
func gitVersion() (string, error) {
	out, err := exec.Command("git", "version").Output()
	if err != nil {
		return "", err
	}
	// Output looks like "git version 2.39.2" or
	// "git version 2.39.2 (Apple Git-143)".
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) < 3 {
		return "", fmt.Errorf("unexpected git version output: %q", string(out))
	}
	return fields[2], nil
}

// gitVersionAtLeast reports whether version (e.g. "2.39.2") is at least
// min (e.g. "v2.17.0"). Unparseable versions count as too old.
func gitVersionAtLeast(version, min string) bool {
	v := "v" + strings.TrimPrefix(version, "v")
	if !semver.IsValid(v) {
		// Strip vendor suffixes like "2.39.2.windows.1".
		parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 4)
		if len(parts) >= 3 {
			v = "v" + strings.Join(parts[:3], ".")
		}
	}
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, min) >= 0
}
