package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deckhand-dev/deckhand/internal/agent"
	"github.com/deckhand-dev/deckhand/internal/gitx"
	"github.com/deckhand-dev/deckhand/internal/labels"
	"github.com/deckhand-dev/deckhand/internal/logging"
	"github.com/deckhand-dev/deckhand/internal/provision"
	"github.com/deckhand-dev/deckhand/internal/tmux"
	"github.com/deckhand-dev/deckhand/internal/tracker"
)

var statusCmd = &cobra.Command{
	Use:   "status <issue>",
	Short: "Show the lifecycle state and resources of one issue",
	Long: `Show what deckhand knows about an issue: its lifecycle state as
recorded in the labels, the worktree provisioned for it, whether its tmux
window exists, and whether the agent is still running in it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		number, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || number <= 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid issue number %q\n", args[0])
			os.Exit(1)
		}

		cfg := loadValidConfig()
		ctx := context.Background()

		tc := tracker.NewClient(cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.Token())
		job, err := tc.GetJob(ctx, number)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to fetch issue #%d: %v\n", number, err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s #%d %s\n", cyan("Issue"), job.Number, job.Title)
		fmt.Printf("  URL:   %s\n", gray(job.HTMLURL))

		machine := labels.NewMachine(tc, cfg.Labels)
		if state, tracked := machine.StateOf(job.Labels); tracked {
			fmt.Printf("  State: %s\n", green(string(state)))
		} else {
			fmt.Printf("  State: %s\n", gray("not managed by deckhand"))
		}

		logger := logging.Default()
		if git, err := gitx.NewGit(ctx); err == nil {
			prov := provision.New(git, provision.Config{
				RepoDir:      cfg.Paths.RepoDir,
				WorktreeBase: cfg.Paths.WorktreeBase,
				BranchSuffix: cfg.Branch.Suffix,
			}, logger)
			if wt := prov.WorktreePathFor(number); wt != "" {
				fmt.Printf("  Worktree: %s\n", wt)
			} else {
				fmt.Printf("  Worktree: %s\n", gray("none"))
			}
		}

		tm, err := tmux.NewManager(ctx, cfg.Tmux.SessionName)
		if err != nil {
			fmt.Printf("  Window: %s\n", yellow("tmux not available"))
			fmt.Println()
			return
		}
		exists, err := tm.WindowExists(ctx, number)
		if err != nil || !exists {
			fmt.Printf("  Window: %s\n", gray("none"))
			fmt.Println()
			return
		}
		fmt.Printf("  Window: %s\n", green("present"))

		launcher := agent.New(cfg.Agent.Command, cfg.Agent.Args, tm, logger)
		if running, err := launcher.IsRunning(ctx, number); err == nil {
			if running {
				fmt.Printf("  Agent:  %s\n", green("● running"))
			} else {
				fmt.Printf("  Agent:  %s\n", gray("○ not running"))
			}
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
