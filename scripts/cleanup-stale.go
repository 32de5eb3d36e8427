// scripts/cleanup-stale.go - Manual stale worktree cleanup tool
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deckhand-dev/deckhand/internal/config"
	"github.com/deckhand-dev/deckhand/internal/gitx"
	"github.com/deckhand-dev/deckhand/internal/hooks"
	"github.com/deckhand-dev/deckhand/internal/labels"
	"github.com/deckhand-dev/deckhand/internal/tracker"
	"github.com/deckhand-dev/deckhand/internal/types"
)

// The daemon provisions worktrees but never removes them; released and
// unlabeled issues leave theirs behind. This tool removes those.
func main() {
	ctx := context.Background()

	// Allow override via environment variable
	cfg, err := config.Load(os.Getenv("DECKHAND_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	git, err := gitx.NewGit(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tc := tracker.NewClient(cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.Token())
	machine := labels.NewMachine(tc, cfg.Labels)

	fmt.Printf("Scanning worktrees under: %s\n", cfg.Paths.WorktreeBase)

	worktrees, err := git.ListWorktrees(ctx, cfg.Paths.RepoDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing worktrees: %v\n", err)
		os.Exit(1)
	}

	cleaned := 0
	for _, wt := range worktrees {
		// The main checkout is listed too; only touch job worktrees.
		if filepath.Dir(wt.Path) != cfg.Paths.WorktreeBase {
			continue
		}
		job, ok := hooks.ExtractJobNumber(filepath.Base(wt.Path))
		if !ok {
			continue
		}

		jobLabels, err := tc.GetLabels(ctx, job)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching issue #%d: %v\n", job, err)
			continue
		}
		state, tracked := machine.StateOf(jobLabels)
		if tracked && state != types.StateReleased {
			continue
		}

		why := "no lifecycle label"
		if tracked {
			why = string(state)
		}
		fmt.Printf("Removing worktree for issue #%d (%s): %s\n", job, why, wt.Path)
		if err := git.RemoveWorktree(ctx, cfg.Paths.RepoDir, wt.Path); err != nil {
			fmt.Fprintf(os.Stderr, "Error removing %s: %v\n", wt.Path, err)
			continue
		}
		cleaned++
	}

	if err := git.PruneWorktrees(ctx, cfg.Paths.RepoDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error pruning worktrees: %v\n", err)
	}

	if cleaned > 0 {
		fmt.Printf("✓ Removed %d stale worktree(s)\n", cleaned)
	} else {
		fmt.Println("✓ No stale worktrees found")
	}
}
