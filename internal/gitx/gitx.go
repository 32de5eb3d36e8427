// Package gitx wraps the git CLI for the clone, branch, and worktree
// operations provisioning depends on. Git's own metadata is the only
// record of which worktrees exist; nothing is tracked on the side.
package gitx

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Git runs git commands through the CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	// Verify git works
	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// EnsureRepo clones cloneURL into repoPath unless a repository is already
// there. Returns true when a clone happened.
func (g *Git) EnsureRepo(ctx context.Context, repoPath, cloneURL string) (bool, error) {
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(repoPath), 0o755); err != nil {
		return false, fmt.Errorf("create parent of %s: %w", repoPath, err)
	}
	cmd := exec.CommandContext(ctx, g.gitPath, "clone", cloneURL, repoPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return false, fmt.Errorf("git clone %s failed: %s: %w", cloneURL, strings.TrimSpace(string(out)), err)
	}
	return true, nil
}

// DefaultBranch returns the branch currently checked out in the main
// repository, which is what new job branches fork from.
func (g *Git) DefaultBranch(ctx context.Context, repoPath string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get current branch in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CreateBranch creates branch at base. A branch that already exists is
// fine; re-provisioning a job reuses its prior branch.
func (g *Git) CreateBranch(ctx context.Context, repoPath, branch, base string) error {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "branch", branch, base)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), "already exists") {
			return nil
		}
		return fmt.Errorf("git branch %s failed in %s: %s: %w", branch, repoPath, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Worktree is one entry from git worktree list.
type Worktree struct {
	Path   string
	Branch string
	Bare   bool
}

// ListWorktrees returns the worktrees git has registered for the
// repository, including the main checkout.
func (g *Git) ListWorktrees(ctx context.Context, repoPath string) ([]Worktree, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "worktree", "list", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git worktree list failed in %s: %w", repoPath, err)
	}
	return parseWorktrees(string(output))
}

// parseWorktrees parses `git worktree list --porcelain` output. Entries
// are blank-line separated blocks of "key value" lines.
func parseWorktrees(output string) ([]Worktree, error) {
	var worktrees []Worktree
	var current *Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current != nil {
				worktrees = append(worktrees, *current)
				current = nil
			}
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				worktrees = append(worktrees, *current)
			}
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				ref := strings.TrimPrefix(line, "branch ")
				current.Branch = strings.TrimPrefix(ref, "refs/heads/")
			}
		case line == "bare":
			if current != nil {
				current.Bare = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git worktree list: %w", err)
	}
	if current != nil {
		worktrees = append(worktrees, *current)
	}
	return worktrees, nil
}

// FindWorktree returns the registered worktree at path, or nil if git has
// no record of one there.
func (g *Git) FindWorktree(ctx context.Context, repoPath, path string) (*Worktree, error) {
	worktrees, err := g.ListWorktrees(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	for i := range worktrees {
		if worktrees[i].Path == path {
			return &worktrees[i], nil
		}
	}
	return nil, nil
}

// AddWorktree checks out branch into a new worktree at path.
func (g *Git) AddWorktree(ctx context.Context, repoPath, path, branch string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "worktree", "add", path, branch)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree add %s failed in %s: %s: %w", path, repoPath, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// RemoveWorktree drops the registration for path and prunes stale
// metadata. Used when git still lists a worktree whose directory is gone.
func (g *Git) RemoveWorktree(ctx context.Context, repoPath, path string) error {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "worktree", "remove", "--force", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree remove %s failed in %s: %s: %w", path, repoPath, strings.TrimSpace(string(out)), err)
	}
	return g.PruneWorktrees(ctx, repoPath)
}

// PruneWorktrees clears worktree records whose directories no longer exist.
func (g *Git) PruneWorktrees(ctx context.Context, repoPath string) error {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "worktree", "prune")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree prune failed in %s: %s: %w", repoPath, strings.TrimSpace(string(out)), err)
	}
	return nil
}
