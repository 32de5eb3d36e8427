// Package provision converges the workspace resources for a job: a git
// branch named after the job and a worktree checked out from it. Nothing
// is recorded locally between calls; git's worktree metadata and the
// filesystem are re-read every time, so a crash between branch creation
// and worktree creation is repaired on the next attempt.
package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/deckhand-dev/deckhand/internal/gitx"
	"github.com/deckhand-dev/deckhand/internal/logging"
	"github.com/deckhand-dev/deckhand/internal/tmux"
	"github.com/deckhand-dev/deckhand/internal/types"
)

// slugMaxLen bounds the readable slug portion of branch and window names.
const slugMaxLen = 30

// Config holds the paths and naming inputs for a Provisioner.
type Config struct {
	// RepoDir is the main clone all worktrees are created from.
	RepoDir string
	// WorktreeBase is the directory job worktrees live under.
	WorktreeBase string
	// BranchSuffix is the trailing component of every job branch name.
	BranchSuffix string
}

// Provisioner creates and repairs job workspaces.
type Provisioner struct {
	git          *gitx.Git
	repoDir      string
	worktreeBase string
	branchSuffix string
	logger       *logging.Logger
}

// New creates a Provisioner. Paths are resolved to absolute form up front
// so they compare cleanly against the absolute paths git reports.
func New(git *gitx.Git, cfg Config, logger *logging.Logger) *Provisioner {
	return &Provisioner{
		git:          git,
		repoDir:      absPath(cfg.RepoDir),
		worktreeBase: absPath(cfg.WorktreeBase),
		branchSuffix: cfg.BranchSuffix,
		logger:       logger,
	}
}

// absPath resolves p to an absolute path with symlinks evaluated, falling
// back to the unresolved form when the path does not exist yet.
func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Slugify reduces s to a lowercase hyphenated slug of at most maxLen
// characters. Non-alphanumeric runs collapse to a single hyphen, leading
// and trailing hyphens are dropped, and truncation backs up to the last
// hyphen so words are not cut in half.
func Slugify(s string, maxLen int) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) <= maxLen {
		return slug
	}
	truncated := slug[:maxLen]
	if i := strings.LastIndex(truncated, "-"); i >= 0 {
		return truncated[:i]
	}
	return truncated
}

// Slug returns the standard-length slug for a job title, shared by branch
// and window names.
func Slug(title string) string {
	return Slugify(title, slugMaxLen)
}

// BranchName builds the branch and worktree directory name for a job:
// {number}-{slug}_{username}_{suffix}. The leading number is what maps a
// directory back to its job, so it must survive any title change.
func BranchName(job int64, title, username, suffix string) string {
	return fmt.Sprintf("%d-%s_%s_%s", job, Slug(title), username, suffix)
}

// jobNumberFromDir parses the job number from a worktree directory name,
// which starts with the number followed by a hyphen.
func jobNumberFromDir(name string) (int64, bool) {
	head, _, _ := strings.Cut(name, "-")
	n, err := strconv.ParseInt(head, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// EnsureRepo clones the tracked repository over SSH unless repoDir already
// holds a clone.
func (p *Provisioner) EnsureRepo(ctx context.Context, owner, repo string) error {
	cloneURL := fmt.Sprintf("git@github.com:%s/%s.git", owner, repo)
	cloned, err := p.git.EnsureRepo(ctx, p.repoDir, cloneURL)
	if err != nil {
		return err
	}
	if cloned {
		p.logger.Info("cloned repository",
			zap.String("url", cloneURL),
			zap.String("path", p.repoDir))
	}
	return nil
}

// RepoDir returns the resolved path of the main clone.
func (p *Provisioner) RepoDir() string {
	return p.repoDir
}

// EnsureWorkspace converges the branch and worktree for a job and returns
// its handle. Four prior conditions are possible and each ends with
// exactly one intact worktree:
//
//	registered, directory present: return it untouched
//	registered, directory missing: drop the stale registration, recreate
//	unregistered, directory present: delete the orphan, recreate
//	neither: create fresh
//
// Calling it again with no external interference takes the first path and
// performs no writes.
func (p *Provisioner) EnsureWorkspace(ctx context.Context, job types.Job, username string) (*types.ResourceHandle, error) {
	slug := Slug(job.Title)
	branch := BranchName(job.Number, job.Title, username, p.branchSuffix)
	worktreePath := filepath.Join(p.worktreeBase, branch)

	handle := &types.ResourceHandle{
		JobNumber:    job.Number,
		WorktreePath: worktreePath,
		Branch:       branch,
		WindowName:   tmux.WindowName(job.Number, slug),
	}

	worktrees, err := p.git.ListWorktrees(ctx, p.repoDir)
	if err != nil {
		return nil, err
	}
	registered := p.worktreesForJob(worktrees, job.Number)
	exists := pathExists(worktreePath)

	switch {
	case len(registered) > 0 && exists:
		p.logger.Debug("worktree already exists",
			zap.Int64("job", job.Number),
			zap.String("path", worktreePath))
		return handle, nil

	case len(registered) > 0:
		// git still lists a worktree for this job but the expected
		// directory is gone, either deleted out from under us or
		// renamed along with the job title. Deregister whatever is
		// recorded; failures are ignored since prune clears records
		// whose directories are missing anyway.
		for _, wt := range registered {
			p.logger.Debug("removing stale worktree registration",
				zap.Int64("job", job.Number),
				zap.String("path", wt.Path))
			if err := p.git.RemoveWorktree(ctx, p.repoDir, wt.Path); err != nil {
				p.logger.Debug("stale worktree remove failed",
					zap.Int64("job", job.Number),
					zap.Error(err))
			}
		}
		_ = p.git.PruneWorktrees(ctx, p.repoDir)

	case exists:
		// Directory with no registration behind it, left over from an
		// interrupted run. git worktree add refuses to reuse it.
		p.logger.Debug("removing orphaned worktree directory",
			zap.Int64("job", job.Number),
			zap.String("path", worktreePath))
		if err := os.RemoveAll(worktreePath); err != nil {
			return nil, fmt.Errorf("failed to remove orphaned worktree directory %s: %w", worktreePath, err)
		}
	}

	trunk, err := p.git.DefaultBranch(ctx, p.repoDir)
	if err != nil {
		return nil, err
	}
	if err := p.git.CreateBranch(ctx, p.repoDir, branch, trunk); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.worktreeBase, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create worktree base %s: %w", p.worktreeBase, err)
	}
	if err := p.git.AddWorktree(ctx, p.repoDir, worktreePath, branch); err != nil {
		return nil, err
	}

	p.logger.Info("created worktree",
		zap.Int64("job", job.Number),
		zap.String("path", worktreePath),
		zap.String("branch", branch))
	return handle, nil
}

// worktreesForJob filters the registered worktrees down to those living
// directly under the worktree base whose directory name carries the job
// number.
func (p *Provisioner) worktreesForJob(worktrees []gitx.Worktree, job int64) []gitx.Worktree {
	var matched []gitx.Worktree
	for _, wt := range worktrees {
		if filepath.Dir(wt.Path) != p.worktreeBase {
			continue
		}
		if n, ok := jobNumberFromDir(filepath.Base(wt.Path)); ok && n == job {
			matched = append(matched, wt)
		}
	}
	return matched
}

// WorktreePathFor returns the worktree directory for a job found by its
// "{number}-" name prefix, or "" when none exists on disk.
func (p *Provisioner) WorktreePathFor(job int64) string {
	entries, err := os.ReadDir(p.worktreeBase)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if n, ok := jobNumberFromDir(entry.Name()); ok && n == job {
			return filepath.Join(p.worktreeBase, entry.Name())
		}
	}
	return ""
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
