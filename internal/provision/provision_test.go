package provision

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deckhand-dev/deckhand/internal/gitx"
	"github.com/deckhand-dev/deckhand/internal/logging"
	"github.com/deckhand-dev/deckhand/internal/types"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"simple title", "Fix Login Bug", 30, "fix-login-bug"},
		{"punctuation collapses", "Fix: login/bug (v2)", 30, "fix-login-bug-v2"},
		{"hyphen runs collapse", "a  --  b", 30, "a-b"},
		{"edges trimmed", "  hello  ", 30, "hello"},
		{"non-ascii dropped", "émoji tîtle", 30, "moji-t-tle"},
		{"truncates at word boundary", "this is a very long issue title that exceeds the limit", 30, "this-is-a-very-long-issue"},
		{"truncates mid word without hyphen", "abcdefghijklmnopqrstuvwxyz0123456789", 30, "abcdefghijklmnopqrstuvwxyz0123"},
		{"exactly at limit", "abcde", 5, "abcde"},
		{"empty", "", 30, ""},
		{"only punctuation", "!!!", 30, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("Slugify(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestBranchName(t *testing.T) {
	got := BranchName(42, "Fix Login Bug", "alice", "deckhand")
	want := "42-fix-login-bug_alice_deckhand"
	if got != want {
		t.Errorf("BranchName = %q, want %q", got, want)
	}
}

func TestJobNumberFromDir(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		want int64
		ok   bool
	}{
		{"full worktree name", "42-fix-login-bug_alice_deckhand", 42, true},
		{"bare number", "42", 42, true},
		{"leading zeros", "007-bond", 7, true},
		{"no number", "abc-def", 0, false},
		{"empty", "", 0, false},
		{"zero", "0-zero", 0, false},
		{"leading hyphen", "-42-weird", 0, false},
		{"mixed head", "12abc-mixed", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := jobNumberFromDir(tt.dir)
			if got != tt.want || ok != tt.ok {
				t.Errorf("jobNumberFromDir(%q) = (%d, %v), want (%d, %v)", tt.dir, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestWorktreesForJob(t *testing.T) {
	p := &Provisioner{worktreeBase: "/srv/worktrees"}
	worktrees := []gitx.Worktree{
		{Path: "/srv/repo", Branch: "main"},
		{Path: "/srv/worktrees/42-fix-login-bug_alice_deckhand", Branch: "42-fix-login-bug_alice_deckhand"},
		{Path: "/srv/worktrees/7-other_bob_deckhand", Branch: "7-other_bob_deckhand"},
		{Path: "/srv/worktrees/nonsense", Branch: "scratch"},
		{Path: "/elsewhere/42-fix-login-bug_alice_deckhand", Branch: "duplicate"},
	}

	got := p.worktreesForJob(worktrees, 42)
	if len(got) != 1 || got[0].Path != "/srv/worktrees/42-fix-login-bug_alice_deckhand" {
		t.Errorf("worktreesForJob(42) = %+v, want the single base-relative match", got)
	}
	if got := p.worktreesForJob(worktrees, 7); len(got) != 1 {
		t.Errorf("worktreesForJob(7) = %+v, want one match", got)
	}
	if got := p.worktreesForJob(worktrees, 99); len(got) != 0 {
		t.Errorf("worktreesForJob(99) = %+v, want none", got)
	}
}

func TestWorktreePathFor(t *testing.T) {
	base, err := os.MkdirTemp("", "deckhand-worktrees-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(base) })

	p := &Provisioner{worktreeBase: base}

	if got := p.WorktreePathFor(42); got != "" {
		t.Errorf("WorktreePathFor(42) on empty base = %q, want empty", got)
	}

	for _, dir := range []string{"42-fix-login-bug_alice_deckhand", "7-other_bob_deckhand"} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(base, "13-a-file-not-a-dir"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if got, want := p.WorktreePathFor(42), filepath.Join(base, "42-fix-login-bug_alice_deckhand"); got != want {
		t.Errorf("WorktreePathFor(42) = %q, want %q", got, want)
	}
	if got := p.WorktreePathFor(13); got != "" {
		t.Errorf("WorktreePathFor(13) matched a plain file: %q", got)
	}
	if got := p.WorktreePathFor(99); got != "" {
		t.Errorf("WorktreePathFor(99) = %q, want empty", got)
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %v failed: %v", args, err)
	}
	return strings.TrimSpace(string(out))
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "deckhand-provision-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "config", "user.email", "test@example.com")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("seed\n"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial commit")
	return dir
}

func newTestProvisioner(t *testing.T) (*Provisioner, string) {
	t.Helper()
	ctx := context.Background()

	repoDir := initTestRepo(t)
	base, err := os.MkdirTemp("", "deckhand-worktrees-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(base) })

	git, err := gitx.NewGit(ctx)
	if err != nil {
		t.Fatalf("Failed to create git runner: %v", err)
	}

	p := New(git, Config{
		RepoDir:      repoDir,
		WorktreeBase: base,
		BranchSuffix: "deckhand",
	}, logging.Default())
	return p, repoDir
}

func registrationCount(t *testing.T, p *Provisioner, job int64) int {
	t.Helper()
	worktrees, err := p.git.ListWorktrees(context.Background(), p.repoDir)
	if err != nil {
		t.Fatalf("ListWorktrees failed: %v", err)
	}
	return len(p.worktreesForJob(worktrees, job))
}

func TestEnsureWorkspaceCreatesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvisioner(t)
	job := types.Job{Number: 42, Title: "Fix login bug"}

	h1, err := p.EnsureWorkspace(ctx, job, "alice")
	if err != nil {
		t.Fatalf("EnsureWorkspace failed: %v", err)
	}
	if h1.Branch != "42-fix-login-bug_alice_deckhand" {
		t.Errorf("Unexpected branch name: %s", h1.Branch)
	}
	if h1.WindowName != "issue-42-fix-login-bug" {
		t.Errorf("Unexpected window name: %s", h1.WindowName)
	}
	if _, err := os.Stat(filepath.Join(h1.WorktreePath, "README.md")); err != nil {
		t.Errorf("Worktree missing checked-out file: %v", err)
	}
	if got := gitOutput(t, h1.WorktreePath, "rev-parse", "--abbrev-ref", "HEAD"); got != h1.Branch {
		t.Errorf("Worktree on branch %q, want %q", got, h1.Branch)
	}

	h2, err := p.EnsureWorkspace(ctx, job, "alice")
	if err != nil {
		t.Fatalf("Second EnsureWorkspace failed: %v", err)
	}
	if *h1 != *h2 {
		t.Errorf("Handles differ across calls: %+v vs %+v", *h1, *h2)
	}

	entries, err := os.ReadDir(filepath.Dir(h1.WorktreePath))
	if err != nil {
		t.Fatalf("Failed to read worktree base: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly one worktree directory, found %d", len(entries))
	}
	if got := registrationCount(t, p, 42); got != 1 {
		t.Errorf("Expected exactly one registration for job 42, found %d", got)
	}
}

func TestEnsureWorkspaceHealsStaleRegistration(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvisioner(t)
	job := types.Job{Number: 7, Title: "Stale registration"}

	h1, err := p.EnsureWorkspace(ctx, job, "alice")
	if err != nil {
		t.Fatalf("EnsureWorkspace failed: %v", err)
	}

	// Delete the directory behind git's back. The registration survives
	// in the main repo's metadata.
	if err := os.RemoveAll(h1.WorktreePath); err != nil {
		t.Fatalf("Failed to remove worktree dir: %v", err)
	}

	h2, err := p.EnsureWorkspace(ctx, job, "alice")
	if err != nil {
		t.Fatalf("EnsureWorkspace after stale registration failed: %v", err)
	}
	if *h1 != *h2 {
		t.Errorf("Handles differ after heal: %+v vs %+v", *h1, *h2)
	}
	if _, err := os.Stat(filepath.Join(h2.WorktreePath, "README.md")); err != nil {
		t.Errorf("Recreated worktree missing checked-out file: %v", err)
	}
	if got := registrationCount(t, p, 7); got != 1 {
		t.Errorf("Expected exactly one registration for job 7, found %d", got)
	}
}

func TestEnsureWorkspaceRemovesOrphanedDirectory(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvisioner(t)
	job := types.Job{Number: 9, Title: "Orphan case"}

	// Plant a directory where the worktree will go, with no registration
	// behind it, as an interrupted earlier run would leave.
	orphan := filepath.Join(p.worktreeBase, BranchName(9, "Orphan case", "alice", "deckhand"))
	if err := os.MkdirAll(orphan, 0o755); err != nil {
		t.Fatalf("Failed to create orphan dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(orphan, "junk.txt"), []byte("left over"), 0o644); err != nil {
		t.Fatalf("Failed to write junk file: %v", err)
	}

	h, err := p.EnsureWorkspace(ctx, job, "alice")
	if err != nil {
		t.Fatalf("EnsureWorkspace over orphan failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.WorktreePath, "junk.txt")); !os.IsNotExist(err) {
		t.Errorf("Orphaned contents survived reprovisioning")
	}
	if _, err := os.Stat(filepath.Join(h.WorktreePath, "README.md")); err != nil {
		t.Errorf("Fresh worktree missing checked-out file: %v", err)
	}
	if got := registrationCount(t, p, 9); got != 1 {
		t.Errorf("Expected exactly one registration for job 9, found %d", got)
	}
}

func TestEnsureWorkspaceReusesExistingBranch(t *testing.T) {
	ctx := context.Background()
	p, repoDir := newTestProvisioner(t)
	job := types.Job{Number: 13, Title: "Reuse me"}

	// A prior crash can leave the branch behind without a worktree.
	runGit(t, repoDir, "branch", "13-reuse-me_alice_deckhand")

	h, err := p.EnsureWorkspace(ctx, job, "alice")
	if err != nil {
		t.Fatalf("EnsureWorkspace with pre-existing branch failed: %v", err)
	}
	if got := gitOutput(t, h.WorktreePath, "rev-parse", "--abbrev-ref", "HEAD"); got != "13-reuse-me_alice_deckhand" {
		t.Errorf("Worktree on branch %q, want the pre-existing one", got)
	}
}
