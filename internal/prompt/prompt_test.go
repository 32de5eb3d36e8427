package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testContext() Context {
	return Context{
		IssueNumber:  42,
		Title:        "Fix the bug",
		Body:         "Body text",
		BranchName:   "42-fix-bug_user_deckhand",
		WorktreePath: "/worktrees/42-fix-bug",
		HTMLURL:      "https://github.com/owner/repo/issues/42",
		RepoPath:     "/home/user/repo",
	}
}

func TestRenderStringProvisionCommands(t *testing.T) {
	e := NewEngine(t.TempDir())
	ctx := testContext()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single variable",
			in:   "tmux split-window -h -c '{{.RepoPath}}'",
			want: "tmux split-window -h -c '/home/user/repo'",
		},
		{
			name: "multiple variables",
			in:   "echo 'Issue #{{.IssueNumber}}: {{.Title}}' > {{.WorktreePath}}/info.txt",
			want: "echo 'Issue #42: Fix the bug' > /worktrees/42-fix-bug/info.txt",
		},
		{
			name: "all variables",
			in:   "{{.RepoPath}}|{{.WorktreePath}}|{{.IssueNumber}}|{{.BranchName}}|{{.HTMLURL}}",
			want: "/home/user/repo|/worktrees/42-fix-bug|42|42-fix-bug_user_deckhand|https://github.com/owner/repo/issues/42",
		},
		{
			name: "no variables passes through",
			in:   "tmux split-window -h",
			want: "tmux split-window -h",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.RenderString(tt.in, ctx)
			if err != nil {
				t.Fatalf("RenderString(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("RenderString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderStringUnknownVariableFails(t *testing.T) {
	e := NewEngine(t.TempDir())
	if _, err := e.RenderString("echo {{.NonexistentVar}}", testContext()); err == nil {
		t.Error("RenderString should reject templates referencing unknown variables")
	}
}

func TestRenderStringPreservesSpecialCharacters(t *testing.T) {
	e := NewEngine(t.TempDir())
	ctx := testContext()
	ctx.Title = "Handle émojis 🎉 and spëcial chars"
	ctx.Body = "Body with\nnewlines\tand\ttabs"

	got, err := e.RenderString("{{.Title}}\n{{.Body}}", ctx)
	if err != nil {
		t.Fatalf("RenderString() error = %v", err)
	}
	if !strings.Contains(got, "émojis 🎉") {
		t.Errorf("title mangled: %q", got)
	}
	if !strings.Contains(got, "newlines\tand\ttabs") {
		t.Errorf("body mangled: %q", got)
	}
}

func TestRenderFile(t *testing.T) {
	dir := t.TempDir()
	tmpl := "Working on #{{.IssueNumber}} ({{.Title}}) in {{.WorktreePath}}"
	if err := os.WriteFile(filepath.Join(dir, "new_issue.md"), []byte(tmpl), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(dir)
	got, err := e.RenderFile("new_issue.md", testContext())
	if err != nil {
		t.Fatalf("RenderFile() error = %v", err)
	}
	want := "Working on #42 (Fix the bug) in /worktrees/42-fix-bug"
	if got != want {
		t.Errorf("RenderFile() = %q, want %q", got, want)
	}
}

func TestRenderFileFallsBackToDefault(t *testing.T) {
	e := NewEngine(t.TempDir())
	got, err := e.RenderFile("new_issue.md", testContext())
	if err != nil {
		t.Fatalf("RenderFile() error = %v", err)
	}
	for _, want := range []string{"Fix the bug", "#42", "/worktrees/42-fix-bug", "42-fix-bug_user_deckhand"} {
		if !strings.Contains(got, want) {
			t.Errorf("default prompt missing %q:\n%s", want, got)
		}
	}
}

func TestRenderFileBadTemplateSurfacesError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.md"), []byte("{{.Unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(dir)
	if _, err := e.RenderFile("broken.md", testContext()); err == nil {
		t.Error("RenderFile should surface template parse errors")
	}
}
