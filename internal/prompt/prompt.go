// Package prompt renders the text handed to the worker agent when a job
// launches, and the templated provision commands from the config file.
// Templates are standard text/template; unknown variables are an error
// rather than silently rendering empty.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Context carries the values templates may reference.
type Context struct {
	IssueNumber  int64
	Title        string
	Body         string
	BranchName   string
	WorktreePath string
	HTMLURL      string
	// RepoPath is the main repository checkout, not the worktree.
	RepoPath string
}

// defaultTemplate is used when the operator has not written a prompt
// template of their own.
const defaultTemplate = `# {{.Title}}

You are working on issue #{{.IssueNumber}}: {{.HTMLURL}}

## Description

{{.Body}}

## Environment

- Worktree: {{.WorktreePath}}
- Branch: {{.BranchName}}
- Main repository: {{.RepoPath}}

Work in this worktree on the branch above. When the work is ready, run
/deckhand-shipit to open a pull request. If you want to hand the job
back instead, run /deckhand-abandon.
`

// Engine renders templates from the configured prompts directory.
type Engine struct {
	dir string
}

// NewEngine creates an Engine reading templates from dir.
func NewEngine(dir string) *Engine {
	return &Engine{dir: dir}
}

// RenderFile renders the named template file with the given context. A
// missing file falls back to the built-in default prompt, so a fresh
// setup works before anyone writes templates.
func (e *Engine) RenderFile(name string, ctx Context) (string, error) {
	path := filepath.Join(e.dir, name)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		raw = []byte(defaultTemplate)
	} else if err != nil {
		return "", fmt.Errorf("failed to load template %q from %s: %w", name, path, err)
	}

	out, err := e.RenderString(string(raw), ctx)
	if err != nil {
		return "", fmt.Errorf("failed to render template %q for issue #%d: %w", name, ctx.IssueNumber, err)
	}
	return out, nil
}

// RenderString renders an inline template string with the given context.
// Used for the on_provision commands in the config file.
func (e *Engine) RenderString(tmpl string, ctx Context) (string, error) {
	t, err := template.New("inline").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to execute template for issue #%d: %w", ctx.IssueNumber, err)
	}
	return buf.String(), nil
}
