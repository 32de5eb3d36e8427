package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/deckhand-dev/deckhand/internal/hooks"
	"github.com/deckhand-dev/deckhand/internal/prompt"
	"github.com/deckhand-dev/deckhand/internal/provision"
	"github.com/deckhand-dev/deckhand/internal/types"
)

// onProvisionSettle is how long each on_provision command gets to start
// before the next one is typed into the window.
const onProvisionSettle = 100 * time.Millisecond

// pollCycle fetches jobs carrying the entry label and provisions each one
// that does not already have a window. Tracker fetch failures are logged
// and retried on the next tick; a tmux failure aborts the cycle because
// without window checks every job would be provisioned twice.
func (o *Orchestrator) pollCycle(ctx context.Context) error {
	entryLabel := o.machine.LabelFor(types.StateEntry)
	jobs, err := o.tracker.ListJobsWithLabel(ctx, entryLabel)
	if err != nil {
		o.logger.Error("failed to list jobs", zap.String("label", entryLabel), zap.Error(err))
		return nil
	}
	if len(jobs) == 0 {
		o.logger.Debug("no jobs waiting", zap.String("label", entryLabel))
		o.seen = make(map[int64]bool)
		return nil
	}

	// Forget jobs that no longer carry the entry label so a re-labeled
	// issue logs its skip line again.
	current := make(map[int64]bool, len(jobs))
	for _, job := range jobs {
		current[job.Number] = true
	}
	for n := range o.seen {
		if !current[n] {
			delete(o.seen, n)
		}
	}

	provisioned := 0
	for _, job := range jobs {
		exists, err := o.terminal.WindowExists(ctx, job.Number)
		if err != nil {
			return fmt.Errorf("failed to check window for issue #%d: %w", job.Number, err)
		}
		if exists {
			if !o.seen[job.Number] {
				o.logger.Info("issue already has a window, skipping",
					zap.Int64("issue", job.Number))
				o.seen[job.Number] = true
			}
			continue
		}
		delete(o.seen, job.Number)

		if err := o.processJob(ctx, job); err != nil {
			o.logger.Error("failed to provision issue",
				zap.Int64("issue", job.Number),
				zap.Error(err))
			continue
		}
		provisioned++
	}

	if provisioned > 0 {
		o.logger.Info("poll cycle complete", zap.Int("provisioned", provisioned))
	}
	return nil
}

// processJob takes one job from the entry label to a running agent:
// claim it, build the worktree and window, render the prompt, launch the
// worker, and mark it active. The claim happens first so a crash
// mid-provision leaves the issue visibly stuck in provisioning rather
// than silently re-entering the queue.
func (o *Orchestrator) processJob(ctx context.Context, job types.Job) error {
	o.logger.Info("provisioning issue",
		zap.Int64("issue", job.Number),
		zap.String("title", job.Title))

	if err := o.machine.Transition(ctx, job.Number, types.StateEntry, types.StateProvisioning); err != nil {
		return fmt.Errorf("failed to claim issue: %w", err)
	}

	handle, err := o.workspace.EnsureWorkspace(ctx, job, o.username)
	if err != nil {
		return fmt.Errorf("failed to provision workspace: %w", err)
	}

	o.copyConfigFile(handle.WorktreePath)

	if err := hooks.Install(handle.WorktreePath); err != nil {
		o.logger.Warn("failed to install hooks in worktree",
			zap.Int64("issue", job.Number),
			zap.Error(err))
	} else {
		o.logger.Info("installed hooks", zap.String("worktree", handle.WorktreePath))
	}

	if err := o.terminal.CreateWindow(ctx, job.Number, provision.Slug(job.Title), handle.WorktreePath); err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	pctx := prompt.Context{
		IssueNumber:  job.Number,
		Title:        job.Title,
		Body:         job.Body,
		BranchName:   handle.Branch,
		WorktreePath: handle.WorktreePath,
		HTMLURL:      job.HTMLURL,
		RepoPath:     o.workspace.RepoDir(),
	}

	for _, cmdTmpl := range o.cfg.OnProvision {
		cmd := cmdTmpl
		if o.prompts != nil {
			rendered, err := o.prompts.RenderString(cmdTmpl, pctx)
			if err != nil {
				o.logger.Warn("failed to render provision command",
					zap.String("command", cmdTmpl),
					zap.Error(err))
			} else {
				cmd = rendered
			}
		}
		if err := o.terminal.SendKeys(ctx, job.Number, cmd); err != nil {
			return fmt.Errorf("failed to run provision command: %w", err)
		}
		time.Sleep(onProvisionSettle)
	}

	jobDir := filepath.Join(o.cfg.DaemonDir, strconv.FormatInt(job.Number, 10))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	pctx.Body = o.processBody(ctx, job, jobDir)

	rendered, err := o.renderPrompt(pctx)
	if err != nil {
		return fmt.Errorf("failed to render prompt: %w", err)
	}

	if err := o.worker.Launch(ctx, job.Number, rendered, jobDir); err != nil {
		return fmt.Errorf("failed to launch agent: %w", err)
	}

	if err := o.machine.Transition(ctx, job.Number, types.StateProvisioning, types.StateActive); err != nil {
		return fmt.Errorf("failed to mark issue active: %w", err)
	}

	if err := o.terminal.RenameWindow(ctx, job.Number, string(types.StateActive)); err != nil {
		o.logger.Warn("failed to rename window",
			zap.Int64("issue", job.Number),
			zap.Error(err))
	}

	o.logger.Info("issue provisioned",
		zap.Int64("issue", job.Number),
		zap.String("branch", handle.Branch),
		zap.String("window", handle.WindowName))
	return nil
}

// processBody downloads the job body's attachments into jobDir and
// rewrites their references to local paths. Any failure falls back to the
// original body so a broken image can never block provisioning.
func (o *Orchestrator) processBody(ctx context.Context, job types.Job, jobDir string) string {
	if o.media == nil {
		return job.Body
	}

	bodyHTML, err := o.tracker.GetJobBodyHTML(ctx, job.Number)
	if err != nil {
		o.logger.Warn("failed to fetch rendered body, attachment names may be opaque",
			zap.Int64("issue", job.Number),
			zap.Error(err))
		bodyHTML = ""
	}

	processed, err := o.media.ProcessBodyWithHTML(ctx, job.Body, bodyHTML, jobDir)
	if err != nil {
		o.logger.Warn("failed to process attachments, using original body",
			zap.Int64("issue", job.Number),
			zap.Error(err))
		return job.Body
	}
	return processed
}

// renderPrompt renders the configured prompt template, or hands the body
// through verbatim when no engine is wired.
func (o *Orchestrator) renderPrompt(pctx prompt.Context) (string, error) {
	if o.prompts == nil {
		return pctx.Body, nil
	}
	return o.prompts.RenderFile(o.cfg.PromptFile, pctx)
}

// copyConfigFile drops the daemon's config into a fresh worktree so the
// hook command resolves the same socket path the daemon listens on.
// Failures are logged, not fatal: the worktree is still usable.
func (o *Orchestrator) copyConfigFile(worktreePath string) {
	if o.cfg.ConfigFile == "" {
		return
	}
	data, err := os.ReadFile(o.cfg.ConfigFile)
	if err != nil {
		o.logger.Warn("failed to read config file for worktree copy",
			zap.String("path", o.cfg.ConfigFile),
			zap.Error(err))
		return
	}
	dest := filepath.Join(worktreePath, filepath.Base(o.cfg.ConfigFile))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		o.logger.Warn("failed to copy config file into worktree",
			zap.String("dest", dest),
			zap.Error(err))
		return
	}
	o.logger.Debug("copied config into worktree", zap.String("dest", dest))
}
