// Package orchestrator runs the daemon's event loop: the single writer of
// all lifecycle transitions. It merges three sources with strict priority,
// cancellation first, then pending hook messages, then the poll tick, and
// re-checks that order every iteration so a burst of hook traffic can
// never starve shutdown.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deckhand-dev/deckhand/internal/hookipc"
	"github.com/deckhand-dev/deckhand/internal/labels"
	"github.com/deckhand-dev/deckhand/internal/logging"
	"github.com/deckhand-dev/deckhand/internal/media"
	"github.com/deckhand-dev/deckhand/internal/prompt"
	"github.com/deckhand-dev/deckhand/internal/types"
)

// Tracker is the issue-tracker surface the orchestrator reads and writes
// through. *tracker.Client implements it.
type Tracker interface {
	labels.Store
	VerifyAccess(ctx context.Context) error
	AuthenticatedUser(ctx context.Context) (string, error)
	ListJobsWithLabel(ctx context.Context, label string) ([]types.Job, error)
	GetJobBodyHTML(ctx context.Context, job int64) (string, error)
}

// Workspace provisions per-job checkouts. *provision.Provisioner
// implements it.
type Workspace interface {
	EnsureRepo(ctx context.Context, owner, repo string) error
	EnsureWorkspace(ctx context.Context, job types.Job, username string) (*types.ResourceHandle, error)
	RepoDir() string
}

// Terminal is the multiplexer surface the orchestrator drives.
// *tmux.Manager implements it.
type Terminal interface {
	EnsureSession(ctx context.Context) error
	WindowExists(ctx context.Context, job int64) (bool, error)
	CreateWindow(ctx context.Context, job int64, slug, workingDir string) error
	RenameWindow(ctx context.Context, job int64, suffix string) error
	SendKeys(ctx context.Context, job int64, keys string) error
}

// Worker starts the coding agent in a provisioned window.
// *agent.Launcher implements it.
type Worker interface {
	Launch(ctx context.Context, job int64, prompt, dir string) error
}

// Config wires the orchestrator's collaborators and the few settings the
// loop itself needs.
type Config struct {
	Owner        string
	Repo         string
	PollInterval time.Duration
	// OnProvision commands run in a fresh window before the agent starts,
	// template-expanded with the job context.
	OnProvision []string
	// PromptFile is the template file rendered into the initial prompt.
	PromptFile string
	// DaemonDir holds per-job state: downloaded attachments and the
	// rendered prompt files.
	DaemonDir string
	// ConfigFile is copied into each new worktree so the agent and its
	// hooks see the same configuration the daemon runs with. Empty skips
	// the copy.
	ConfigFile string

	Tracker   Tracker
	Machine   *labels.Machine
	Workspace Workspace
	Terminal  Terminal
	Worker    Worker
	Media     *media.Processor
	Prompts   *prompt.Engine
	// Messages delivers hook messages from the socket server.
	Messages <-chan hookipc.HookMessage
	Logger   *logging.Logger
}

// Orchestrator owns the event loop. All state transitions in the daemon
// go through it.
type Orchestrator struct {
	cfg       *Config
	tracker   Tracker
	machine   *labels.Machine
	workspace Workspace
	terminal  Terminal
	worker    Worker
	media     *media.Processor
	prompts   *prompt.Engine
	messages  <-chan hookipc.HookMessage
	logger    *logging.Logger

	instanceID   string
	pollInterval time.Duration

	// username is the authenticated tracker user, resolved at startup and
	// baked into branch names.
	username string

	// seen dedups "already has a window" log lines. Owned by the event
	// loop goroutine only; rebuilt from external state at any time.
	seen map[int64]bool

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an orchestrator. All collaborators are required.
func New(cfg *Config) (*Orchestrator, error) {
	switch {
	case cfg.Tracker == nil:
		return nil, fmt.Errorf("tracker is required")
	case cfg.Machine == nil:
		return nil, fmt.Errorf("state machine is required")
	case cfg.Workspace == nil:
		return nil, fmt.Errorf("workspace provisioner is required")
	case cfg.Terminal == nil:
		return nil, fmt.Errorf("terminal manager is required")
	case cfg.Worker == nil:
		return nil, fmt.Errorf("worker launcher is required")
	case cfg.Messages == nil:
		return nil, fmt.Errorf("hook message channel is required")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Orchestrator{
		cfg:          cfg,
		tracker:      cfg.Tracker,
		machine:      cfg.Machine,
		workspace:    cfg.Workspace,
		terminal:     cfg.Terminal,
		worker:       cfg.Worker,
		media:        cfg.Media,
		prompts:      cfg.Prompts,
		messages:     cfg.Messages,
		logger:       logger,
		instanceID:   uuid.New().String(),
		pollInterval: pollInterval,
		seen:         make(map[int64]bool),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// InstanceID returns this orchestrator's unique instance id.
func (o *Orchestrator) InstanceID() string {
	return o.instanceID
}

// Start verifies the environment and launches the event loop. Failures
// here mean no useful work can proceed, so they abort startup instead of
// being retried.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is already running")
	}
	o.running = true
	o.mu.Unlock()

	fail := func(err error) error {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		return types.Fatal(err)
	}

	o.logger.Info("verifying tracker access")
	if err := o.tracker.VerifyAccess(ctx); err != nil {
		return fail(fmt.Errorf("tracker access check failed: %w", err))
	}
	username, err := o.tracker.AuthenticatedUser(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to resolve authenticated user: %w", err))
	}
	o.username = username
	o.logger.Info("authenticated", zap.String("username", username))

	o.logger.Info("ensuring repository clone")
	if err := o.workspace.EnsureRepo(ctx, o.cfg.Owner, o.cfg.Repo); err != nil {
		return fail(fmt.Errorf("failed to ensure repository: %w", err))
	}

	if err := o.terminal.EnsureSession(ctx); err != nil {
		return fail(fmt.Errorf("failed to ensure tmux session: %w", err))
	}

	// Render the prompt template once against an empty context so a
	// broken template fails startup instead of the first job.
	if o.prompts != nil {
		if _, err := o.prompts.RenderFile(o.cfg.PromptFile, prompt.Context{}); err != nil {
			return fail(fmt.Errorf("prompt template check failed: %w", err))
		}
	}

	o.writeInstanceFile()

	o.logger.Info("watching for jobs",
		zap.String("repo", o.cfg.Owner+"/"+o.cfg.Repo),
		zap.String("label", o.machine.LabelFor(types.StateEntry)),
		zap.String("instance", o.instanceID))

	go o.eventLoop(ctx)
	return nil
}

// Stop signals the event loop and waits for the in-progress step to
// complete. The context bounds the wait.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is not running")
	}
	o.mu.Unlock()

	close(o.stopCh)

	select {
	case <-o.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return nil
}

// IsRunning reports whether the event loop is live.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// eventLoop merges cancellation, hook messages, and the poll tick.
// Priority is re-established from the top every iteration: cancellation
// is always checked first, then one pending hook message is drained, and
// only with both quiet does the loop block on all sources at once.
func (o *Orchestrator) eventLoop(ctx context.Context) {
	defer close(o.doneCh)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		default:
		}

		select {
		case msg := <-o.messages:
			if err := o.handleHookMessage(ctx, msg); err != nil {
				// Hook transitions are cosmetic from the sender's point
				// of view. Log and move on.
				o.logger.Error("hook message failed",
					zap.String("event", msg.EventName),
					zap.Int64("job", msg.JobID),
					zap.Error(err))
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case msg := <-o.messages:
			if err := o.handleHookMessage(ctx, msg); err != nil {
				o.logger.Error("hook message failed",
					zap.String("event", msg.EventName),
					zap.Int64("job", msg.JobID),
					zap.Error(err))
			}
		case <-ticker.C:
			if err := o.pollCycle(ctx); err != nil {
				o.logger.Error("poll cycle failed", zap.Error(err))
			}
		}
	}
}

// writeInstanceFile records the instance id beside the PID file so logs
// from different daemon runs can be told apart.
func (o *Orchestrator) writeInstanceFile() {
	if o.cfg.DaemonDir == "" {
		return
	}
	path := filepath.Join(o.cfg.DaemonDir, "deckhand.instance")
	if err := os.WriteFile(path, []byte(o.instanceID+"\n"), 0o644); err != nil {
		o.logger.Warn("failed to write instance file", zap.Error(err))
	}
}
