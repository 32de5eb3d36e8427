package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deckhand-dev/deckhand/internal/agent"
	"github.com/deckhand-dev/deckhand/internal/config"
	"github.com/deckhand-dev/deckhand/internal/gitx"
	"github.com/deckhand-dev/deckhand/internal/hookipc"
	"github.com/deckhand-dev/deckhand/internal/labels"
	"github.com/deckhand-dev/deckhand/internal/logging"
	"github.com/deckhand-dev/deckhand/internal/media"
	"github.com/deckhand-dev/deckhand/internal/orchestrator"
	"github.com/deckhand-dev/deckhand/internal/prompt"
	"github.com/deckhand-dev/deckhand/internal/provision"
	"github.com/deckhand-dev/deckhand/internal/tmux"
	"github.com/deckhand-dev/deckhand/internal/tracker"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the daemon that provisions agents for labeled issues",
	Long: `Run the deckhand daemon.

The daemon will:
1. Poll the repository for issues carrying the entry label
2. Provision a git worktree and tmux window for each new one
3. Render the issue into a prompt and start the coding agent
4. Listen on the hook socket for agent lifecycle events
5. Keep issue labels in sync with what the agent is doing

With --daemon the process detaches, writes its PID file, and logs to the
daemon log file. Stop it with 'deckhand stop'.`,
	Run: func(cmd *cobra.Command, args []string) {
		daemonize, _ := cmd.Flags().GetBool("daemon")
		cfg := loadValidConfig()
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			cfg.Logging.Level = "debug"
		}

		daemonDir, err := cfg.DaemonDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := os.MkdirAll(daemonDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create daemon directory: %v\n", err)
			os.Exit(1)
		}

		pidFile, err := cfg.PIDFile()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if pid := livePID(pidFile); pid > 0 {
			fmt.Fprintf(os.Stderr, "Error: daemon already running (PID %d), stop it with 'deckhand stop'\n", pid)
			os.Exit(1)
		}

		if daemonize {
			if err := spawnDaemon(cfg, pidFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		runWatch(cfg, pidFile, daemonDir)
	},
}

func init() {
	watchCmd.Flags().BoolP("daemon", "d", false, "Detach and run in the background")
	rootCmd.AddCommand(watchCmd)
}

// spawnDaemon re-executes this binary in the foreground, detached from
// the terminal, with output redirected to the daemon log.
func spawnDaemon(cfg *config.Config, pidFile string) error {
	logFile, err := cfg.LogFile()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = out.Close() }()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own executable: %w", err)
	}

	child := exec.Command(exe, stripDaemonFlag(os.Args[1:])...)
	child.Stdout = out
	child.Stderr = out
	child.Stdin = nil
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := child.Process.Pid
	if err := writePIDFile(pidFile, pid); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write PID file: %v\n", err)
	}
	_ = child.Process.Release()

	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("%s Daemon started (PID %d)\n", green("✓"), pid)
	fmt.Printf("  Log:  %s\n", logFile)
	fmt.Printf("  %s\n", gray("deckhand logs -f    # follow the log"))
	fmt.Printf("  %s\n", gray("deckhand stop       # stop the daemon"))
	return nil
}

// runWatch builds the daemon's collaborators and runs the hook server and
// orchestrator until a signal arrives or one of them fails.
func runWatch(cfg *config.Config, pidFile, daemonDir string) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	if err := writePIDFile(pidFile, os.Getpid()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to write PID file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = os.Remove(pidFile) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	git, err := gitx.NewGit(ctx)
	if err != nil {
		fatalWatch(pidFile, err)
	}
	tm, err := tmux.NewManager(ctx, cfg.Tmux.SessionName)
	if err != nil {
		fatalWatch(pidFile, err)
	}
	// New windows inherit the token so agents can push and call gh.
	if token := cfg.Token(); token != "" {
		tm = tm.WithEnv(cfg.GitHub.TokenEnv, token)
	}

	tc := tracker.NewClient(cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.Token())

	socketFile, err := cfg.SocketFile()
	if err != nil {
		fatalWatch(pidFile, err)
	}
	server, err := hookipc.NewServer(socketFile, logger)
	if err != nil {
		fatalWatch(pidFile, err)
	}

	orch, err := orchestrator.New(&orchestrator.Config{
		Owner:        cfg.GitHub.Owner,
		Repo:         cfg.GitHub.Repo,
		PollInterval: cfg.Watch.PollInterval(),
		OnProvision:  cfg.Provision.OnProvision,
		PromptFile:   cfg.Prompts.NewIssue,
		DaemonDir:    daemonDir,
		ConfigFile:   cfg.Source,
		Tracker:      tc,
		Machine:      labels.NewMachine(tc, cfg.Labels),
		Workspace: provision.New(git, provision.Config{
			RepoDir:      cfg.Paths.RepoDir,
			WorktreeBase: cfg.Paths.WorktreeBase,
			BranchSuffix: cfg.Branch.Suffix,
		}, logger),
		Terminal: tm,
		Worker:   agent.New(cfg.Agent.Command, cfg.Agent.Args, tm, logger),
		Media:    media.NewProcessor(logger),
		Prompts:  prompt.NewEngine(cfg.Prompts.Dir),
		Messages: server.Messages(),
		Logger:   logger,
	})
	if err != nil {
		fatalWatch(pidFile, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("hook server failed: %w", err)
		}
		<-gctx.Done()
		return server.Stop()
	})

	g.Go(func() error {
		if err := orch.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		return orch.Stop(stopCtx)
	})

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Watching %s/%s (poll every %v)\n",
		green("✓"), cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.Watch.PollInterval())
	fmt.Printf("  Press Ctrl+C to stop\n\n")

	if err := g.Wait(); err != nil {
		logger.Error("daemon exited", zap.Error(err))
		_ = logger.Sync()
		_ = os.Remove(pidFile)
		os.Exit(1)
	}
	logger.Info("daemon stopped")
}

// fatalWatch exits after cleaning up the PID file, because os.Exit skips
// the deferred removal.
func fatalWatch(pidFile string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	_ = os.Remove(pidFile)
	os.Exit(1)
}
