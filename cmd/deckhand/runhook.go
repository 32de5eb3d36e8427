package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/deckhand-dev/deckhand/internal/config"
	"github.com/deckhand-dev/deckhand/internal/hookipc"
	"github.com/deckhand-dev/deckhand/internal/hooks"
)

var runHookCmd = &cobra.Command{
	Use:    "run-hook <event>",
	Short:  "Relay an agent hook event to the daemon (called from hooks)",
	Hidden: true,
	Long: `Read a hook payload from stdin and relay it to the daemon socket.

This command is installed into .claude/settings.json by the daemon; it is
not meant to be run by hand. It always exits 0: a hook that fails must
never block the agent that triggered it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := relayHook(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "deckhand run-hook: %v\n", err)
		}
		// Exit 0 regardless. The transition this event would have caused
		// is cosmetic; the agent's work must continue.
	},
}

func init() {
	rootCmd.AddCommand(runHookCmd)
}

// relayHook reads the payload, derives the job from the working
// directory, and sends the event over the daemon socket.
func relayHook(event string) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	payload := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("failed to parse payload: %w", err)
		}
	}

	// The hook runs inside the job's worktree; its path carries the job
	// number. The payload cwd is where the agent ran the hook, which is
	// more reliable than our own working directory, but fall back to it.
	dir, _ := payload["cwd"].(string)
	if dir == "" {
		dir, _ = os.Getwd()
	}
	job, ok := hooks.ExtractJobNumber(dir)
	if !ok {
		return fmt.Errorf("no job number in path %q, ignoring event %s", dir, event)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	socket, err := cfg.SocketFile()
	if err != nil {
		return err
	}

	resp, err := hookipc.NewClient(socket).Send(hookipc.HookMessage{
		EventName: event,
		JobID:     job,
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("daemon rejected event: %s", resp.Message)
	}
	return nil
}
