package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deckhand-dev/deckhand/internal/tmux"
)

var attachCmd = &cobra.Command{
	Use:   "attach [issue]",
	Short: "Attach to the deckhand tmux session",
	Long: `Replace this process with a tmux attach on the deckhand session.
With an issue number, the matching job window is focused first.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var job int64
		if len(args) == 1 {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || n <= 0 {
				fmt.Fprintf(os.Stderr, "Error: invalid issue number %q\n", args[0])
				os.Exit(1)
			}
			job = n
		}

		cfg := loadConfig()
		ctx := context.Background()

		tm, err := tmux.NewManager(ctx, cfg.Tmux.SessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := tm.EnsureSession(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		path, argv, err := tm.AttachCommand(ctx, job)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := syscall.Exec(path, argv, os.Environ()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to exec tmux: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
