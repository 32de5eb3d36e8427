package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deckhand-dev/deckhand/internal/tmux"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List job windows in the deckhand session",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx := context.Background()

		tm, err := tmux.NewManager(ctx, cfg.Tmux.SessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		windows, err := tm.ListWindows(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list windows: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(windows) == 0 {
			fmt.Printf("%s No windows in session %q\n", gray("ℹ"), cfg.Tmux.SessionName)
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		for _, w := range windows {
			if n, ok := tmux.JobNumber(w.Name); ok {
				fmt.Printf("  %s %-40s %s\n", cyan(fmt.Sprintf("%2d:", w.Index)), w.Name, gray(fmt.Sprintf("issue #%d", n)))
			} else {
				fmt.Printf("  %s %-40s\n", cyan(fmt.Sprintf("%2d:", w.Index)), w.Name)
			}
		}
		fmt.Printf("\n%s\n", gray("deckhand attach [issue]  # open the session"))
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
