package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deckhand-dev/deckhand/internal/hooks"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage agent hook settings",
	Long: `Inspect and install the hook configuration deckhand places in
each worktree so the agent reports lifecycle events back to the daemon.

The daemon installs hooks automatically when it provisions an issue;
these commands exist for debugging and for wiring up a directory by hand.`,
}

var hooksGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print the hook settings JSON",
	Run: func(cmd *cobra.Command, args []string) {
		out, err := hooks.SettingsJSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(out)
	},
}

var hooksInstallCmd = &cobra.Command{
	Use:   "install [dir]",
	Short: "Install hook settings and slash commands into a directory",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		if err := hooks.Install(dir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Wrote %s\n", green("✓"), filepath.Join(dir, ".claude", "settings.json"))
		fmt.Printf("%s Wrote %d commands to %s\n", green("✓"),
			len(hooks.CommandNames()), filepath.Join(dir, ".claude", "commands"))
	},
}

func init() {
	hooksCmd.AddCommand(hooksGenerateCmd)
	hooksCmd.AddCommand(hooksInstallCmd)
	rootCmd.AddCommand(hooksCmd)
}
