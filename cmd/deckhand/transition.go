package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deckhand-dev/deckhand/internal/labels"
	"github.com/deckhand-dev/deckhand/internal/tracker"
	"github.com/deckhand-dev/deckhand/internal/types"
)

var transitionCmd = &cobra.Command{
	Use:   "transition <issue> <state|none>",
	Short: "Move an issue to another lifecycle state",
	Long: `Change the lifecycle labels of an issue by hand.

States: entry, provisioning, awaiting-input, active, completed, released.
The transition is validated against the lifecycle table unless --force is
given. The special state "none" strips every lifecycle label, removing
the issue from deckhand's care entirely.

Examples:
  deckhand transition 42 completed
  deckhand transition 42 none
  deckhand transition 42 entry --force`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		number, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || number <= 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid issue number %q\n", args[0])
			os.Exit(1)
		}

		cfg := loadValidConfig()
		ctx := context.Background()

		tc := tracker.NewClient(cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.Token())
		machine := labels.NewMachine(tc, cfg.Labels)

		green := color.New(color.FgGreen).SprintFunc()

		if strings.EqualFold(args[1], "none") {
			if err := machine.Clear(ctx, number); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Issue #%d is no longer managed by deckhand\n", green("✓"), number)
			return
		}

		target, err := types.ParseState(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if force {
			if err := machine.Set(ctx, number, target); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Issue #%d forced to %s\n", green("✓"), number, target)
			return
		}

		current, tracked, err := machine.CurrentState(ctx, number)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// An untracked issue has no current state to validate against, so
		// any state may be applied directly. This is how an issue is handed
		// to deckhand in the first place.
		if !tracked {
			if err := machine.Set(ctx, number, target); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s Issue #%d entered lifecycle at %s\n", green("✓"), number, target)
			return
		}

		if err := machine.Transition(ctx, number, current, target); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if next := current.ValidNext(); len(next) > 0 {
				opts := make([]string, len(next))
				for i, s := range next {
					opts[i] = string(s)
				}
				fmt.Fprintf(os.Stderr, "Valid transitions from %s: %s (or --force)\n", current, strings.Join(opts, ", "))
			} else {
				fmt.Fprintf(os.Stderr, "%s is terminal; use --force or 'none'\n", current)
			}
			os.Exit(1)
		}
		fmt.Printf("%s Issue #%d: %s -> %s\n", green("✓"), number, current, target)
	},
}

func init() {
	transitionCmd.Flags().Bool("force", false, "Skip lifecycle table validation")
	rootCmd.AddCommand(transitionCmd)
}
