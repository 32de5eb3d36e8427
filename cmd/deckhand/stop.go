package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Gracefully stop the running daemon",
	Long: `Stop the daemon recorded in the PID file.

Sends SIGTERM and waits for the process to exit, escalating to SIGKILL
after the timeout. Stale PID files left by a crashed daemon are cleaned
up. Agents keep running in their tmux windows; stopping the daemon only
stops provisioning and label updates.`,
	Run: func(cmd *cobra.Command, args []string) {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		force, _ := cmd.Flags().GetBool("force")

		cfg := loadConfig()
		pidFile, err := cfg.PIDFile()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()

		pid := readPIDFile(pidFile)
		if pid == 0 {
			fmt.Printf("%s No running daemon found\n", yellow("ℹ"))
			return
		}
		if !processExists(pid) {
			fmt.Printf("%s Daemon not running (stale PID file)\n", yellow("⚠"))
			_ = os.Remove(pidFile)
			fmt.Printf("%s PID file cleaned up\n", green("✓"))
			return
		}

		if force {
			fmt.Printf("Sending SIGKILL to PID %d...\n", pid)
			if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to send SIGKILL: %v\n", err)
				os.Exit(1)
			}
		} else {
			fmt.Printf("Sending SIGTERM to PID %d...\n", pid)
			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to send SIGTERM: %v\n", err)
				os.Exit(1)
			}
		}

		if err := waitForProcessExit(pid, timeout); err != nil {
			fmt.Printf("%s Graceful shutdown timeout after %s\n", yellow("⚠"), timeout)
			fmt.Printf("Sending SIGKILL...\n")
			if killErr := syscall.Kill(pid, syscall.SIGKILL); killErr != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to send SIGKILL: %v\n", killErr)
				os.Exit(1)
			}
			if waitErr := waitForProcessExit(pid, 5*time.Second); waitErr != nil {
				fmt.Fprintf(os.Stderr, "Error: process did not exit even after SIGKILL\n")
				os.Exit(1)
			}
		}

		// The daemon removes its own PID file on clean exit; clean up after
		// a SIGKILL.
		if readPIDFile(pidFile) == pid {
			_ = os.Remove(pidFile)
		}

		fmt.Printf("%s Daemon stopped\n", green("✓"))
	},
}

func init() {
	stopCmd.Flags().Duration("timeout", 30*time.Second, "Timeout for graceful shutdown before force kill")
	stopCmd.Flags().Bool("force", false, "Immediately send SIGKILL instead of SIGTERM")
	rootCmd.AddCommand(stopCmd)
}
