package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the daemon log",
	Long:  `Page the daemon log file with tail. Use -f to follow live output.`,
	Run: func(cmd *cobra.Command, args []string) {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")

		cfg := loadConfig()
		logFile, err := cfg.LogFile()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if _, err := os.Stat(logFile); err != nil {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s No log file at %s (has the daemon run?)\n", yellow("ℹ"), logFile)
			return
		}

		tailPath, err := exec.LookPath("tail")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: tail not found in PATH\n")
			os.Exit(1)
		}

		argv := []string{"tail", "-n", strconv.Itoa(lines)}
		if follow {
			argv = append(argv, "-f")
		}
		argv = append(argv, logFile)

		if err := syscall.Exec(tailPath, argv, os.Environ()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to exec tail: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "Follow the log as it grows")
	logsCmd.Flags().IntP("lines", "n", 50, "Number of trailing lines to show")
	rootCmd.AddCommand(logsCmd)
}
