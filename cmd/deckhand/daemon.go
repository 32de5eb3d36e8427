package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// writePIDFile records pid for later stop/status commands.
func writePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// readPIDFile returns the recorded PID, or 0 when the file is missing or
// unparseable.
func readPIDFile(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// processExists checks if a process with the given PID exists.
func processExists(pid int) bool {
	// Signal 0 probes for existence without delivering anything.
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil
}

// livePID returns the PID of the running daemon, or 0. A PID file left
// behind by a crashed daemon is removed.
func livePID(pidFile string) int {
	pid := readPIDFile(pidFile)
	if pid == 0 {
		return 0
	}
	if !processExists(pid) {
		_ = os.Remove(pidFile)
		return 0
	}
	return pid
}

// waitForProcessExit waits for a process to exit, with timeout.
func waitForProcessExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processExists(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for process %d to exit", pid)
}

// stripDaemonFlag removes --daemon/-d from an argument list so the
// re-executed child runs in the foreground.
func stripDaemonFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--daemon" || a == "-d" {
			continue
		}
		out = append(out, a)
	}
	return out
}
