package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"firestige.xyz/netanalyzer/internal/command"
	"firestige.xyz/netanalyzer/internal/core"
)

// readyPollInterval is how often Spawn and StopDaemon re-check the daemon.
const readyPollInterval = 100 * time.Millisecond

// ReadPIDFile returns the process ID recorded in pidFile.
func ReadPIDFile(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s: %q", pidFile, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// processAlive reports whether pid exists, using the null signal.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// StopDaemon sends SIGTERM to the daemon recorded in pidFile and waits up
// to timeout for it to exit. The daemon flushes its report before exiting.
func StopDaemon(pidFile string, timeout time.Duration) error {
	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return core.ErrDaemonNotRunning
		}
		return err
	}
	if !processAlive(pid) {
		os.Remove(pidFile)
		return core.ErrDaemonNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal daemon %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(readyPollInterval)
	}
	return fmt.Errorf("daemon %d did not exit within %s", pid, timeout)
}

// Spawn starts the current executable detached in a new session with args,
// appending its output to logPath, and waits up to timeout for the control
// socket to answer.
func Spawn(args []string, socketPath, logPath string, timeout time.Duration) (int, error) {
	execPath, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to locate executable: %w", err)
	}

	cmd := exec.Command(execPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, fmt.Errorf("failed to open daemon log: %w", err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := cmd.Process.Pid

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if err := WaitReady(socketPath, timeout, exited); err != nil {
		return pid, err
	}
	return pid, nil
}

// WaitReady polls the control socket until it answers, the process exits
// (when exited is non-nil) or timeout elapses.
func WaitReady(socketPath string, timeout time.Duration, exited <-chan error) error {
	client := command.NewUDSClient(socketPath, time.Second)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := client.Ping(context.Background()); err == nil {
			return nil
		}
		select {
		case err := <-exited:
			return fmt.Errorf("daemon exited during startup: %v", err)
		case <-time.After(readyPollInterval):
		}
	}
	return fmt.Errorf("daemon started but socket %s not ready", socketPath)
}
