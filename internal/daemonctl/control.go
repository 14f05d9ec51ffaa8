// Package daemonctl inspects and stops a running saucetag daemon from
// another process, using the instance lock and the pid file in state_dir.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"saucetag/internal/config"
)

const pollInterval = 100 * time.Millisecond

// ErrDaemonNotRunning indicates no process holds the instance lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// ProcessState describes the daemon as seen from outside.
type ProcessState struct {
	Running bool
	PID     int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Inspect reports whether a daemon holds the lock, and its pid when the pid
// file is readable.
func Inspect(cfg *config.Config) (ProcessState, error) {
	held, err := lockHeld(cfg.LockPath())
	if err != nil {
		return ProcessState{}, err
	}
	if !held {
		return ProcessState{}, nil
	}
	pid, err := readPID(cfg.PIDPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ProcessState{Running: true}, err
	}
	return ProcessState{Running: true, PID: pid}, nil
}

// Stop sends SIGTERM and waits up to gracePeriod for the lock to be
// released. A daemon still holding the lock afterwards is killed.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	state, err := Inspect(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !state.Running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if state.PID <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", cfg.PIDPath())
	}
	if state.PID == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", state.PID)
	}

	result := StopResult{PID: state.PID}
	proc, err := os.FindProcess(state.PID)
	if err != nil {
		return result, fmt.Errorf("locate daemon process %d: %w", state.PID, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil && !processGone(err) {
		return result, fmt.Errorf("signal daemon process %d: %w", state.PID, err)
	}
	if waitForRelease(cfg.LockPath(), gracePeriod) {
		return result, nil
	}

	if err := proc.Kill(); err != nil && !processGone(err) {
		return result, fmt.Errorf("kill daemon process %d: %w", state.PID, err)
	}
	if err := os.Remove(cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file: %w", err)
	}
	result.ForcedKill = true
	return result, nil
}

func processGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}

func waitForRelease(lockPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		held, err := lockHeld(lockPath)
		if err == nil && !held {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

func lockHeld(lockPath string) (bool, error) {
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}
