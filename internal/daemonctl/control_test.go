package daemonctl

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"saucetag/internal/config"
	"saucetag/internal/testsupport"
)

// fakeDaemon starts a sleeping child, records its pid, and holds the lock
// on its behalf until the child exits (or forever, when release is false).
func fakeDaemon(t *testing.T, cfg *config.Config, release bool) *exec.Cmd {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock ok=%v err=%v", ok, err)
	}

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start child: %v", err)
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(cmd.Process.Pid)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		if release {
			_ = lock.Unlock()
		}
		close(exited)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-exited
		_ = lock.Unlock()
	})
	return cmd
}

func TestInspectNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	state, err := Inspect(cfg)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if state.Running {
		t.Fatal("expected no daemon")
	}
	if _, err := Stop(cfg, time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("Stop err = %v, want ErrDaemonNotRunning", err)
	}
}

func TestInspectReportsPID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cmd := fakeDaemon(t, cfg, true)

	state, err := Inspect(cfg)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !state.Running || state.PID != cmd.Process.Pid {
		t.Fatalf("state = %+v, want running pid %d", state, cmd.Process.Pid)
	}
}

func TestStopGraceful(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cmd := fakeDaemon(t, cfg, true)

	res, err := Stop(cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.ForcedKill || res.PID != cmd.Process.Pid {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestStopForcesKillWhenLockNotReleased(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fakeDaemon(t, cfg, false)

	res, err := Stop(cfg, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !res.ForcedKill {
		t.Fatalf("expected forced kill, got %+v", res)
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatal("pid file should be removed after a forced kill")
	}
}
