// Package pidfile manages the single PID file that makes bal a
// single-instance daemon: writing it on start, checking it for stop and
// graceful-reload dispatch, and cleaning it up on normal exit.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Path returns the PID file location under the user's home directory,
// creating its parent runtime directory if needed.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".bal")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create runtime directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "bal.pid"), nil
}

// Guard owns the lifetime of the PID file for the running daemon process.
// Release removes it; the foreground start command defers Release so the
// file is cleaned up on every return path out of the daemon, matching the
// original_source PidFileGuard's RAII drop.
type Guard struct {
	path string
}

// Acquire writes the current process's PID to the PID file. If the file
// already names a process that is still alive, it refuses — bal only ever
// runs as a single instance. A PID file left behind by a process that has
// since died is treated as stale and silently replaced.
func Acquire() (*Guard, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	if existing, err := Read(path); err == nil {
		if IsRunning(existing) {
			return nil, fmt.Errorf("bal is already running (pid %d); run 'bal stop' first", existing)
		}
		_ = os.Remove(path)
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file %s: %w", path, err)
	}
	return &Guard{path: path}, nil
}

// Release removes the PID file. Safe to call more than once.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file %s: %w", g.path, err)
	}
	return nil
}

// Read parses the PID recorded at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pid file %s has invalid content: %w", path, err)
	}
	return pid, nil
}

// IsRunning reports whether pid names a live process, using signal 0 —
// which the kernel delivers to no one, only reporting whether the target
// exists and is reachable.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Send signals the daemon named by the PID file with sig, returning an
// error if no PID file exists or the named process is not running (and
// cleaning up the stale file in that case).
func Send(sig syscall.Signal) error {
	path, err := Path()
	if err != nil {
		return err
	}
	pid, err := Read(path)
	if err != nil {
		return fmt.Errorf("bal is not running: %w", err)
	}
	if !IsRunning(pid) {
		_ = os.Remove(path)
		return fmt.Errorf("bal is not running (stale pid file removed)")
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(sig)
}
