// Package lock keeps a second command-bot process from serving the same
// data directory.
//
// Leftover tasks are recovered by comparing their version with the running
// process, so two processes sharing one store would requeue each other's
// live tasks. The guard only covers processes on the same host.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/paritytech/command-bot-sub000/internal/util"
)

// PIDFileName is the name of the PID file in the data directory.
const PIDFileName = "command-bot.pid"

// PIDGuard records the serving process in a PID file.
type PIDGuard struct {
	dir string
}

// NewPIDGuard creates a guard for dir.
func NewPIDGuard(dir string) *PIDGuard {
	return &PIDGuard{dir: dir}
}

func (g *PIDGuard) pidFilePath() string {
	return filepath.Join(g.dir, PIDFileName)
}

// Check returns an AlreadyRunningError if a live process holds the guard.
// A stale or unreadable PID file is removed.
func (g *PIDGuard) Check() error {
	pidFile := g.pidFilePath()

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		_ = os.Remove(pidFile)
		return nil
	}
	if pid != os.Getpid() && processExists(pid) {
		return &AlreadyRunningError{PID: pid, Dir: g.dir}
	}
	_ = os.Remove(pidFile)
	return nil
}

// Acquire checks the guard and writes the current PID.
func (g *PIDGuard) Acquire() error {
	if err := g.Check(); err != nil {
		return err
	}
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := util.AtomicWriteFile(g.pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file if it still belongs to this process.
func (g *PIDGuard) Release() {
	data, err := os.ReadFile(g.pidFilePath())
	if err != nil {
		return
	}
	if strings.TrimSpace(string(data)) == strconv.Itoa(os.Getpid()) {
		_ = os.Remove(g.pidFilePath())
	}
}

// AlreadyRunningError reports the process holding the guard.
type AlreadyRunningError struct {
	PID int
	Dir string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("command-bot is already serving %s (pid %d)", e.Dir, e.PID)
}

// IsAlreadyRunning reports whether err is an AlreadyRunningError.
func IsAlreadyRunning(err error) bool {
	var target *AlreadyRunningError
	return errors.As(err, &target)
}

// processExists sends signal 0, which only checks for existence.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
