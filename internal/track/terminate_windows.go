//go:build windows

package track

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// Alive reports whether a process with the given pid exists. Windows may
// report stale pids as alive until the handle is reaped; callers treat the
// answer as best effort.
func Alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || !errors.Is(err, os.ErrProcessDone)
}

// ForceKillPID kills a process outright with no graceful phase.
func ForceKillPID(_ context.Context, pid int) Result {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return Result{PID: pid, Outcome: OutcomeAlreadyDead}
	}
	if err := proc.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return Result{PID: pid, Outcome: OutcomeAlreadyDead}
		}
		return Result{PID: pid, Outcome: OutcomeFailed, Err: fmt.Errorf("kill pid %d: %w", pid, err)}
	}
	return Result{PID: pid, Outcome: OutcomeKilledForced}
}

// TerminatePID offers best-effort semantics on Windows: an interrupt first,
// then Kill on the top-level process. Without kernel job objects any
// grandchildren may survive and are left to the signature sweep.
func TerminatePID(ctx context.Context, pid int, timeout time.Duration, _ bool) Result {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return Result{PID: pid, Outcome: OutcomeAlreadyDead}
	}

	if err := proc.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return Result{PID: pid, Outcome: OutcomeAlreadyDead}
		}
	}

	select {
	case <-time.After(timeout):
	case <-ctx.Done():
	}

	if err := proc.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return Result{PID: pid, Outcome: OutcomeKilledGraceful}
		}
		return Result{PID: pid, Outcome: OutcomeFailed, Err: fmt.Errorf("kill pid %d: %w", pid, err)}
	}
	return Result{PID: pid, Outcome: OutcomeKilledForced}
}
