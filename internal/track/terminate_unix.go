//go:build !windows

package track

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"
)

const (
	pollInterval = 25 * time.Millisecond

	// How long to wait for the kernel to tear the process down after a
	// forceful kill before declaring failure.
	forcedWait = 2 * time.Second
)

// Alive reports whether a process with the given pid exists. An EPERM
// response still means the process exists, just owned by someone else.
func Alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// TerminatePID sends a graceful termination signal, waits up to timeout for
// the process to exit, and escalates to a forceful kill only if it is still
// alive. It never escalates immediately; well-behaved processes get the
// chance to flush and exit cleanly. "Process already gone" at any step is
// success, not an error.
//
// When processGroup is set the signals target the whole process group, which
// requires the pid to be a group leader.
func TerminatePID(ctx context.Context, pid int, timeout time.Duration, processGroup bool) Result {
	target := pid
	if processGroup {
		target = -pid
	}

	if !Alive(pid) {
		return Result{PID: pid, Outcome: OutcomeAlreadyDead}
	}

	if err := syscall.Kill(target, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return Result{PID: pid, Outcome: OutcomeAlreadyDead}
		}
		return Result{PID: pid, Outcome: OutcomeFailed, Err: fmt.Errorf("signal pid %d: %w", pid, err)}
	}

	if waitGone(ctx, pid, timeout) {
		return Result{PID: pid, Outcome: OutcomeKilledGraceful}
	}

	if err := syscall.Kill(target, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return Result{PID: pid, Outcome: OutcomeKilledGraceful}
		}
		return Result{PID: pid, Outcome: OutcomeFailed, Err: fmt.Errorf("kill pid %d: %w", pid, err)}
	}

	if waitGone(ctx, pid, forcedWait) {
		return Result{PID: pid, Outcome: OutcomeKilledForced}
	}
	return Result{PID: pid, Outcome: OutcomeFailed, Err: fmt.Errorf("pid %d still alive after SIGKILL", pid)}
}

// ForceKillPID kills a process outright with no graceful phase. This is the
// emergency path; everything else goes through TerminatePID.
func ForceKillPID(ctx context.Context, pid int) Result {
	if !Alive(pid) {
		return Result{PID: pid, Outcome: OutcomeAlreadyDead}
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return Result{PID: pid, Outcome: OutcomeAlreadyDead}
		}
		return Result{PID: pid, Outcome: OutcomeFailed, Err: fmt.Errorf("kill pid %d: %w", pid, err)}
	}
	if waitGone(ctx, pid, forcedWait) {
		return Result{PID: pid, Outcome: OutcomeKilledForced}
	}
	return Result{PID: pid, Outcome: OutcomeFailed, Err: fmt.Errorf("pid %d still alive after SIGKILL", pid)}
}

// waitGone polls for process death until the timeout expires. Context
// cancellation cuts the wait short; the caller still re-checks liveness.
func waitGone(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if !Alive(pid) {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return !Alive(pid)
		case <-ctx.Done():
			return !Alive(pid)
		}
	}
}
