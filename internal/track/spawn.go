package track

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Child is a real subprocess started through the tracker.
type Child struct {
	cmd     *exec.Cmd
	tracker *Tracker

	waitErr chan error
}

// Start launches a real subprocess and records it with the tracker. The
// child runs as its own process-group leader so that termination can reach
// its descendants, and its exit is observed so the tracker's entry reflects
// reality even when nobody calls Wait.
func (t *Tracker) Start(ctx context.Context, name string, args ...string) (*Child, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return t.StartCommand(cmd)
}

// StartCommand launches a prepared command and records it with the tracker.
// The command must not have been started yet.
func (t *Tracker) StartCommand(cmd *exec.Cmd) (*Child, error) {
	if cmd.Process != nil {
		return nil, fmt.Errorf("command %s already started", cmd.Path)
	}
	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	pid := cmd.Process.Pid
	t.Track(pid, ProcessInfo{
		ParentPID:       os.Getpid(),
		Command:         strings.Join(cmd.Args, " "),
		OwnProcessGroup: true,
	})
	t.MarkRunning(pid)

	child := &Child{
		cmd:     cmd,
		tracker: t,
		waitErr: make(chan error, 1),
	}
	go func() {
		err := cmd.Wait()
		t.ObserveExit(pid)
		child.waitErr <- err
		close(child.waitErr)
	}()
	return child, nil
}

// Pid returns the child's process ID.
func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Wait blocks until the child exits or the context is cancelled.
func (c *Child) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-c.waitErr:
		if !ok {
			return nil
		}
		return err
	}
}
