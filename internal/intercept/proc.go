package intercept

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/mock"
)

// Synthetic PIDs start far above real PID ranges so emulated processes can
// never be confused with (or signalled as) real ones. The counter only
// increases; a PID is never reused within a session.
const syntheticPIDBase = 1 << 26

var pidCounter atomic.Int64

func init() {
	pidCounter.Store(syntheticPIDBase)
}

func nextPID() int {
	return int(pidCounter.Add(1))
}

// Status is the terminal state of an emulated process. Code is nil exactly
// when the process was terminated by a signal; a normally exited process
// always carries a code and an empty signal.
type Status struct {
	Code   *int
	Signal string
}

// Exited reports whether the process exited normally (with any code) rather
// than being terminated by a signal.
func (s Status) Exited() bool {
	return s.Signal == ""
}

func statusFor(b mock.Behavior) Status {
	if b.Signal != "" {
		return Status{Signal: b.Signal}
	}
	code := b.ExitCode
	return Status{Code: &code}
}

// Proc is an emulated child process handle. It mimics a real handle: a
// synthetic PID, readable output and error streams, a completion event, and
// signal-versus-exit-code semantics driven by the registered behavior.
//
// Output is emitted asynchronously after the constructor returns, so a
// caller that attaches to the streams immediately after Spawn observes every
// byte.
type Proc struct {
	pid     int
	cmdline string

	stdout *stream
	stderr *stream
	stdin  io.WriteCloser

	done   chan struct{}
	status Status

	errMu       sync.Mutex
	errAttached bool
	errCh       chan error

	log *silog.Logger
}

func newProc(cmdline string, log *silog.Logger) *Proc {
	return &Proc{
		pid:     nextPID(),
		cmdline: cmdline,
		stdout:  newStream(),
		stderr:  newStream(),
		stdin:   discardCloser{},
		done:    make(chan struct{}),
		log:     log,
	}
}

// run emits the behavior's output and completion. It is started in its own
// goroutine after the handle has been handed to the caller.
func (p *Proc) run(ctx context.Context, b mock.Behavior) {
	if b.Delay > 0 {
		timer := time.NewTimer(b.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	if b.Err != nil {
		p.emitError(b.Err)
	}
	if b.Stdout != "" {
		io.WriteString(p.stdout, b.Stdout)
	}
	if b.Stderr != "" {
		io.WriteString(p.stderr, b.Stderr)
	}
	p.stdout.Close()
	p.stderr.Close()

	p.status = statusFor(b)
	close(p.done)
}

// Pid returns the synthetic process ID.
func (p *Proc) Pid() int {
	return p.pid
}

// CommandLine returns the reconstructed command line of the invocation.
func (p *Proc) CommandLine() string {
	return p.cmdline
}

// Stdout returns the process output stream.
func (p *Proc) Stdout() io.Reader {
	return p.stdout
}

// Stderr returns the process error stream.
func (p *Proc) Stderr() io.Reader {
	return p.stderr
}

// Stdin returns the process input stream. Emulated processes discard input.
func (p *Proc) Stdin() io.WriteCloser {
	return p.stdin
}

// Done is closed once the process has completed and both streams have been
// closed. Read the status with Wait afterwards.
func (p *Proc) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process completes and returns its terminal status.
func (p *Proc) Wait() Status {
	<-p.done
	return p.status
}

// Errors returns a channel delivering spawn-level errors. Attaching the
// channel opts in to error delivery; an error emitted while no listener is
// attached is logged at debug level and suppressed rather than surfaced
// somewhere unrelated.
func (p *Proc) Errors() <-chan error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.errCh == nil {
		p.errCh = make(chan error, 1)
		p.errAttached = true
	}
	return p.errCh
}

func (p *Proc) emitError(err error) {
	p.errMu.Lock()
	attached := p.errAttached
	ch := p.errCh
	p.errMu.Unlock()

	if !attached {
		p.log.Debug("suppressing error event with no listener",
			"pid", p.pid, "cmd", p.cmdline, "error", err)
		return
	}
	select {
	case ch <- err:
	default:
		p.log.Debug("error channel full, dropping error event",
			"pid", p.pid, "cmd", p.cmdline, "error", err)
	}
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }
