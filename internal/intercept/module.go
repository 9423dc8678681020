// Package intercept produces the replacement implementations of every
// subprocess-invocation entry point. A Module is fully constructed by New
// before it is handed to any consumer, closed over a single behavior
// registry; there is no after-the-fact patching of individual entry points,
// so every caller observes the intercepted versions from first use onward.
package intercept

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/buildkite/shellwords"
	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/metrics"
	"github.com/Paintersrp/leash/internal/mock"
)

// Options configures a Module.
type Options struct {
	// Strict makes invocations with no registered mock fail with an
	// UnregisteredCommandError instead of degrading to Default.
	Strict bool

	// Default is the behavior used for unregistered commands when Strict
	// is off. The zero value (empty output, exit 0) matches the lenient
	// policy: a missing mock degrades a test's assertions instead of
	// crashing the run.
	Default mock.Behavior

	// Logger receives interception diagnostics. Nil means no logging.
	Logger *silog.Logger
}

// Module bundles the intercepted invocation entry points. All of them
// consult the same registry that the module was constructed with.
type Module struct {
	reg    *mock.Registry
	strict bool
	def    mock.Behavior
	log    *silog.Logger
}

// New constructs a module bound to the given registry. The returned module
// owns every entry point together; callers must construct it before any
// consumer code runs so that no consumer can observe a real implementation.
func New(reg *mock.Registry, opts Options) *Module {
	log := opts.Logger
	if log == nil {
		log = silog.Nop()
	}
	return &Module{
		reg:    reg,
		strict: opts.Strict,
		def:    opts.Default,
		log:    log,
	}
}

// Registry returns the registry this module consults.
func (m *Module) Registry() *mock.Registry {
	return m.reg
}

// resolve looks up the behavior for an invocation. A missing registration is
// logged loudly enough to be caught in review and, unless strict mode is on,
// degrades to the module's default behavior.
func (m *Module) resolve(executable string, argv []string) (mock.Behavior, error) {
	b, reg, ok := m.reg.Find(executable, argv)
	if ok {
		metrics.IncMockMatch(mock.TierName(reg.Matcher))
		m.log.Debug("mock resolved",
			"executable", executable, "matcher", reg.Matcher.String())
		return b, nil
	}

	metrics.IncUnregisteredCommand()
	m.log.Warn("no mock registered for intercepted command",
		"executable", executable, "argv", argv)
	if m.strict {
		return mock.Behavior{}, &UnregisteredCommandError{
			Executable: executable,
			Argv:       append([]string(nil), argv...),
		}
	}
	return m.def, nil
}

// Spawn is the streaming entry point: it returns a live handle immediately
// and emits output asynchronously. Output emission starts only after Spawn
// returns, so a reader attached right away observes every byte.
func (m *Module) Spawn(ctx context.Context, executable string, argv ...string) (*Proc, error) {
	b, err := m.resolve(executable, argv)
	if err != nil {
		return nil, err
	}
	p := newProc(mock.CommandLine(executable, argv), m.log)
	go p.run(ctx, b)
	return p, nil
}

// Fork is the module-spawn entry point: it launches a script path as a
// child. For matching purposes the script is the executable; the handle
// behaves exactly like one returned by Spawn.
func (m *Module) Fork(ctx context.Context, script string, argv ...string) (*Proc, error) {
	return m.Spawn(ctx, script, argv...)
}

// Result is the output of a collect-to-completion invocation.
type Result struct {
	Stdout []byte
	Stderr []byte
	Status Status
}

// ExecFile is the collect-to-completion entry point: it runs the invocation
// to completion and returns the collected output. A non-zero exit code or a
// terminating signal yields an *ExitError carrying the code, the command
// line and both buffers.
func (m *Module) ExecFile(ctx context.Context, executable string, argv ...string) (*Result, error) {
	b, err := m.resolve(executable, argv)
	if err != nil {
		return nil, err
	}

	p := newProc(mock.CommandLine(executable, argv), m.log)
	// Collect shapes read both streams themselves, so the emitter can
	// never stall on an unread pipe.
	go p.run(ctx, b)

	stdout, _ := io.ReadAll(p.Stdout())
	stderr, _ := io.ReadAll(p.Stderr())
	status := p.Wait()

	if b.Err != nil {
		return nil, fmt.Errorf("spawn %s: %w", p.CommandLine(), b.Err)
	}
	res := &Result{Stdout: stdout, Stderr: stderr, Status: status}
	if !status.Exited() || *status.Code != 0 {
		return res, &ExitError{
			Code:        status.Code,
			Signal:      status.Signal,
			CommandLine: p.CommandLine(),
			Stdout:      stdout,
			Stderr:      stderr,
		}
	}
	return res, nil
}

// Shell is the collect-to-completion entry point for whole command lines.
// The line is split with POSIX shell word rules before matching.
func (m *Module) Shell(ctx context.Context, commandLine string) (*Result, error) {
	executable, argv, err := splitCommandLine(commandLine)
	if err != nil {
		return nil, err
	}
	return m.ExecFile(ctx, executable, argv...)
}

// ShellSync is the synchronous entry point: the same non-zero-exit-fails
// contract as Shell, resolved inline with no goroutines or channels at all.
func (m *Module) ShellSync(commandLine string) (*Result, error) {
	executable, argv, err := splitCommandLine(commandLine)
	if err != nil {
		return nil, err
	}
	b, err := m.resolve(executable, argv)
	if err != nil {
		return nil, err
	}

	if b.Delay > 0 {
		time.Sleep(b.Delay)
	}
	cmdline := mock.CommandLine(executable, argv)
	if b.Err != nil {
		return nil, fmt.Errorf("spawn %s: %w", cmdline, b.Err)
	}

	status := statusFor(b)
	res := &Result{
		Stdout: []byte(b.Stdout),
		Stderr: []byte(b.Stderr),
		Status: status,
	}
	if !status.Exited() || *status.Code != 0 {
		return res, &ExitError{
			Code:        status.Code,
			Signal:      status.Signal,
			CommandLine: cmdline,
			Stdout:      res.Stdout,
			Stderr:      res.Stderr,
		}
	}
	return res, nil
}

func splitCommandLine(commandLine string) (string, []string, error) {
	words, err := shellwords.SplitPosix(commandLine)
	if err != nil {
		return "", nil, fmt.Errorf("split command line %q: %w", commandLine, err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("empty command line")
	}
	return words[0], words[1:], nil
}
