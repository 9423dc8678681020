// Package leash is the in-process execution control layer for test suites.
// Importing it gives a test access to a process-wide mock registry and the
// intercepted invocation entry points bound to it: commands run through
// leash never reach the operating system, they resolve against registered
// behaviors instead.
//
// The registry is shared with the legacy execshim package. A behavior
// registered through either package is visible through both, so mixed-era
// test code still agrees on what a command does.
package leash

import (
	"context"

	"github.com/Paintersrp/leash/internal/intercept"
	"github.com/Paintersrp/leash/internal/mock"
)

// Behavior describes what an emulated command invocation does.
type Behavior = mock.Behavior

// ID identifies a registration for later removal.
type ID = mock.ID

// Registration pairs a matcher with the behavior it produces.
type Registration = mock.Registration

// Matcher selects the invocations a registered behavior applies to.
type Matcher = mock.Matcher

// Proc is the live handle returned by the streaming entry points.
type Proc = intercept.Proc

// Status is the terminal state of an emulated process.
type Status = intercept.Status

// Result is the output of a collect-to-completion invocation.
type Result = intercept.Result

// ExitError reports a non-zero exit or a terminating signal from a
// collect-to-completion invocation.
type ExitError = intercept.ExitError

// UnregisteredCommandError reports an intercepted invocation with no
// registered behavior while strict mode is on.
type UnregisteredCommandError = intercept.UnregisteredCommandError

// Exact returns a matcher for an identical executable and argument vector.
func Exact(executable string, argv ...string) Matcher {
	return mock.Exact(executable, argv...)
}

// Prefix returns a matcher for invocations of the executable whose arguments
// start with the given ones.
func Prefix(executable string, argv ...string) Matcher {
	return mock.Prefix(executable, argv...)
}

// Pattern returns a matcher applying a regular expression to the
// reconstructed command line. A malformed expression fails here, at
// registration time.
func Pattern(expr string) (Matcher, error) {
	return mock.Pattern(expr)
}

// MustPattern is like Pattern but panics on a malformed expression.
func MustPattern(expr string) Matcher {
	return mock.MustPattern(expr)
}

// Register adds a behavior to the shared registry.
func Register(m Matcher, b Behavior) (ID, error) {
	return mock.Default().Register(m, b)
}

// RegisterMany registers a batch of matcher/behavior pairs atomically: a
// malformed entry rejects the whole batch.
func RegisterMany(regs []Registration) ([]ID, error) {
	return mock.Default().RegisterMany(regs)
}

// Unregister removes one registration. It reports whether anything was
// removed.
func Unregister(id ID) bool {
	return mock.Default().Unregister(id)
}

// Clear removes every registration. Call at per-test boundaries.
func Clear() {
	mock.Default().Clear()
}

// Find resolves the behavior an invocation would receive, without running
// anything. The boolean result is false when nothing matches.
func Find(executable string, argv ...string) (Behavior, *Registration, bool) {
	return mock.Default().Find(executable, argv)
}

// Module returns the process-wide interception module. It is constructed
// during package initialization, before any test code runs.
func Module() *intercept.Module {
	return intercept.Default()
}

// Spawn runs an emulated command through the streaming entry point.
func Spawn(ctx context.Context, executable string, argv ...string) (*Proc, error) {
	return intercept.Default().Spawn(ctx, executable, argv...)
}

// Fork launches a script path as an emulated child. For matching purposes
// the script is the executable.
func Fork(ctx context.Context, script string, argv ...string) (*Proc, error) {
	return intercept.Default().Fork(ctx, script, argv...)
}

// ExecFile runs an emulated invocation to completion and returns the
// collected output.
func ExecFile(ctx context.Context, executable string, argv ...string) (*Result, error) {
	return intercept.Default().ExecFile(ctx, executable, argv...)
}

// Shell runs a whole command line to completion. The line is split with
// POSIX shell word rules before matching.
func Shell(ctx context.Context, commandLine string) (*Result, error) {
	return intercept.Default().Shell(ctx, commandLine)
}

// ShellSync is the synchronous form of Shell, resolved inline with no
// goroutines.
func ShellSync(commandLine string) (*Result, error) {
	return intercept.Default().ShellSync(commandLine)
}
