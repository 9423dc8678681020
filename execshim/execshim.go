// Package execshim is the legacy import path for the interception layer.
// Older suites import it under this name; it delegates to the same
// process-wide registry and module as the leash root package, so both
// generations of test code observe one set of registered behaviors.
//
// New code should import the root package instead.
package execshim

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

// Result is the output of a collect-to-completion invocation.
type Result = intercept.Result

// Exact returns a matcher for an identical executable and argument vector.
func Exact(executable string, argv ...string) Matcher {
	return mock.Exact(executable, argv...)
}

// Prefix returns a matcher for invocations of the executable whose arguments
// start with the given ones.
func Prefix(executable string, argv ...string) Matcher {
	return mock.Prefix(executable, argv...)
}

// MustPattern returns a matcher applying a regular expression to the
// reconstructed command line, panicking on a malformed expression.
func MustPattern(expr string) Matcher {
	return mock.MustPattern(expr)
}

// Register adds a behavior to the shared registry.
func Register(m Matcher, b Behavior) (ID, error) {
	return mock.Default().Register(m, b)
}

// Unregister removes one registration. It reports whether anything was
// removed.
func Unregister(id ID) bool {
	return mock.Default().Unregister(id)
}

// Clear removes every registration.
func Clear() {
	mock.Default().Clear()
}

// Spawn runs an emulated command through the streaming entry point.
func Spawn(ctx context.Context, executable string, argv ...string) (*Proc, error) {
	return intercept.Default().Spawn(ctx, executable, argv...)
}

// ExecFile runs an emulated invocation to completion and returns the
// collected output.
func ExecFile(ctx context.Context, executable string, argv ...string) (*Result, error) {
	return intercept.Default().ExecFile(ctx, executable, argv...)
}

// Shell runs a whole command line to completion.
func Shell(ctx context.Context, commandLine string) (*Result, error) {
	return intercept.Default().Shell(ctx, commandLine)
}

// ShellSync is the synchronous form of Shell.
func ShellSync(commandLine string) (*Result, error) {
	return intercept.Default().ShellSync(commandLine)
}
