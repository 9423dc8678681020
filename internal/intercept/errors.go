package intercept

import (
	"fmt"
	"strings"
)

// UnregisteredCommandError reports an intercepted invocation with no
// registered mock while strict mode is enabled.
type UnregisteredCommandError struct {
	Executable string
	Argv       []string
}

func (e *UnregisteredCommandError) Error() string {
	return fmt.Sprintf("no mock registered for command %q (argv: [%s])",
		e.Executable, strings.Join(e.Argv, " "))
}

// ExitError reports a collected invocation that finished with a non-zero
// exit code or a terminating signal. It carries everything a real failed
// invocation would surface: the code, the reconstructed command line and
// both output buffers.
type ExitError struct {
	Code        *int
	Signal      string
	CommandLine string
	Stdout      []byte
	Stderr      []byte
}

func (e *ExitError) Error() string {
	var sb strings.Builder
	if e.Signal != "" {
		fmt.Fprintf(&sb, "command %q terminated by signal %s", e.CommandLine, e.Signal)
	} else {
		code := -1
		if e.Code != nil {
			code = *e.Code
		}
		fmt.Fprintf(&sb, "command %q exited with code %d", e.CommandLine, code)
	}
	if len(e.Stderr) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.TrimSpace(string(e.Stderr)))
	}
	return sb.String()
}

// ExitCode returns the exit code and whether one exists. Signal-terminated
// invocations have no exit code.
func (e *ExitError) ExitCode() (int, bool) {
	if e.Code == nil {
		return 0, false
	}
	return *e.Code, true
}
