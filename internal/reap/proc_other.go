//go:build !linux

package reap

// Without a /proc-style process table there is nothing safe to enumerate.
// The sweep reports the limitation explicitly instead of pretending an
// empty table means a clean host.
func listProcesses() ([]Process, error) {
	return nil, ErrUnsupported
}
