// Package mock stores emulated subprocess behaviors keyed by command
// matchers. One registration serves every invocation style the interception
// layer offers, so a single Register call covers all the ways a test might
// run the same logical command.
package mock

import (
	"errors"
	"sync"
	"time"
)

// Behavior describes what an emulated invocation does.
type Behavior struct {
	// Stdout and Stderr are written to the corresponding streams.
	Stdout string
	Stderr string

	// ExitCode is reported when Signal is empty.
	ExitCode int

	// Signal, when set, reports a signal-terminated process. A
	// signal-terminated process never reports an exit code.
	Signal string

	// Delay defers completion of the emulated process.
	Delay time.Duration

	// Err, when set, is returned from the invocation instead of an exit
	// status, emulating a spawn failure.
	Err error
}

// ID identifies a registration for later removal.
type ID uint64

// Registration pairs a matcher with the behavior it produces.
type Registration struct {
	ID       ID
	Matcher  Matcher
	Behavior Behavior
}

// Registry holds registered behaviors for a test session. Mutation is
// guarded; lookups are read-only. The zero value is not usable, construct
// with NewRegistry.
type Registry struct {
	mu   sync.Mutex
	next ID
	regs []*Registration
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry shared by every interception
// alias. All aliases must resolve to this one instance so that a behavior
// registered through one is visible through the others.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a behavior under the given matcher and returns its ID.
// A nil matcher is rejected.
func (r *Registry) Register(m Matcher, b Behavior) (ID, error) {
	if m == nil {
		return 0, errors.New("register: matcher must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	reg := &Registration{ID: r.next, Matcher: m, Behavior: b}
	r.regs = append(r.regs, reg)
	return reg.ID, nil
}

// RegisterMany registers a batch of matcher/behavior pairs. All matchers are
// validated before any registration takes effect, so a malformed entry
// rejects the whole batch.
func (r *Registry) RegisterMany(regs []Registration) ([]ID, error) {
	for _, reg := range regs {
		if reg.Matcher == nil {
			return nil, errors.New("registerMany: matcher must not be nil")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]ID, 0, len(regs))
	for _, reg := range regs {
		r.next++
		r.regs = append(r.regs, &Registration{ID: r.next, Matcher: reg.Matcher, Behavior: reg.Behavior})
		ids = append(ids, r.next)
	}
	return ids, nil
}

// Unregister removes the registration with the given ID. It reports whether
// a registration was removed.
func (r *Registry) Unregister(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.regs {
		if reg.ID == id {
			r.regs = append(r.regs[:i], r.regs[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every registration. Intended to run at per-test boundaries.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = nil
}

// Len reports the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}

// Find resolves the behavior for an invocation. Precedence: exact matches
// beat prefix matches beat pattern matches; within a tier the most recent
// registration wins. The boolean result is false when nothing matched; that
// is a normal outcome, not an error, so the interception layer can decide
// default behavior.
func (r *Registry) Find(executable string, argv []string) (Behavior, *Registration, bool) {
	cmdline := CommandLine(executable, argv)

	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Registration
	bestTier := tierPattern + 1
	for i := len(r.regs) - 1; i >= 0; i-- {
		reg := r.regs[i]
		t := reg.Matcher.tier()
		if t >= bestTier {
			continue
		}
		if reg.Matcher.matches(executable, argv, cmdline) {
			best = reg
			bestTier = t
			if bestTier == tierExact {
				break
			}
		}
	}
	if best == nil {
		return Behavior{}, nil, false
	}
	return best.Behavior, best, true
}
