// Package track records every real subprocess spawned during a test session
// and provides graceful-then-forceful termination for them. Entries are
// never silently deleted: they persist until the teardown orchestrator
// acknowledges them, so a crash mid-session still leaves an audit trail.
package track

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/metrics"
)

// State is the lifecycle state of a tracked process.
type State string

const (
	StateSpawned        State = "spawned"
	StateRunning        State = "running"
	StateExited         State = "exited"
	StateKilledGraceful State = "killed-graceful"
	StateKilledForced   State = "killed-forced"
	StateUnknown        State = "unknown"
)

func (s State) terminal() bool {
	switch s {
	case StateExited, StateKilledGraceful, StateKilledForced, StateUnknown:
		return true
	}
	return false
}

// ProcessInfo is the tracker's record of one real subprocess.
type ProcessInfo struct {
	PID       int
	ParentPID int
	Command   string
	StartedAt time.Time
	State     State

	// OwnProcessGroup marks processes started as their own group leader;
	// termination then signals the whole group.
	OwnProcessGroup bool
}

// Outcome classifies the result of a termination attempt.
type Outcome string

const (
	OutcomeAlreadyDead    Outcome = "already-dead"
	OutcomeKilledGraceful Outcome = "killed-graceful"
	OutcomeKilledForced   Outcome = "killed-forced"
	OutcomeFailed         Outcome = "failed"
)

// Result is the per-pid outcome of a termination.
type Result struct {
	PID     int
	Outcome Outcome
	Err     error
}

// Summary aggregates the outcomes of a TerminateAll run.
type Summary struct {
	Results     []Result
	Killed      int
	AlreadyDead int
	Failed      int
}

// Tally folds one result into the summary counts.
func (s *Summary) Tally(res Result) {
	s.Results = append(s.Results, res)
	switch res.Outcome {
	case OutcomeKilledGraceful, OutcomeKilledForced:
		s.Killed++
	case OutcomeAlreadyDead:
		s.AlreadyDead++
	case OutcomeFailed:
		s.Failed++
	}
}

const (
	// DefaultGracefulTimeout bounds how long a process gets to exit after
	// the cooperative signal before escalation.
	DefaultGracefulTimeout = 5 * time.Second

	// defaultWorkers bounds how many terminations run concurrently so a
	// session with very many leaked processes does not issue thousands of
	// simultaneous signal calls.
	defaultWorkers = 4
)

// Options configures a Tracker.
type Options struct {
	// Logger receives tracker diagnostics. Nil means no logging.
	Logger *silog.Logger

	// Workers bounds concurrent terminations in TerminateAll. Values
	// below one fall back to the default.
	Workers int
}

// Tracker is the in-process bookkeeper for real spawned subprocesses.
type Tracker struct {
	mu      sync.Mutex
	procs   map[int]*ProcessInfo
	log     *silog.Logger
	workers int
}

// NewTracker constructs an empty tracker.
func NewTracker(opts Options) *Tracker {
	log := opts.Logger
	if log == nil {
		log = silog.Nop()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = defaultWorkers
	}
	return &Tracker{
		procs:   make(map[int]*ProcessInfo),
		log:     log,
		workers: workers,
	}
}

// Track records a newly observed real subprocess in state spawned.
// Re-tracking a pid replaces the previous entry.
func (t *Tracker) Track(pid int, info ProcessInfo) {
	info.PID = pid
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	if info.State == "" {
		info.State = StateSpawned
	}

	t.mu.Lock()
	t.procs[pid] = &info
	n := len(t.procs)
	t.mu.Unlock()

	metrics.SetTrackedProcesses(n)
	t.log.Debug("tracking subprocess", "pid", pid, "cmd", info.Command)
}

// MarkRunning transitions a spawned process to running once it is confirmed
// alive.
func (t *Tracker) MarkRunning(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.procs[pid]; ok && info.State == StateSpawned {
		info.State = StateRunning
	}
}

// ObserveExit marks a tracked process as exited on its own. The entry is
// retained for the audit trail.
func (t *Tracker) ObserveExit(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.procs[pid]; ok && !info.State.terminal() {
		info.State = StateExited
	}
}

// Acknowledge removes a tracked entry. Only the teardown orchestrator calls
// this, after the entry's fate has been recorded.
func (t *Tracker) Acknowledge(pid int) {
	t.mu.Lock()
	delete(t.procs, pid)
	n := len(t.procs)
	t.mu.Unlock()
	metrics.SetTrackedProcesses(n)
}

// Snapshot returns a copy of every tracked entry, ordered by pid.
func (t *Tracker) Snapshot() []ProcessInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ProcessInfo, 0, len(t.procs))
	for _, info := range t.procs {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Len reports the number of tracked entries, terminal or not.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.procs)
}

func (t *Tracker) get(pid int) (ProcessInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.procs[pid]
	if !ok {
		return ProcessInfo{}, false
	}
	return *info, true
}

func (t *Tracker) setState(pid int, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.procs[pid]; ok {
		info.State = state
	}
}

// Terminate runs the graceful-then-forceful sequence against one tracked
// pid. A process that is already gone counts as success. The pid does not
// have to be tracked; untracked pids are terminated without state updates.
func (t *Tracker) Terminate(ctx context.Context, pid int, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultGracefulTimeout
	}

	group := false
	if info, ok := t.get(pid); ok {
		group = info.OwnProcessGroup
	}

	res := TerminatePID(ctx, pid, timeout, group)
	metrics.IncTermination(string(res.Outcome))
	switch res.Outcome {
	case OutcomeAlreadyDead:
		t.markTerminalIfLive(pid, StateExited)
	case OutcomeKilledGraceful:
		t.setState(pid, StateKilledGraceful)
	case OutcomeKilledForced:
		t.setState(pid, StateKilledForced)
	case OutcomeFailed:
		metrics.IncSweepFailure()
		t.setState(pid, StateUnknown)
	}

	if res.Err != nil {
		t.log.Warn("terminate", "pid", pid, "outcome", res.Outcome, "error", res.Err)
	} else {
		t.log.Debug("terminate", "pid", pid, "outcome", res.Outcome)
	}
	return res
}

func (t *Tracker) markTerminalIfLive(pid int, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.procs[pid]; ok && !info.State.terminal() {
		info.State = state
	}
}

// TerminateAll terminates every non-terminal tracked process with a bounded
// worker pool. One failure never aborts the others; each pid's outcome is
// recorded independently.
func (t *Tracker) TerminateAll(ctx context.Context, timeout time.Duration) Summary {
	var pids []int
	for _, info := range t.Snapshot() {
		if !info.State.terminal() {
			pids = append(pids, info.PID)
		}
	}

	var (
		summary Summary
		mu      sync.Mutex
		wg      sync.WaitGroup
	)
	work := make(chan int)
	for i := 0; i < t.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pid := range work {
				res := t.Terminate(ctx, pid, timeout)
				mu.Lock()
				summary.Tally(res)
				mu.Unlock()
			}
		}()
	}
	for _, pid := range pids {
		work <- pid
	}
	close(work)
	wg.Wait()

	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].PID < summary.Results[j].PID
	})
	return summary
}
