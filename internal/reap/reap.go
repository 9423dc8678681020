// Package reap sweeps the operating system's process table for leaked test
// processes. It is the recovery path for when in-process bookkeeping never
// ran: the sweep deliberately bypasses the lifecycle tracker and works
// directly off the process table.
//
// Matching is conservative on purpose. A process is a target only when its
// command line matches the configured signature AND it is owned by the
// current user AND it is neither pid 1 nor this process. Every match is
// logged before any signal is sent, so terminating an unrelated process by
// accident is at least auditable after the fact.
package reap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/audit"
	"github.com/Paintersrp/leash/internal/metrics"
	"github.com/Paintersrp/leash/internal/track"
)

// ErrUnsupported reports that this platform offers no process-table
// enumeration facility. The sweep reports it explicitly rather than
// silently doing nothing.
var ErrUnsupported = errors.New("process table enumeration is not supported on this platform")

// Process is one process-table entry considered by the sweep.
type Process struct {
	PID     int
	UID     int
	User    string
	Command string
}

// Options configures a sweep.
type Options struct {
	// Signature selects candidate processes by command line. Required.
	Signature *regexp.Regexp

	// GracefulTimeout, when positive, runs the graceful-then-forceful
	// sequence per target. Zero means forceful kills immediately, which
	// is the emergency behavior.
	GracefulTimeout time.Duration

	// Workers bounds concurrent terminations. Values below one fall back
	// to a small default.
	Workers int

	// Logger receives sweep diagnostics. Nil means no logging.
	Logger *silog.Logger

	// Audit receives discovery and outcome records. Nil disables the
	// audit trail.
	Audit *audit.Log
}

// Report is the result of one sweep.
type Report struct {
	Matches []Process
	Summary track.Summary
}

const defaultWorkers = 4

// Sweep enumerates the process table, terminates everything matching the
// signature owned by the current user, and reports per-pid outcomes. One
// failed target never aborts the rest.
func Sweep(ctx context.Context, opts Options) (Report, error) {
	if opts.Signature == nil {
		return Report{}, errors.New("sweep: signature is required")
	}
	log := opts.Logger
	if log == nil {
		log = silog.Nop()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = defaultWorkers
	}

	matches, err := ListMatching(opts.Signature)
	if err != nil {
		return Report{}, err
	}
	log.Info("sweep found candidate processes", "count", len(matches), "signature", opts.Signature.String())
	for _, p := range matches {
		log.Info("sweep target", "pid", p.PID, "user", p.User, "cmd", p.Command)
		if opts.Audit != nil {
			if err := opts.Audit.Discovery(p.PID, p.User, p.Command); err != nil {
				log.Warn("audit write failed", "error", err)
			}
		}
	}

	report := Report{Matches: matches}
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []track.Result
	)
	work := make(chan Process)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range work {
				res := terminate(ctx, p.PID, opts.GracefulTimeout)
				metrics.IncTermination(string(res.Outcome))
				if res.Outcome == track.OutcomeFailed {
					metrics.IncSweepFailure()
				}
				logOutcome(log, opts.Audit, p, res)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	for _, p := range matches {
		work <- p
	}
	close(work)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].PID < results[j].PID })
	for _, res := range results {
		report.Summary.Tally(res)
	}

	if opts.Audit != nil {
		if err := opts.Audit.Summary(report.Summary.Killed, report.Summary.Failed); err != nil {
			log.Warn("audit write failed", "error", err)
		}
	}
	log.Info("sweep complete",
		"found", len(matches),
		"killed", report.Summary.Killed,
		"already_dead", report.Summary.AlreadyDead,
		"failed", report.Summary.Failed)
	return report, nil
}

func terminate(ctx context.Context, pid int, graceful time.Duration) track.Result {
	if graceful > 0 {
		return track.TerminatePID(ctx, pid, graceful, false)
	}
	return track.ForceKillPID(ctx, pid)
}

func logOutcome(log *silog.Logger, auditLog *audit.Log, p Process, res track.Result) {
	if res.Err != nil {
		log.Warn("sweep outcome", "pid", p.PID, "outcome", res.Outcome, "error", res.Err)
	} else {
		log.Info("sweep outcome", "pid", p.PID, "outcome", res.Outcome)
	}
	if auditLog != nil {
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		if err := auditLog.Outcome(p.PID, string(res.Outcome), detail); err != nil {
			log.Warn("audit write failed", "error", err)
		}
	}
}

// ListMatching enumerates the process table and returns the entries a sweep
// with this signature would target, without acting on them.
func ListMatching(signature *regexp.Regexp) ([]Process, error) {
	procs, err := listProcesses()
	if err != nil {
		return nil, err
	}
	return filter(procs, signature), nil
}

// filter applies the conservative matching rule: signature AND same user AND
// pid outside {1, self}.
func filter(procs []Process, signature *regexp.Regexp) []Process {
	self := os.Getpid()
	uid := os.Getuid()

	var matches []Process
	for _, p := range procs {
		if p.PID == 1 || p.PID == self {
			continue
		}
		if p.UID != uid {
			continue
		}
		if !signature.MatchString(p.Command) {
			continue
		}
		matches = append(matches, p)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].PID < matches[j].PID })
	return matches
}

// String renders a process the way it appears in diagnostics.
func (p Process) String() string {
	return fmt.Sprintf("PID=%d USER=%s CMD=%s", p.PID, p.User, p.Command)
}
