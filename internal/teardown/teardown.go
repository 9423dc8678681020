// Package teardown is the final backstop before a test session exits. It
// reconciles the lifecycle tracker against the operating system's process
// table: tracked processes are terminated gracefully first, then a
// signature sweep catches anything that was never tracked at all. Every
// step lands in the cleanup log; when no durable log location can be
// opened, the record degrades to standard output rather than aborting.
package teardown

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/audit"
	"github.com/Paintersrp/leash/internal/reap"
	"github.com/Paintersrp/leash/internal/track"
)

// Config configures a teardown run.
type Config struct {
	// Tracker is the session's lifecycle tracker. Nil skips the tracked
	// phase and relies on the sweep alone.
	Tracker *track.Tracker

	// Signature selects untracked leftovers for the sweep phase. Nil
	// skips the sweep.
	Signature *regexp.Regexp

	// LogDir overrides cleanup log directory resolution.
	LogDir string

	// GracefulTimeout bounds the cooperative phase per process.
	GracefulTimeout time.Duration

	// Workers bounds concurrent terminations.
	Workers int

	// Containers enables the leaked-container sweep.
	Containers bool

	// Logger receives teardown diagnostics. Nil means no logging.
	Logger *silog.Logger

	// Fallback receives the cleanup record when no durable log location
	// is available. Defaults to standard output.
	Fallback io.Writer
}

// Report summarizes everything the teardown did.
type Report struct {
	LogPath  string
	Degraded bool

	Tracked    track.Summary
	Swept      track.Summary
	SweptPIDs  []reap.Process
	Containers reap.ContainerReport

	// Notes records stages that degraded, such as an unsupported
	// process-table platform.
	Notes []string
}

// Killed reports the total number of processes terminated in any phase.
func (r Report) Killed() int {
	return r.Tracked.Killed + r.Swept.Killed
}

// Failed reports the total number of processes that survived termination.
func (r Report) Failed() int {
	return r.Tracked.Failed + r.Swept.Failed
}

var once sync.Once

// RunOnce runs the teardown exactly once per process. The second and later
// calls report ran=false and do nothing, so multiple exit paths can all
// call it safely.
func RunOnce(ctx context.Context, cfg Config) (report Report, ran bool) {
	once.Do(func() {
		report = Run(ctx, cfg)
		ran = true
	})
	return report, ran
}

// Run executes the teardown sequence. Failures at any stage degrade and are
// noted; Run itself never aborts partway.
func Run(ctx context.Context, cfg Config) Report {
	log := cfg.Logger
	if log == nil {
		log = silog.Nop()
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = track.DefaultGracefulTimeout
	}
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = os.Stdout
	}

	var report Report
	auditLog := openLog(cfg.LogDir, fallback, log, &report)
	defer auditLog.Close()

	if cfg.Tracker != nil {
		report.Tracked = terminateTracked(ctx, cfg, auditLog, log)
	}

	if cfg.Signature != nil {
		sweepReport, err := reap.Sweep(ctx, reap.Options{
			Signature:       cfg.Signature,
			GracefulTimeout: cfg.GracefulTimeout,
			Workers:         cfg.Workers,
			Logger:          log,
			Audit:           auditLog,
		})
		if err != nil {
			report.Notes = append(report.Notes, "process sweep skipped: "+err.Error())
			log.Warn("process sweep skipped", "error", err)
		} else {
			report.Swept = sweepReport.Summary
			report.SweptPIDs = sweepReport.Matches
		}
	}

	if cfg.Containers {
		sweeper := reap.NewContainerSweeper(log)
		ctrReport, err := sweeper.Sweep(ctx, cfg.Signature, auditLog)
		if err != nil {
			report.Notes = append(report.Notes, "container sweep skipped: "+err.Error())
			log.Warn("container sweep skipped", "error", err)
		} else {
			report.Containers = ctrReport
		}
	}

	log.Info("teardown complete",
		"killed", report.Killed(),
		"failed", report.Failed(),
		"containers_removed", report.Containers.Removed,
		"log", report.LogPath)
	return report
}

func openLog(dir string, fallback io.Writer, log *silog.Logger, report *Report) *audit.Log {
	resolved := audit.ResolveDir(dir)
	path := filepath.Join(resolved, audit.FileName)
	auditLog, err := audit.Open(path)
	if err != nil {
		log.Warn("cleanup log unavailable, degrading to stdout", "path", path, "error", err)
		report.Degraded = true
		report.Notes = append(report.Notes, "cleanup log degraded to stdout: "+err.Error())
		return audit.NewWriterLog(stringWriter{fallback})
	}
	report.LogPath = path
	return auditLog
}

func terminateTracked(ctx context.Context, cfg Config, auditLog *audit.Log, log *silog.Logger) track.Summary {
	entries := cfg.Tracker.Snapshot()
	for _, info := range entries {
		if err := auditLog.Discovery(info.PID, currentUser(), info.Command); err != nil {
			log.Warn("audit write failed", "error", err)
		}
	}

	summary := cfg.Tracker.TerminateAll(ctx, cfg.GracefulTimeout)
	for _, res := range summary.Results {
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		if err := auditLog.Outcome(res.PID, string(res.Outcome), detail); err != nil {
			log.Warn("audit write failed", "error", err)
		}
	}
	if len(entries) > 0 {
		if err := auditLog.Summary(summary.Killed, summary.Failed); err != nil {
			log.Warn("audit write failed", "error", err)
		}
	}

	// Entries are acknowledged only now that their fate is on record.
	for _, info := range entries {
		cfg.Tracker.Acknowledge(info.PID)
	}
	return summary
}

func currentUser() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

type stringWriter struct{ w io.Writer }

func (s stringWriter) WriteString(str string) (int, error) {
	return io.WriteString(s.w, str)
}
