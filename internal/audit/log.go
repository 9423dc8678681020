// Package audit writes the append-only cleanup log. Every record is written
// to durable storage as it happens rather than buffered until exit, so a
// crash mid-sweep still leaves a usable trail.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
)

// Rotation ceiling for a single log file. The log is small in normal use;
// the ceiling only guards against a pathological session appending forever.
const maxLogSize = 8 << 20

// FileName is the cleanup log file name within the resolved directory.
const FileName = "cleanup.log"

// Log is an append-only cleanup log. The zero value is not usable; open one
// with Open or wrap an arbitrary writer with NewWriterLog.
type Log struct {
	f    *os.File
	w    writer
	runs int
}

type writer interface {
	WriteString(s string) (int, error)
}

// Open opens (creating if needed) the cleanup log at path for appending.
// A file that has outgrown the ceiling is rotated aside to "<path>.1" first.
func Open(path string) (*Log, error) {
	if info, err := os.Stat(path); err == nil && info.Size() > maxLogSize {
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, fmt.Errorf("rotate cleanup log: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open cleanup log: %w", err)
	}
	return &Log{f: f, w: f}, nil
}

// NewWriterLog wraps an arbitrary writer, used when no durable location is
// available and the log degrades to standard output.
func NewWriterLog(w writer) *Log {
	return &Log{w: w}
}

// Discovery records a process found by a sweep, before any action is taken
// against it. Logging the match first makes accidental termination of an
// unrelated process auditable after the fact.
func (l *Log) Discovery(pid int, user, cmd string) error {
	return l.appendf("PID=%d USER=%s CMD=%s\n", pid, user, cmd)
}

// Outcome records the result of acting on one process.
func (l *Log) Outcome(pid int, outcome, detail string) error {
	if detail != "" {
		return l.appendf("PID=%d OUTCOME=%s DETAIL=%s\n", pid, outcome, detail)
	}
	return l.appendf("PID=%d OUTCOME=%s\n", pid, outcome)
}

// Summary terminates the current run's records with a tally and a blank
// separator line.
func (l *Log) Summary(killed, failed int) error {
	l.runs++
	return l.appendf("Summary: killed=%d failed=%d\n\n", killed, failed)
}

func (l *Log) appendf(format string, args ...any) error {
	if _, err := l.w.WriteString(fmt.Sprintf(format, args...)); err != nil {
		return fmt.Errorf("append cleanup log: %w", err)
	}
	// O_APPEND writes land atomically; sync so the record survives a
	// crash of this process.
	if l.f != nil {
		if err := l.f.Sync(); err != nil {
			return fmt.Errorf("sync cleanup log: %w", err)
		}
	}
	return nil
}

// Close releases the underlying file, if any.
func (l *Log) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
