package reap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	stdruntime "runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/Paintersrp/leash/internal/audit"
	"github.com/Paintersrp/leash/internal/track"
)

func TestFilterIsConservative(t *testing.T) {
	self := os.Getpid()
	uid := os.Getuid()
	sig := regexp.MustCompile(`jest`)

	procs := []Process{
		{PID: 1, UID: uid, Command: "jest --init"},           // pid 1 excluded
		{PID: self, UID: uid, Command: "jest --watch"},       // self excluded
		{PID: 4000, UID: uid + 1, Command: "jest --ci"},      // other user excluded
		{PID: 4001, UID: uid, Command: "vim notes.txt"},      // signature mismatch
		{PID: 4002, UID: uid, Command: "node jest --runTestsByPath a.test.js"},
		{PID: 4003, UID: uid, Command: "jest"},
	}

	matches := filter(procs, sig)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %v", len(matches), matches)
	}
	if matches[0].PID != 4002 || matches[1].PID != 4003 {
		t.Fatalf("unexpected match set: %v", matches)
	}
}

func TestSweepRequiresSignature(t *testing.T) {
	if _, err := Sweep(context.Background(), Options{}); err == nil {
		t.Fatal("expected an error for a missing signature")
	}
}

func TestSweepKillsMatchingProcess(t *testing.T) {
	if stdruntime.GOOS != "linux" {
		t.Skip("sweep integration test requires /proc")
	}

	token := fmt.Sprintf("leash-sweep-test-%d", time.Now().UnixNano())
	cmd := exec.Command("/bin/sh", "-c", "sleep 300 # "+token)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start decoy: %v", err)
	}
	pid := cmd.Process.Pid
	t.Cleanup(func() {
		syscall.Kill(pid, syscall.SIGKILL)
		cmd.Wait()
	})
	go cmd.Wait()

	logPath := filepath.Join(t.TempDir(), audit.FileName)
	auditLog, err := audit.Open(logPath)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer auditLog.Close()

	report, err := Sweep(context.Background(), Options{
		Signature: regexp.MustCompile(regexp.QuoteMeta(token)),
		Audit:     auditLog,
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(report.Matches) != 1 {
		t.Fatalf("expected exactly the decoy to match, got %v", report.Matches)
	}
	if report.Matches[0].PID != pid {
		t.Fatalf("matched pid %d, want %d", report.Matches[0].PID, pid)
	}
	if report.Summary.Killed != 1 {
		t.Fatalf("summary = %+v, want 1 killed", report.Summary)
	}

	deadline := time.Now().Add(3 * time.Second)
	for track.Alive(pid) {
		if time.Now().After(deadline) {
			t.Fatal("decoy still alive after sweep")
		}
		time.Sleep(25 * time.Millisecond)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(data), fmt.Sprintf("PID=%d", pid)) {
		t.Fatalf("audit log does not record the discovery:\n%s", data)
	}
	if !strings.Contains(string(data), "Summary: killed=1 failed=0") {
		t.Fatalf("audit log does not record the summary:\n%s", data)
	}
}

func TestSweepReportsUnsupportedPlatform(t *testing.T) {
	if stdruntime.GOOS == "linux" {
		t.Skip("this platform supports enumeration")
	}
	_, err := Sweep(context.Background(), Options{Signature: regexp.MustCompile("x")})
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestSweepNeverMatchesUnrelatedProcesses(t *testing.T) {
	if stdruntime.GOOS != "linux" {
		t.Skip("sweep integration test requires /proc")
	}

	report, err := Sweep(context.Background(), Options{
		Signature: regexp.MustCompile("leash-no-such-process-signature-zzz"),
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Matches) != 0 {
		t.Fatalf("matched unrelated processes: %v", report.Matches)
	}
}
