package track

import (
	"context"
	stdruntime "runtime"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("tracker tests drive unix shells")
	}
}

func TestTrackStateMachine(t *testing.T) {
	tr := NewTracker(Options{})
	tr.Track(99999999, ProcessInfo{Command: "fake"})

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap))
	}
	if snap[0].State != StateSpawned {
		t.Fatalf("initial state = %q, want spawned", snap[0].State)
	}

	tr.MarkRunning(99999999)
	if snap := tr.Snapshot(); snap[0].State != StateRunning {
		t.Fatalf("state after MarkRunning = %q", snap[0].State)
	}

	tr.ObserveExit(99999999)
	if snap := tr.Snapshot(); snap[0].State != StateExited {
		t.Fatalf("state after ObserveExit = %q", snap[0].State)
	}

	// Terminal entries persist until explicitly acknowledged.
	if tr.Len() != 1 {
		t.Fatalf("entry disappeared before acknowledgment")
	}
	tr.Acknowledge(99999999)
	if tr.Len() != 0 {
		t.Fatalf("entry survived acknowledgment")
	}
}

func TestStartTracksRealProcess(t *testing.T) {
	skipOnWindows(t)

	tr := NewTracker(Options{})
	ctx := context.Background()

	child, err := tr.Start(ctx, "/bin/sh", "-c", "exit 0")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := child.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 tracked entry, got %d", len(snap))
	}
	if snap[0].State != StateExited {
		t.Fatalf("state = %q, want exited", snap[0].State)
	}
	if snap[0].Command == "" || snap[0].StartedAt.IsZero() {
		t.Fatalf("metadata not recorded: %+v", snap[0])
	}
}

func TestTerminateGraceful(t *testing.T) {
	skipOnWindows(t)

	tr := NewTracker(Options{})
	child, err := tr.Start(context.Background(), "/bin/sh", "-c", "sleep 30")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	res := tr.Terminate(context.Background(), child.Pid(), 3*time.Second)
	if res.Outcome != OutcomeKilledGraceful {
		t.Fatalf("outcome = %q, want killed-graceful (err: %v)", res.Outcome, res.Err)
	}

	snap := tr.Snapshot()
	if snap[0].State != StateKilledGraceful {
		t.Fatalf("state = %q, want killed-graceful", snap[0].State)
	}
}

func TestTerminateEscalatesWhenSignalIgnored(t *testing.T) {
	skipOnWindows(t)

	tr := NewTracker(Options{})
	child, err := tr.Start(context.Background(), "/bin/sh", "-c",
		`trap '' TERM; while :; do sleep 1; done`)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Let the shell install its trap before signalling.
	time.Sleep(150 * time.Millisecond)

	res := tr.Terminate(context.Background(), child.Pid(), 300*time.Millisecond)
	if res.Outcome != OutcomeKilledForced {
		t.Fatalf("outcome = %q, want killed-forced (err: %v)", res.Outcome, res.Err)
	}
}

func TestTerminateAlreadyDeadIsIdempotentSuccess(t *testing.T) {
	skipOnWindows(t)

	tr := NewTracker(Options{})
	ctx := context.Background()
	child, err := tr.Start(ctx, "/bin/sh", "-c", "exit 0")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := child.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	for i := 0; i < 2; i++ {
		res := tr.Terminate(ctx, child.Pid(), time.Second)
		if res.Outcome != OutcomeAlreadyDead {
			t.Fatalf("attempt %d outcome = %q, want already-dead (err: %v)", i+1, res.Outcome, res.Err)
		}
		if res.Err != nil {
			t.Fatalf("attempt %d returned an error: %v", i+1, res.Err)
		}
	}
}

func TestTerminateAllRecordsIndependentOutcomes(t *testing.T) {
	skipOnWindows(t)

	tr := NewTracker(Options{Workers: 2})
	ctx := context.Background()

	polite, err := tr.Start(ctx, "/bin/sh", "-c", "sleep 30")
	if err != nil {
		t.Fatalf("start polite: %v", err)
	}
	stubborn, err := tr.Start(ctx, "/bin/sh", "-c",
		`trap '' TERM; while :; do sleep 1; done`)
	if err != nil {
		t.Fatalf("start stubborn: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	summary := tr.TerminateAll(ctx, 300*time.Millisecond)
	if len(summary.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(summary.Results))
	}

	outcomes := make(map[int]Outcome, len(summary.Results))
	for _, res := range summary.Results {
		outcomes[res.PID] = res.Outcome
	}
	if outcomes[polite.Pid()] != OutcomeKilledGraceful {
		t.Fatalf("polite outcome = %q, want killed-graceful", outcomes[polite.Pid()])
	}
	if outcomes[stubborn.Pid()] != OutcomeKilledForced {
		t.Fatalf("stubborn outcome = %q, want killed-forced", outcomes[stubborn.Pid()])
	}
	if summary.Killed != 2 || summary.Failed != 0 {
		t.Fatalf("summary tallies = %+v", summary)
	}
}
