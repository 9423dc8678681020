package intercept

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/mock"
)

func newTestModule(t *testing.T, opts Options) (*Module, *mock.Registry) {
	t.Helper()
	reg := mock.NewRegistry()
	if opts.Logger == nil {
		opts.Logger = silog.Nop()
	}
	return New(reg, opts), reg
}

func TestExecFileReturnsRegisteredOutput(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("status", "--short"), mock.Behavior{Stdout: "clean"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := m.ExecFile(context.Background(), "status", "--short")
	if err != nil {
		t.Fatalf("execFile: %v", err)
	}
	if got := string(res.Stdout); got != "clean" {
		t.Fatalf("stdout = %q, want %q", got, "clean")
	}
	if res.Status.Code == nil || *res.Status.Code != 0 {
		t.Fatalf("status = %+v, want exit code 0", res.Status)
	}
}

func TestExecFileNonZeroExitSurfacesExitError(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("deploy"), mock.Behavior{ExitCode: 1, Stderr: "denied"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := m.ExecFile(context.Background(), "deploy")
	if err == nil {
		t.Fatal("expected an error for non-zero exit")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	if code, ok := exitErr.ExitCode(); !ok || code != 1 {
		t.Fatalf("exit code = %d (ok=%v), want 1", code, ok)
	}
	if !strings.Contains(err.Error(), "denied") {
		t.Fatalf("error message %q does not contain stderr", err.Error())
	}
	if string(exitErr.Stderr) != "denied" {
		t.Fatalf("stderr buffer = %q", exitErr.Stderr)
	}
	if !strings.Contains(exitErr.CommandLine, "deploy") {
		t.Fatalf("command line %q does not name the command", exitErr.CommandLine)
	}
}

func TestUnregisteredCommandDegradesToDefault(t *testing.T) {
	var buf bytes.Buffer
	log := silog.New(&buf, &silog.Options{Level: silog.LevelDebug})
	m, _ := newTestModule(t, Options{Logger: log})

	res, err := m.ExecFile(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unregistered command must not fail in lenient mode: %v", err)
	}
	if len(res.Stdout) != 0 || len(res.Stderr) != 0 {
		t.Fatalf("expected empty output, got stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
	if res.Status.Code == nil || *res.Status.Code != 0 {
		t.Fatalf("expected default exit 0, got %+v", res.Status)
	}
	if !strings.Contains(buf.String(), "ghost") {
		t.Fatalf("diagnostic does not name the unmatched command: %q", buf.String())
	}
}

func TestUnregisteredCommandStrictMode(t *testing.T) {
	m, _ := newTestModule(t, Options{Strict: true})

	_, err := m.ExecFile(context.Background(), "ghost", "--scare")
	var ucErr *UnregisteredCommandError
	if !errors.As(err, &ucErr) {
		t.Fatalf("expected *UnregisteredCommandError, got %T: %v", err, err)
	}
	if ucErr.Executable != "ghost" {
		t.Fatalf("error names %q, want ghost", ucErr.Executable)
	}
}

func TestSignalTerminationHasNoExitCode(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("serve"), mock.Behavior{Signal: "SIGKILL"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := m.Spawn(context.Background(), "serve")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	status := p.Wait()
	if status.Code != nil {
		t.Fatalf("signal-terminated process must have nil exit code, got %d", *status.Code)
	}
	if status.Signal != "SIGKILL" {
		t.Fatalf("signal = %q, want SIGKILL", status.Signal)
	}
	if status.Exited() {
		t.Fatal("Exited() must be false for signal termination")
	}

	// And the inverse: a normal exit carries a code and no signal.
	if _, err := reg.Register(mock.Exact("ok"), mock.Behavior{ExitCode: 3}); err != nil {
		t.Fatalf("register: %v", err)
	}
	p2, err := m.Spawn(context.Background(), "ok")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	status2 := p2.Wait()
	if status2.Code == nil || *status2.Code != 3 || status2.Signal != "" {
		t.Fatalf("normal exit must carry code and no signal, got %+v", status2)
	}
}

func TestSpawnListenerAttachedAfterReturnSeesAllOutput(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("chatty"), mock.Behavior{Stdout: "line one\nline two\n"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := m.Spawn(context.Background(), "chatty")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	// Give the emitter every chance to run before a reader attaches; the
	// stream must retain the bytes regardless.
	<-p.Done()

	out, err := io.ReadAll(p.Stdout())
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if string(out) != "line one\nline two\n" {
		t.Fatalf("stdout = %q, dropped output", out)
	}
}

func TestSpawnDelayDefersCompletion(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("slow"), mock.Behavior{Stdout: "done", Delay: 50 * time.Millisecond}); err != nil {
		t.Fatalf("register: %v", err)
	}

	start := time.Now()
	p, err := m.Spawn(context.Background(), "slow")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("spawn blocked for %v, the handle must return immediately", elapsed)
	}

	select {
	case <-p.Done():
		if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
			t.Fatalf("completed after %v, before the configured delay", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestSpawnErrSuppressedWithoutListener(t *testing.T) {
	var buf bytes.Buffer
	log := silog.New(&buf, &silog.Options{Level: silog.LevelDebug})
	m, reg := newTestModule(t, Options{Logger: log})
	if _, err := reg.Register(mock.Exact("broken"), mock.Behavior{Err: errors.New("boom")}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := m.Spawn(context.Background(), "broken")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	p.Wait()

	if !strings.Contains(buf.String(), "suppressing error event") {
		t.Fatalf("expected a debug record for the suppressed error, got %q", buf.String())
	}
}

func TestSpawnErrDeliveredToListener(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("broken"), mock.Behavior{Err: errors.New("boom")}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := m.Spawn(context.Background(), "broken")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	errs := p.Errors()
	p.Wait()

	select {
	case got := <-errs:
		if got == nil || got.Error() != "boom" {
			t.Fatalf("error = %v, want boom", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error event")
	}
}

func TestShellSplitsCommandLine(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("git", "commit", "-m", "hello world"), mock.Behavior{Stdout: "committed"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := m.Shell(context.Background(), `git commit -m "hello world"`)
	if err != nil {
		t.Fatalf("shell: %v", err)
	}
	if string(res.Stdout) != "committed" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
}

func TestShellSyncMatchesCollectContract(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("deploy"), mock.Behavior{ExitCode: 1, Stderr: "denied"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := m.ShellSync("deploy")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	if code, ok := exitErr.ExitCode(); !ok || code != 1 {
		t.Fatalf("exit code = %d (ok=%v), want 1", code, ok)
	}
}

func TestForkMatchesScriptPath(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("./worker.ts", "--queue", "default"), mock.Behavior{Stdout: "ready"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := m.Fork(context.Background(), "./worker.ts", "--queue", "default")
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	status := p.Wait()
	if status.Code == nil || *status.Code != 0 {
		t.Fatalf("status = %+v", status)
	}
	out, _ := io.ReadAll(p.Stdout())
	if string(out) != "ready" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestSyntheticPIDsAreMonotonicAndHigh(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Prefix("noop"), mock.Behavior{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var last int
	for i := 0; i < 5; i++ {
		p, err := m.Spawn(context.Background(), "noop")
		if err != nil {
			t.Fatalf("spawn: %v", err)
		}
		if p.Pid() <= syntheticPIDBase {
			t.Fatalf("pid %d is not above the synthetic base", p.Pid())
		}
		if p.Pid() <= last {
			t.Fatalf("pid %d is not greater than previous %d", p.Pid(), last)
		}
		last = p.Pid()
		p.Wait()
	}
}

func TestOneRegistrationServesEveryShape(t *testing.T) {
	m, reg := newTestModule(t, Options{})
	if _, err := reg.Register(mock.Exact("status", "--short"), mock.Behavior{Stdout: "clean"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := m.Spawn(context.Background(), "status", "--short")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	streamOut, _ := io.ReadAll(p.Stdout())
	p.Wait()

	collect, err := m.ExecFile(context.Background(), "status", "--short")
	if err != nil {
		t.Fatalf("execFile: %v", err)
	}
	syncRes, err := m.ShellSync("status --short")
	if err != nil {
		t.Fatalf("shellSync: %v", err)
	}

	for name, got := range map[string]string{
		"stream":  string(streamOut),
		"collect": string(collect.Stdout),
		"sync":    string(syncRes.Stdout),
	} {
		if got != "clean" {
			t.Fatalf("%s shape returned %q, want %q", name, got, "clean")
		}
	}
}
