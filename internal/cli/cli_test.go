package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	stdruntime "runtime"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCmd()
	want := map[string]bool{
		"cleanup":  false,
		"teardown": false,
		"watch":    false,
		"config":   false,
	}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestCleanupAliasResolves(t *testing.T) {
	root := NewRootCmd()
	cmd, _, err := root.Find([]string{"emergency-cleanup"})
	if err != nil {
		t.Fatalf("find alias: %v", err)
	}
	if cmd.Name() != "cleanup" {
		t.Fatalf("alias resolved to %q", cmd.Name())
	}
}

func TestConfigValidateAcceptsGoodFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leash.yaml")
	if err := os.WriteFile(path, []byte("cleanup:\n  signature: my-runner\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, _, err := runCommand(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "my-runner") {
		t.Fatalf("output missing signature: %q", out)
	}
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leash.yaml")
	if err := os.WriteFile(path, []byte("cleanup:\n  signature: '('\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, err := runCommand(t, "--config", path, "config", "validate"); err == nil {
		t.Fatal("expected validation failure")
	}
}

func TestCleanupWithNoMatches(t *testing.T) {
	if stdruntime.GOOS != "linux" {
		t.Skip("sweep requires process-table enumeration")
	}

	logDir := t.TempDir()
	out, _, err := runCommand(t,
		"cleanup",
		"--signature", "leash-cli-test-no-such-process-anywhere",
		"--log-dir", logDir)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !strings.Contains(out, "Found 0, killed 0") {
		t.Fatalf("unexpected summary: %q", out)
	}
}

func TestCleanupProceedsDespiteBrokenConfig(t *testing.T) {
	if stdruntime.GOOS != "linux" {
		t.Skip("sweep requires process-table enumeration")
	}

	path := filepath.Join(t.TempDir(), "leash.yaml")
	if err := os.WriteFile(path, []byte("cleanup:\n  signature: '('\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, errOut, err := runCommand(t,
		"--config", path,
		"cleanup",
		"--signature", "leash-cli-test-no-such-process-anywhere",
		"--log-dir", t.TempDir())
	if err != nil {
		t.Fatalf("a broken config must not block cleanup: %v", err)
	}
	if !strings.Contains(errOut, "using defaults") {
		t.Fatalf("expected a note about the broken config, got %q", errOut)
	}
	if !strings.Contains(out, "Found 0, killed 0") {
		t.Fatalf("unexpected summary: %q", out)
	}
}

func TestCleanupRejectsBadSignatureFlag(t *testing.T) {
	if _, _, err := runCommand(t, "cleanup", "--signature", "("); err == nil {
		t.Fatal("expected an error for an invalid signature")
	}
}

func TestWatchRefusesNonInteractiveOutput(t *testing.T) {
	_, _, err := runCommand(t, "watch")
	if err == nil || !strings.Contains(err.Error(), "interactive terminal") {
		t.Fatalf("expected a terminal error, got %v", err)
	}
}
