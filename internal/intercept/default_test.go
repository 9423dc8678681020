package intercept

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/config"
	"github.com/Paintersrp/leash/internal/mock"
)

func TestOptionsFromConfigStrictMode(t *testing.T) {
	cfg := config.Default()
	cfg.Strict = true

	m := New(mock.NewRegistry(), OptionsFromConfig(cfg, silog.Nop()))
	_, err := m.ExecFile(context.Background(), "ghost")
	var ucErr *UnregisteredCommandError
	if !errors.As(err, &ucErr) {
		t.Fatalf("expected *UnregisteredCommandError under configured strict mode, got %T: %v", err, err)
	}
}

func TestOptionsFromConfigDefaultBehavior(t *testing.T) {
	cfg := config.Default()
	cfg.Default = config.DefaultBehavior{Stdout: "fallback", Stderr: "warned", ExitCode: 2}

	m := New(mock.NewRegistry(), OptionsFromConfig(cfg, silog.Nop()))
	res, err := m.ExecFile(context.Background(), "ghost")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError for the configured non-zero fallback, got %T: %v", err, err)
	}
	if code, ok := exitErr.ExitCode(); !ok || code != 2 {
		t.Fatalf("exit code = %d (ok=%v), want 2", code, ok)
	}
	if string(res.Stdout) != "fallback" || string(res.Stderr) != "warned" {
		t.Fatalf("fallback output = stdout %q stderr %q", res.Stdout, res.Stderr)
	}
}

func TestDefaultOptionsReadSessionConfig(t *testing.T) {
	dir := t.TempDir()
	contents := "strict: true\ndefault:\n  stdout: canned\n"
	if err := os.WriteFile(filepath.Join(dir, config.DefaultFile), []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(dir)

	opts := defaultOptions()
	if !opts.Strict {
		t.Fatal("strict policy from leash.yaml not applied")
	}
	if opts.Default.Stdout != "canned" {
		t.Fatalf("default behavior stdout = %q", opts.Default.Stdout)
	}
}

func TestDefaultOptionsDegradeOnMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.DefaultFile), []byte("cleanup:\n  signature: '('\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(dir)

	opts := defaultOptions()
	if opts.Strict {
		t.Fatal("malformed config must degrade to the lenient defaults")
	}
	if opts.Default != (mock.Behavior{}) {
		t.Fatalf("default behavior = %+v, want zero value", opts.Default)
	}
}
