package intercept

import (
	"os"

	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/config"
	"github.com/Paintersrp/leash/internal/mock"
)

// defaultModule is built during package initialization, before any test or
// consumer code runs. Both public aliases (the leash root package and the
// legacy execshim package) delegate here, so they share one registry: a
// behavior registered through one alias is visible through the other.
var defaultModule = New(mock.Default(), defaultOptions())

// Default returns the process-wide interception module bound to
// mock.Default().
func Default() *Module {
	return defaultModule
}

// OptionsFromConfig maps the session configuration's mock policy onto module
// options: strictness and the fallback behavior substituted for unregistered
// commands in lenient mode.
func OptionsFromConfig(cfg *config.Config, log *silog.Logger) Options {
	return Options{
		Strict: cfg.Strict,
		Default: mock.Behavior{
			Stdout:   cfg.Default.Stdout,
			Stderr:   cfg.Default.Stderr,
			ExitCode: cfg.Default.ExitCode,
		},
		Logger: log,
	}
}

// defaultOptions builds the default module's policy from leash.yaml in the
// working directory (falling back to defaults when absent) with the
// LEASH_STRICT_MOCKS environment override applied by the loader. A malformed
// session config must never crash package initialization; it degrades to
// defaults with a diagnostic.
func defaultOptions() Options {
	log := silog.New(os.Stderr, &silog.Options{Level: defaultLogLevel()})

	cfg, err := config.Load("")
	if err != nil {
		log.Warn("session configuration unusable, using defaults", "error", err)
		cfg = config.Default()
	}
	return OptionsFromConfig(cfg, log)
}

func defaultLogLevel() silog.Level {
	switch os.Getenv("LEASH_LOG") {
	case "debug":
		return silog.LevelDebug
	case "error":
		return silog.LevelError
	default:
		return silog.LevelInfo
	}
}
