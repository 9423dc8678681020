package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	mockMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leash",
		Name:      "mock_matches_total",
		Help:      "Total number of intercepted invocations resolved by a registered mock.",
	}, []string{"tier"})

	unregisteredCommands = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "leash",
		Name:      "unregistered_commands_total",
		Help:      "Total number of intercepted invocations with no registered mock.",
	})

	terminations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leash",
		Name:      "process_terminations_total",
		Help:      "Total number of termination attempts by outcome.",
	}, []string{"outcome"})

	sweepFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "leash",
		Name:      "sweep_failures_total",
		Help:      "Total number of sweep targets that could not be terminated.",
	})

	trackedProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "leash",
		Name:      "tracked_processes",
		Help:      "Number of live entries in the lifecycle tracker.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "leash",
		Name:      "build_info",
		Help:      "Build metadata for the running leash binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(mockMatches, unregisteredCommands, terminations, sweepFailures, trackedProcesses, buildInfo)
}

// Registry returns the Prometheus registry containing all leash metrics.
func Registry() *prometheus.Registry {
	return registry
}

// IncMockMatch records a resolved interception for the given matcher tier.
func IncMockMatch(tier string) {
	if tier == "" {
		tier = "unknown"
	}
	mockMatches.WithLabelValues(tier).Inc()
}

// IncUnregisteredCommand records an interception that found no mock.
func IncUnregisteredCommand() {
	unregisteredCommands.Inc()
}

// IncTermination records the outcome of a termination attempt.
func IncTermination(outcome string) {
	if outcome == "" {
		return
	}
	terminations.WithLabelValues(outcome).Inc()
}

// IncSweepFailure records a sweep target that survived termination.
func IncSweepFailure() {
	sweepFailures.Inc()
}

// SetTrackedProcesses records the current size of the lifecycle tracker.
func SetTrackedProcesses(n int) {
	trackedProcesses.Set(float64(n))
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
