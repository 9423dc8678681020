package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/config"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var (
		configFile string
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "leash",
		Short: "Process-execution control for automated test environments",
		Long: "leash keeps test suites from leaking real processes: it mocks " +
			"command execution in-process, tracks everything actually spawned, " +
			"and sweeps the process table for anything that escaped.",
	}

	root.PersistentFlags().
		StringVarP(&configFile, "config", "c", "", "Path to leash.yaml (defaults to ./leash.yaml when present)")
	root.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	ctx := &context{configFile: &configFile, verbose: &verbose}
	root.AddCommand(newCleanupCmd(ctx))
	root.AddCommand(newTeardownCmd(ctx))
	root.AddCommand(newWatchCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	configFile *string
	verbose    *bool

	mu  sync.Mutex
	cfg *config.Config
	log *silog.Logger
}

func (c *context) loadConfig() (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(*c.configFile)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *context) logger() *silog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.log == nil {
		level := silog.LevelInfo
		if c.verbose != nil && *c.verbose {
			level = silog.LevelDebug
		}
		c.log = silog.New(os.Stderr, &silog.Options{Level: level})
	}
	return c.log
}
