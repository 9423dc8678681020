package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/cobra"
	"go.abhg.dev/log/silog"

	"github.com/Paintersrp/leash/internal/audit"
	"github.com/Paintersrp/leash/internal/config"
	"github.com/Paintersrp/leash/internal/reap"
)

func newCleanupCmd(ctx *context) *cobra.Command {
	var (
		signature string
		workers   int
		graceful  time.Duration
		logDir    string
	)

	cmd := &cobra.Command{
		Use:     "cleanup",
		Aliases: []string{"emergency-cleanup"},
		Short:   "Forcefully kill every process matching the cleanup signature",
		Long: "cleanup sweeps the process table for processes owned by the " +
			"current user whose command line matches the signature and kills " +
			"them. By default kills are immediate; pass --graceful to attempt " +
			"a cooperative shutdown first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := ctx.logger()

			// A broken leash.yaml must not block the emergency path.
			cfg, err := ctx.loadConfig()
			if err != nil {
				log.Warn("session configuration unusable, using defaults", "error", err)
				fmt.Fprintf(cmd.ErrOrStderr(), "note: %v (using defaults)\n", err)
				cfg = config.Default()
			}

			re := cfg.SignatureRegexp()
			if signature != "" {
				re, err = regexp.Compile(signature)
				if err != nil {
					return fmt.Errorf("--signature: %w", err)
				}
			}
			if workers < 1 {
				workers = cfg.Cleanup.Workers
			}
			if logDir == "" {
				logDir = cfg.Cleanup.LogDir
			}

			auditLog, logPath := openAuditLog(logDir, cmd, log)
			defer auditLog.Close()

			report, err := reap.Sweep(cmd.Context(), reap.Options{
				Signature:       re,
				GracefulTimeout: graceful,
				Workers:         workers,
				Logger:          log,
				Audit:           auditLog,
			})
			if err != nil {
				if errors.Is(err, reap.ErrUnsupported) {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "sweep error: %v\n", err)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"Found %d, killed %d, already dead %d, failed %d.\n",
				len(report.Matches),
				report.Summary.Killed,
				report.Summary.AlreadyDead,
				report.Summary.Failed)
			if logPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleanup log: %s\n", logPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&signature, "signature", "", "Override the configured process signature")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent terminations (defaults to configuration)")
	cmd.Flags().DurationVar(&graceful, "graceful", 0, "Cooperative shutdown window per process (0 kills immediately)")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Directory for the cleanup log")

	return cmd
}

// openAuditLog opens the cleanup log under the resolved directory, degrading
// to the command's stdout when no durable location is writable.
func openAuditLog(dir string, cmd *cobra.Command, log *silog.Logger) (*audit.Log, string) {
	resolved := audit.ResolveDir(dir)
	path := filepath.Join(resolved, audit.FileName)
	auditLog, err := audit.Open(path)
	if err != nil {
		log.Warn("cleanup log unavailable, degrading to stdout", "path", path, "error", err)
		return audit.NewWriterLog(outWriter{cmd}), ""
	}
	return auditLog, path
}

type outWriter struct{ cmd *cobra.Command }

func (o outWriter) WriteString(s string) (int, error) {
	return fmt.Fprint(o.cmd.OutOrStdout(), s)
}
