package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/leash/internal/teardown"
)

func newTeardownCmd(ctx *context) *cobra.Command {
	var containers bool

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Run the full end-of-session cleanup sequence",
		Long: "teardown runs the graceful-then-forceful sweep over every " +
			"process matching the configured signature, optionally removes " +
			"leaked session containers, and records everything in the " +
			"cleanup log.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			report := teardown.Run(cmd.Context(), teardown.Config{
				Signature:       cfg.SignatureRegexp(),
				LogDir:          cfg.Cleanup.LogDir,
				GracefulTimeout: cfg.Cleanup.GracefulTimeout,
				Workers:         cfg.Cleanup.Workers,
				Containers:      containers || cfg.Cleanup.Containers,
				Logger:          ctx.logger(),
				Fallback:        cmd.OutOrStdout(),
			})

			fmt.Fprintf(cmd.OutOrStdout(), "Teardown complete: killed %d, failed %d.\n",
				report.Killed(), report.Failed())
			if report.Containers.Removed > 0 || report.Containers.Failed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Containers: removed %d, failed %d.\n",
					report.Containers.Removed, report.Containers.Failed)
			}
			for _, note := range report.Notes {
				fmt.Fprintf(cmd.ErrOrStderr(), "note: %s\n", note)
			}
			if report.LogPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleanup log: %s\n", report.LogPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&containers, "containers", false, "Also sweep leaked session containers")

	return cmd
}
