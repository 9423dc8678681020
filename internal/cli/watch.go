package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/leash/internal/reap"
	"github.com/Paintersrp/leash/internal/track"
	"github.com/Paintersrp/leash/internal/tui"
)

func newWatchCmd(ctx *context) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Interactively watch processes matching the cleanup signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !supportsInteractiveOutput(cmd) {
				return fmt.Errorf("watch requires an interactive terminal")
			}

			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			signature := cfg.SignatureRegexp()
			graceful := cfg.Cleanup.GracefulTimeout

			ui := tui.New(
				func() ([]reap.Process, error) {
					return reap.ListMatching(signature)
				},
				func(killCtx stdcontext.Context, pid int) track.Result {
					return track.TerminatePID(killCtx, pid, graceful, false)
				},
				tui.WithInterval(interval),
				tui.WithLogger(ctx.logger()),
			)
			return ui.Run(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Refresh interval for the process table")

	return cmd
}

func supportsInteractiveOutput(cmd *cobra.Command) bool {
	out, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(out.Fd()))
}
