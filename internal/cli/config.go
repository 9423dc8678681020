package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/leash/internal/config"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with leash configuration files",
	}
	cmd.AddCommand(newConfigValidateCmd(ctx))
	return cmd
}

func newConfigValidateCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a leash configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if ctx.configFile != nil {
				path = *ctx.configFile
			}
			cfg, err := config.Load(path)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (signature: %s).\n",
				cfg.Cleanup.Signature)
			return nil
		},
	}
	return cmd
}
