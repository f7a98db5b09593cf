package main

import (
	"github.com/spf13/cobra"

	"capstan/internal/daemonrun"
)

// newDaemonRunCommand runs the daemon in the foreground. Hidden because
// `capstan start` launches it detached; invoking it directly is only useful
// for supervisors and debugging.
func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	var development bool

	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the capstan daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.resolvedLogLevel(cfg),
				Development: development,
				Diagnostic:  diagnostic,
			})
		},
	}

	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, diagnosticFlagUsage)
	cmd.Flags().BoolVar(&development, "dev", false, "Log to console in development format")
	_ = cmd.Flags().MarkHidden("dev")
	return cmd
}
