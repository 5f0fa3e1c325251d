package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDrainCommand creates the drain command.
func NewDrainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Deliver every pending notification and exit",
		Long: `Deliver the outbox until it is empty, then exit.

With mqtt.mode publish, notifications are published to the broker; otherwise
they are reconciled in-process. Exits 1 if any notification was dropped after
exhausting its delivery attempts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(opts, cmd)
		},
	}
}

func runDrain(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	return opts.withStore(func(st recordStore) error {
		handler, closeHandler, err := opts.outboxHandler(ctx, st)
		if err != nil {
			_ = formatter.Error(ErrCodeDelivery, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to set up delivery", err)
		}
		defer closeHandler()

		stats, err := opts.newDispatcher(st, handler).Drain(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeDelivery, err.Error(), stats)
			return WrapExitError(ExitFailure, "drain failed", err)
		}
		opts.Logger.Info("outbox drained",
			"delivered", stats.Delivered,
			"retried", stats.Retried,
			"dead", stats.Dead,
		)

		if formatter.JSON() {
			if err := formatter.Success(stats); err != nil {
				return err
			}
		} else {
			_ = formatter.Success(fmt.Sprintf("delivered %d, retried %d, dead %d",
				stats.Delivered, stats.Retried, stats.Dead))
		}
		if stats.Dead > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d notifications dropped", stats.Dead))
		}
		return nil
	})
}
