package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/friendsync/internal/config"
	"github.com/roach88/friendsync/internal/trigger"
)

// disconnectQuiesce is how long paho may spend flushing work on Disconnect, in ms.
const disconnectQuiesce = 250

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Deliver notifications until interrupted",
		Long: `Run the outbox dispatcher until SIGINT or SIGTERM.

mqtt.mode selects the topology:
  off        the outbox is reconciled in-process
  publish    the outbox is published to the broker
  subscribe  the outbox is published, and broker messages are reconciled

When metrics.listen is set, Prometheus metrics are served on /metrics.

Example:
  friendsync serve --config friendsync.yaml
  friendsync serve --db ./friends.db --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			opts.Logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return opts.withStore(func(st recordStore) error {
		handler, closeHandler, err := opts.outboxHandler(ctx, st)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to set up delivery", err)
		}
		defer closeHandler()

		if opts.Config.MQTT.Mode == config.MQTTSubscribe {
			bridge, ok := handler.(*trigger.Bridge)
			if !ok {
				return NewExitError(ExitCommandError, "subscribe mode requires an MQTT connection")
			}
			sub := trigger.NewSubscriber(bridge.Client(), opts.Config.MQTT.TopicPrefix, opts.newReconciler(st), opts.Logger)
			if err := sub.Start(ctx); err != nil {
				return WrapExitError(ExitFailure, "failed to subscribe", err)
			}
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer stopCancel()
				if err := sub.Stop(stopCtx); err != nil {
					opts.Logger.Warn("unsubscribe failed", "error", err)
				}
			}()
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return opts.newDispatcher(st, handler).Run(gctx)
		})
		if addr := opts.Config.Metrics.Listen; addr != "" {
			serveMetrics(gctx, g, addr, opts)
		}

		opts.Logger.Info("serving",
			"store", opts.Config.Store.Path,
			"backend", opts.Config.Store.Backend,
			"mqtt_mode", opts.Config.MQTT.Mode,
		)
		fmt.Fprintln(cmd.OutOrStdout(), "friendsync serving. Press Ctrl-C to stop.")

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "serve failed", err)
		}
		opts.Logger.Info("stopped gracefully")
		return nil
	})
}

// serveMetrics runs a /metrics endpoint in g until ctx ends.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, opts *RootOptions) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		opts.Logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// outboxHandler picks where outbox changes go: the broker when MQTT is on,
// the in-process reconciler otherwise. The returned func releases the broker
// connection.
func (o *RootOptions) outboxHandler(ctx context.Context, st recordStore) (trigger.Handler, func(), error) {
	m := o.Config.MQTT
	if m.Mode == config.MQTTOff {
		return o.newReconciler(st), func() {}, nil
	}

	client, err := trigger.Dial(ctx, trigger.MQTTOptions{
		Broker:   m.Broker,
		ClientID: m.ClientID,
		Username: m.Username,
		Password: m.Password,
	}, o.Logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		client.Disconnect(disconnectQuiesce)
	}
	return trigger.NewBridge(client, m.TopicPrefix), closeFn, nil
}
