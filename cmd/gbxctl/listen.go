package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"gbxremote/client"
	"gbxremote/config"
	"gbxremote/dispatch"
	"gbxremote/logx"
	"gbxremote/message"
)

func listenCmd(cfg *config.Config) *cobra.Command {
	var enable bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream callbacks pushed by the dedicated server",
		Long: `Print every callback pushed by the dedicated server as a log line,
reconnecting when the connection drops.

With --redis-addr each callback is also published as JSON on
--redis-channel. With --metrics-addr Prometheus metrics are served on
/metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if cfg.MetricsAddr != "" {
				srv := serveMetrics(cfg.MetricsAddr)
				defer srv.Close()
			}

			c := newClient(cfg)
			if err := connect(ctx, cfg, c); err != nil {
				return err
			}
			defer c.Disconnect()

			if enable {
				// Callbacks stay off until the server is told to send them.
				if _, err := c.Query(ctx, "EnableCallbacks", true); err != nil {
					return err
				}
			}

			d := dispatch.New(c, dispatch.Options{Interval: cfg.PollInterval, Server: c.Addr()})
			d.OnAny(func(_ context.Context, call *message.Call) error {
				logx.Log.Info().Str("method", call.MethodName).Interface("params", call.Params).Msg("callback")
				return nil
			})

			if cfg.RedisAddr != "" {
				sink, err := dispatch.NewRedisSink(ctx, cfg.RedisAddr, cfg.RedisChannel)
				if err != nil {
					return err
				}
				defer sink.Close()
				d.AddSink(sink)
				logx.Log.Info().Str("channel", sink.Channel()).Msg("publishing callbacks to redis")
			}

			logx.Log.Info().Str("addr", c.Addr()).Str("session", d.Session()).Msg("listening for callbacks")
			return runDispatcher(ctx, c, d, enable)
		},
	}

	cmd.Flags().BoolVar(&enable, "enable-callbacks", true, "send EnableCallbacks(true) after connecting")

	return cmd
}

// runDispatcher runs d until ctx ends, reconnecting after a lost connection.
func runDispatcher(ctx context.Context, c *client.Client, d *dispatch.Dispatcher, enable bool) error {
	for {
		err := d.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logx.Log.Warn().Err(err).Msg("connection lost")

		if err := c.Reconnect(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if enable {
			if _, err := c.Query(ctx, "EnableCallbacks", true); err != nil {
				return err
			}
		}
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registerMetrics(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	logx.Log.Info().Str("addr", addr).Msg("serving metrics on /metrics")
	return srv
}
