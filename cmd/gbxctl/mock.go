package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"gbxremote/config"
	"gbxremote/logx"
	"gbxremote/message"
	"gbxremote/registry"
	"gbxremote/server"
)

func mockCmd(cfg *config.Config) *cobra.Command {
	var (
		listen   string
		password string
		tick     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a fake dedicated server",
		Long: `Run a fake dedicated server speaking GBXRemote 2. It answers a handful
of common methods, system.multicall and system.listMethods, and can push a
chat callback at a fixed interval.

With --server-name and --etcd the mock registers itself so clients can
discover it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svr := server.NewServer(server.Options{MaxRequestSize: cfg.MaxRequestSize})
			registerMockMethods(svr, password)
			if err := svr.Listen("tcp", listen); err != nil {
				return err
			}
			go svr.Serve()
			logx.Log.Info().Str("addr", svr.Addr()).Msg("mock dedicated server listening")

			if cfg.ServerName != "" && len(cfg.EtcdEndpoints) > 0 {
				reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints, cfg.ConnectTimeout)
				if err != nil {
					return err
				}
				defer reg.Close()
				inst := registry.ServerInstance{Addr: svr.Addr(), Login: "mock", Weight: 1, Version: version}
				if err := reg.Register(ctx, cfg.ServerName, inst, 10); err != nil {
					return err
				}
				defer reg.Deregister(context.Background(), cfg.ServerName, inst.Addr)
				logx.Log.Info().Str("name", cfg.ServerName).Msg("registered in etcd")
			}

			var ticks <-chan time.Time
			if tick > 0 {
				t := time.NewTicker(tick)
				defer t.Stop()
				ticks = t.C
			}
			for {
				select {
				case <-ctx.Done():
					logx.Log.Info().Msg("shutting down mock server")
					return svr.Shutdown(5 * time.Second)
				case <-ticks:
					svr.Notify("ManiaPlanet.PlayerChat", 0, "mock", "tick", false)
				}
			}
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:5000", "listen address")
	cmd.Flags().StringVar(&password, "password", "SuperAdmin", "password accepted by Authenticate")
	cmd.Flags().DurationVar(&tick, "tick", 0, "push a chat callback at this interval, 0 disables")

	return cmd
}

func registerMockMethods(svr *server.Server, password string) {
	svr.Handle("GetVersion", func(context.Context, []any) (any, error) {
		return message.NewStruct(
			"Name", "ManiaPlanet",
			"TitleId", "TMStadium@nadeo",
			"Version", "3.3.0",
			"Build", "2019-10-23_20_00",
			"ApiVersion", "2013-04-16",
		), nil
	})
	svr.Handle("GetStatus", func(context.Context, []any) (any, error) {
		return message.NewStruct("Code", 4, "Name", "Running - Play"), nil
	})
	svr.Handle("Authenticate", func(_ context.Context, params []any) (any, error) {
		if len(params) != 2 || params[1] != password {
			return nil, server.Fault(-1000, "Password incorrect.")
		}
		return true, nil
	})
	svr.Handle("EnableCallbacks", func(context.Context, []any) (any, error) {
		return true, nil
	})
	svr.Handle("GetPlayerList", func(context.Context, []any) (any, error) {
		return []any{}, nil
	})
	svr.Handle("GetPlayerInfo", func(context.Context, []any) (any, error) {
		return nil, server.Fault(-1000, "Login unknown.")
	})
	svr.Handle("ChatSendServerMessage", func(_ context.Context, params []any) (any, error) {
		if len(params) == 0 {
			return nil, server.Fault(-1000, "Wrong number of parameters.")
		}
		svr.Notify("ManiaPlanet.PlayerChat", 0, "mock", params[0], false)
		return true, nil
	})
}
