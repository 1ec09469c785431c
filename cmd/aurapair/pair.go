package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/user/aurapair/config"
	"github.com/user/aurapair/handshake"
	"github.com/user/aurapair/logger"
	"github.com/user/aurapair/protocol"
	"github.com/user/aurapair/radio"
	"github.com/user/aurapair/radio/bluez"
	"github.com/user/aurapair/radio/sim"
)

func newPairCmd(v *viper.Viper, cfg *config.Config) *cobra.Command {
	var peer string

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Find a host by name and request its network parameters",
		Long: `Scan for a host advertising --peer, send it a pairing request and wait
for approval. Prints the host's network parameters on success.

With --backend sim the host is simulated in-process from the host.* settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, cleanup, err := openRadio(*cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			return runInitiator(cmd.Context(), cmd.OutOrStdout(), *cfg, adapter, peer)
		},
	}

	f := cmd.Flags()
	f.StringVar(&peer, "peer", "", "advertised name of the host to pair with")
	f.String("name", "", "name sent to the host (default hostname)")
	f.String("id", "", "id sent to the host (default random)")
	f.Duration("timeout", 0, "give up after this long (default 15s)")
	_ = cmd.MarkFlagRequired("peer")

	_ = v.BindPFlag("local_name", f.Lookup("name"))
	_ = v.BindPFlag("local_id", f.Lookup("id"))
	_ = v.BindPFlag("timeout", f.Lookup("timeout"))
	return cmd
}

// openRadio returns the central-role adapter for the configured backend.
func openRadio(cfg config.Config) (radio.Adapter, func(), error) {
	switch cfg.Radio.Backend {
	case config.BackendBlueZ:
		a, err := bluez.New(cfg.Radio.Adapter)
		if err != nil {
			return nil, nil, err
		}
		return a, func() {}, nil
	default:
		air := sim.NewAir(sim.DefaultSimulationConfig())
		cleanup := func() {}
		if cfg.Host.Name != "" {
			r, err := startSimHost(air, cfg.Host, nil)
			if err != nil {
				return nil, nil, err
			}
			cleanup = r.Stop
		}
		return air.NewCentral(""), cleanup, nil
	}
}

// runInitiator pairs with peer and prints the result. Metrics are served for
// the lifetime of the operation when an address is configured.
func runInitiator(ctx context.Context, out io.Writer, cfg config.Config, adapter radio.Adapter, peer string) error {
	metrics := handshake.NewMetrics()
	initiator := handshake.NewInitiator(radio.NewLease(adapter), handshake.Options{
		Timeout: cfg.Timeout,
		Events:  handshake.NewEventLog(cfg.EventLogPath()),
		Metrics: metrics,
		OnSoftFailure: func(sf *handshake.SoftFailure) {
			logger.Debug("pair", "Soft failure at %s", sf.Step)
		},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsAddr, metrics)
		})
	}

	var resp protocol.HandshakeResponse
	g.Go(func() error {
		defer cancel()
		r, err := initiator.Pair(ctx, peer, cfg.LocalName, cfg.LocalID)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return printResponse(out, cfg.Output, resp)
}

func printResponse(out io.Writer, format string, resp protocol.HandshakeResponse) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintf(out, "ssid:     %s\n", resp.NetworkName)
	fmt.Fprintf(out, "password: %s\n", resp.NetworkPassword)
	fmt.Fprintf(out, "host:     %s:%d\n", resp.HostAddress, resp.HostPort)
	return nil
}
