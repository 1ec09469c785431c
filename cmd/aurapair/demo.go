package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/aurapair/config"
	"github.com/user/aurapair/host"
	"github.com/user/aurapair/radio/sim"
)

func newDemoCmd(v *viper.Viper, cfg *config.Config) *cobra.Command {
	var prompt, deny bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a simulated host and initiator in one process",
		Long: `Start a simulated host advertising host.name and pair with it from a
simulated initiator. The host approves by default. Use --prompt to decide
interactively or --deny to watch the request time out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hostCfg := cfg.Host
			if hostCfg.Name == "" {
				hostCfg.Name = "aurapair-demo"
			}
			if hostCfg.Address == "" {
				hostCfg.Address = "192.168.4.1"
			}
			if hostCfg.SSID == "" {
				hostCfg.SSID = "aurapair"
			}

			var approver host.Approver = host.AutoApprove{}
			switch {
			case prompt:
				approver = host.NewPromptApprover(os.Stdin, cmd.ErrOrStderr())
			case deny:
				approver = host.DenyAll{}
			}

			air := sim.NewAir(sim.DefaultSimulationConfig())
			r, err := startSimHost(air, hostCfg, approver)
			if err != nil {
				return err
			}
			defer r.Stop()

			return runInitiator(cmd.Context(), cmd.OutOrStdout(), *cfg, air.NewCentral(""), hostCfg.Name)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&prompt, "prompt", false, "ask before approving the request")
	f.BoolVar(&deny, "deny", false, "refuse every request")
	f.String("host-name", "", "name the simulated host advertises")
	f.String("ssid", "", "network name handed out on approval")
	f.String("password", "", "network password handed out on approval")
	f.String("address", "", "host address handed out on approval")
	f.Int("port", 0, "host port handed out on approval (default 8080)")

	_ = v.BindPFlag("host.name", f.Lookup("host-name"))
	_ = v.BindPFlag("host.ssid", f.Lookup("ssid"))
	_ = v.BindPFlag("host.password", f.Lookup("password"))
	_ = v.BindPFlag("host.address", f.Lookup("address"))
	_ = v.BindPFlag("host.port", f.Lookup("port"))
	return cmd
}

// startSimHost runs a responder on a new simulated device. A nil approver
// follows host.auto_approve.
func startSimHost(air *sim.Air, cfg config.HostConfig, approver host.Approver) (*host.Responder, error) {
	if approver == nil {
		approver = host.DenyAll{}
		if cfg.AutoApprove {
			approver = host.AutoApprove{}
		}
	}
	r := host.NewResponder(air.NewDevice(""), host.Config{
		Name:    cfg.Name,
		Network: cfg.Network(),
	}, approver)
	if err := r.Start(); err != nil {
		return nil, err
	}
	return r, nil
}
