package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/aurapair/config"
	"github.com/user/aurapair/logger"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	v := viper.New()
	var cfg config.Config

	rootCmd := &cobra.Command{
		Use:   "aurapair",
		Short: "Bootstrap a peer connection over BLE",
		Long: `aurapair finds a named host over BLE, asks it for approval and prints the
network parameters the host hands back.

Commands:
  aurapair pair --peer NAME   Pair with a host
  aurapair demo               Run a simulated host and initiator in one process
  aurapair version            Print the version`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			loaded, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			cfg = loaded

			// stdout carries results only.
			logger.SetOutput(os.Stderr)
			logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
			return nil
		},
	}
	config.BindFlags(rootCmd, v)

	rootCmd.AddCommand(newPairCmd(v, &cfg))
	rootCmd.AddCommand(newDemoCmd(v, &cfg))
	rootCmd.AddCommand(newVersionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
