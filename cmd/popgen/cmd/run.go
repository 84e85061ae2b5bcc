package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/popgen/internal/common"
	"github.com/G-Research/popgen/internal/popgen"
	"github.com/G-Research/popgen/internal/popgen/configuration"
)

const CustomConfigLocation string = "config"

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the popgen service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			common.ConfigureLogging()

			userSpecifiedConfigs, err := cmd.Flags().GetStringSlice(CustomConfigLocation)
			if err != nil {
				return err
			}
			var config configuration.PopgenConfiguration
			common.LoadConfig(&config, "./config/popgen", userSpecifiedConfigs, cmd.Flags())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("Starting...")
			return popgen.New().StartUp(ctx, &config)
		},
	}
	cmd.Flags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)
	cmd.Flags().Uint16("httpPort", 0, "port for the HTTP and websocket API, overriding the config file")
	cmd.Flags().Uint16("metricsPort", 0, "port for /metrics, overriding the config file")
	return cmd
}
