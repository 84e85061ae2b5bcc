package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/popgen/internal/common"
	"github.com/G-Research/popgen/pkg/client"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "popgen",
		Short:         "popgen runs and drives synthetic population generation requests.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	client.AddPopgenApiConnectionCommandlineArgs(cmd)

	cmd.AddCommand(
		runCmd(),
		submitCmd(),
		statusCmd(),
		transitionCmd("start", "Start generating records for a configured request", (*client.Client).Start),
		transitionCmd("pause", "Pause a running request", (*client.Client).Pause),
		transitionCmd("resume", "Resume a paused request", (*client.Client).Resume),
		transitionCmd("stop", "Stop a request and discard its output", (*client.Client).Stop),
	)

	return cmd
}

// clientCommand configures command-line logging before any client subcommand runs.
func clientCommand(cmd *cobra.Command) *cobra.Command {
	cmd.PreRun = func(*cobra.Command, []string) {
		common.ConfigureCommandLineLogging()
	}
	return cmd
}
