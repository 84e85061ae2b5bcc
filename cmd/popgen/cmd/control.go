package cmd

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/popgen/pkg/client"
)

func statusCmd() *cobra.Command {
	return clientCommand(&cobra.Command{
		Use:   "status <uuid>",
		Short: "Show the state of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client.NewClient(client.ExtractCommandlineArgs()).Status(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return errors.WithStack(err)
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	})
}

func transitionCmd(name string, short string, apply func(*client.Client, context.Context, string) error) *cobra.Command {
	return clientCommand(&cobra.Command{
		Use:   name + " <uuid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewClient(client.ExtractCommandlineArgs())
			if err := apply(c, commandContext(cmd), args[0]); err != nil {
				return err
			}
			log.Infof("%s: %s", name, args[0])
			return nil
		},
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
