package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/popgen/pkg/client"
)

func submitCmd() *cobra.Command {
	var (
		kind         string
		outputDir    string
		pollInterval time.Duration
		attempts     uint
		noWait       bool
	)
	cmd := clientCommand(&cobra.Command{
		Use:   "submit [./path/to/configuration.json]",
		Short: "Submit a generation request and download its artifact",
		Long: `Submit a generation request, wait for it to finish and save the zip.

The configuration is read from the given file, or from stdin if the path is "-".
Without a path the server's default configuration is used.

Example configuration.json:

{"population": 100, "seed": 42, "gender": "F", "minAge": 20, "maxAge": 40}
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configuration, err := readConfiguration(cmd, args)
			if err != nil {
				return err
			}
			c := client.NewClient(client.ExtractCommandlineArgs())
			ctx := commandContext(cmd)

			created, err := c.Generate(ctx, configuration)
			if err != nil {
				return err
			}
			log.Infof("Submitted request %s", created.Uuid)
			fmt.Fprintln(cmd.OutOrStdout(), created.Uuid)
			if noWait {
				return nil
			}

			data, err := c.WaitForArtifact(ctx, created.Uuid, kind, pollInterval, attempts)
			if err != nil {
				return err
			}
			if kind == "" {
				kind = "default"
			}
			path := filepath.Join(outputDir, created.Uuid+"-"+kind+".zip")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return errors.WithStack(err)
			}
			log.Infof("Saved %s", path)
			return nil
		},
	})
	cmd.Flags().StringVar(&kind, "kind", "", "artifact kind to download (default or csv)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "directory to save the artifact in")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", time.Second, "how often to check whether the artifact is ready")
	cmd.Flags().UintVar(&attempts, "attempts", 600, "how many times to check before giving up")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "print the request id and exit without downloading")
	return cmd
}

func readConfiguration(cmd *cobra.Command, args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading configuration %s", args[0])
	}
	if !json.Valid(data) {
		return nil, errors.Errorf("configuration %s is not valid JSON", args[0])
	}
	return data, nil
}
