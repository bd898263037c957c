package main

import (
	"io"

	"github.com/spf13/cobra"

	"cosensync/internal/api"
	"cosensync/internal/config"
)

func newInfoCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show server storage info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(commandContext(cmd))
				if err != nil {
					return err
				}
				return writeOutput(resp, func(w io.Writer) error {
					return writeInfoText(w, resp)
				})
			})
		},
	}
}
