package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"cosensync/internal/api"
	"cosensync/internal/config"
)

func newUploadCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload images and print their public URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				results := make([]api.UploadResponse, 0, len(args))
				for _, path := range args {
					resp, err := uploadFile(cmd, client, path)
					if err != nil {
						return fmt.Errorf("upload %s: %w", path, err)
					}
					results = append(results, resp)
				}

				var payload any = results
				if len(results) == 1 {
					payload = results[0]
				}
				return writeOutput(payload, func(w io.Writer) error {
					for _, resp := range results {
						if err := writeUploadText(w, resp); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

func uploadFile(cmd *cobra.Command, client *api.Client, path string) (api.UploadResponse, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return api.UploadResponse{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return api.UploadResponse{}, err
	}
	defer f.Close()

	return client.Upload(commandContext(cmd), filepath.Base(path), mt.String(), f)
}
