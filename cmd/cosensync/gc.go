package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"cosensync/internal/api"
	"cosensync/internal/config"
	"cosensync/internal/gc"
	"cosensync/internal/store"
)

func newGCCmd(cfg *config.Config) *cobra.Command {
	var (
		dryRun  bool
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "gc <export.json|->",
		Short: "Delete stored images no page in the backup export links to",
		Long: "Reads a backup export (a file, or stdin when the argument is -) and deletes every stored " +
			"image whose identifier does not appear in it. With --offline the store is reconciled " +
			"directly instead of through the server.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			export, err := readExportArg(cmd, args[0])
			if err != nil {
				return err
			}

			var resp api.GCResponse
			if offline {
				resp, err = runOfflineGC(cmd, cfg, export, dryRun)
			} else {
				err = withClient(cfg, func(client *api.Client) error {
					var gcErr error
					resp, gcErr = client.GC(commandContext(cmd), bytes.NewReader(export), dryRun)
					return gcErr
				})
			}
			if err != nil {
				return err
			}

			return writeOutput(resp, func(w io.Writer) error {
				return writeGCText(w, resp)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report orphaned images without deleting them")
	cmd.Flags().BoolVar(&offline, "offline", false, "open the configured storage directly instead of calling the server")
	cmd.AddCommand(newGCRunsCmd(cfg))
	return cmd
}

func newGCRunsCmd(cfg *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded gc runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListGCRuns(commandContext(cmd), limit)
				if err != nil {
					return err
				}
				return writeOutput(resp, func(w io.Writer) error {
					return writeGCRunsText(w, resp.Runs)
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", store.DefaultRunsLimit, "maximum number of runs to list")
	return cmd
}

func readExportArg(cmd *cobra.Command, arg string) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	if arg == "-" {
		payload, err = io.ReadAll(cmd.InOrStdin())
	} else {
		payload, err = os.ReadFile(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("read backup export: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("backup export is empty")
	}
	return payload, nil
}

// runOfflineGC reconciles the configured storage without a server. Runs are
// journaled the same way the server journals them.
func runOfflineGC(cmd *cobra.Command, cfg *config.Config, export []byte, dryRun bool) (api.GCResponse, error) {
	ctx := commandContext(cmd)
	logger := slog.Default().With("component", "gc")

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return api.GCResponse{}, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	opts := gc.Options{Logger: logger}
	if cfg.JournalPath != "" {
		st, err := store.Open(cfg.JournalPath)
		if err != nil {
			return api.GCResponse{}, err
		}
		defer st.Close()
		opts.Recorder = st
	}

	result, err := gc.New(blobs, opts).CollectPayload(ctx, export, dryRun)
	if err != nil {
		return api.GCResponse{}, err
	}
	return api.NewGCResponse(result), nil
}
