package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cosensync/internal/config"
	"cosensync/internal/server"
	"cosensync/internal/store"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var noJournal bool

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"srv"},
		Short:   "Run the upload and gc API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			blobs, err := openBlobStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
			}

			var journal server.RunJournal
			if !noJournal {
				logger.Info("opening gc journal", "path", cfg.JournalPath)
				st, err := store.Open(cfg.JournalPath)
				if err != nil {
					return err
				}
				defer st.Close()
				journal = st
			}

			srv := server.New(addr, blobs, journal, logger, serverOptions(cfg))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record gc runs")
	return cmd
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		Version:                 version,
		StorageBackend:          cfg.Storage.Backend,
		Mount:                   cfg.Storage.Mount,
		PublicBaseURL:           cfg.PublicBaseURL,
		MaxUploadBytes:          cfg.Uploads.MaxUploadBytes,
		MultipartMaxMemory:      cfg.Uploads.MultipartMaxMemory,
		RejectMediaTypeMismatch: cfg.Uploads.RejectMediaTypeMismatch,
		MaxExportBytes:          cfg.GC.MaxExportBytes,
		AllowedOrigins:          cfg.CORS.AllowedOrigins,
	}
}

// commandContext returns cmd's context, which is nil when a command is
// invoked outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
