package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cosensync/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		logLevel     string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:           "cosensync",
		Short:         "Cosensync stores note images under random names and collects the ones no page links to",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return setOutputFormat(outputFormat)
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json, yaml)")

	cmd.AddCommand(
		newServeCmd(cfg),
		newUploadCmd(cfg),
		newGCCmd(cfg),
		newInfoCmd(cfg),
		newConfigCmd(cfg),
	)

	return cmd
}
