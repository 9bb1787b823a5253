package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/radif/uploader/internal/config"
	"github.com/radif/uploader/internal/logging"
)

// app carries state shared by subcommands once the root has loaded it.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "uploader",
		Short:        "Uploader stores files and hands out public and deletion URLs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logging.Setup(os.Stderr, cfg.LogFormat, cfg.LogLevel); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	serve := newServeCmd(a)
	cmd.AddCommand(serve, newMigrateCmd(a))
	// Running the bare binary serves.
	cmd.Flags().AddFlagSet(serve.Flags())
	cmd.RunE = serve.RunE

	return cmd
}
