package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radif/uploader/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if err := db.Migrate(a.cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return nil
		},
	}
}
