package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/radif/uploader/internal/db"
	"github.com/radif/uploader/internal/file"
	"github.com/radif/uploader/internal/server"
	"github.com/radif/uploader/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := db.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer pool.Close()

			if !skipMigrate {
				if err := db.Migrate(cfg.DatabaseURL); err != nil {
					return fmt.Errorf("database migration failed: %w", err)
				}
			}

			blobs, err := storage.New(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("storage init failed: %w", err)
			}
			slog.Info("storage ready", "driver", cfg.Storage.Driver)

			// Wire dependencies: repository → service → handler
			repo := file.NewRepository(pool)
			svc := file.NewService(repo, blobs, file.Options{
				PublicIDLength: cfg.FileIDLength,
				CacheMaxAge:    cfg.CacheMaxAge,
			})
			handler := file.NewHandler(svc, cfg.PublicURL, cfg.MaxUploadBytes)

			slog.Info("starting", "env", cfg.AppEnv, "public_url", cfg.PublicURL)
			return server.Run(ctx, ":"+cfg.Port, server.NewRouter(handler, cfg.UploadKey))
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply database migrations on startup")
	return cmd
}
