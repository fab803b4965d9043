package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mattiabonardi/endor-odm-go/internal/products"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk_server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the products HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		db, err := sdk.NewDatabase(cfg.DocumentDB, logger)
		if err != nil {
			return err
		}
		repository, err := products.NewRepository(db, cfg.DocumentDB.FindLimit)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.SchemaWatch && cfg.SchemaDir != "" {
			watcher := sdk.NewShapeWatcher(cfg.SchemaDir, shapePattern, db, logger)
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.ErrorWithFields("Shape watcher stopped", map[string]interface{}{"error": err.Error()})
				}
			}()
		}

		server := sdk_server.NewServerInitializer(db, logger).
			WithPort(cfg.ServerPort).
			WithHandlers(products.NewHandler(repository)).
			Build()
		return server.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
