package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/spf13/cobra"
)

var pingTimeout time.Duration

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the configured document store answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := sdk.NewDatabase(cfg.DocumentDB, newLogger(cfg))
		if err != nil {
			return err
		}
		defer db.Close(context.Background())

		ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
		defer cancel()
		start := time.Now()
		if err := db.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s answered in %s\n", cfg.DocumentDB.RedactedURI(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "give up after this long")
	rootCmd.AddCommand(pingCmd)
}
