package main

import (
	"fmt"
	"os"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk_configuration"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "endor-odm",
	Short: "Typed document repository over MongoDB",
	Long: `endor-odm serves the products API on top of a typed MongoDB repository
and checks shape definition files against the shapes compiled into the binary.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (default: environment and .env)")
}

func loadConfig() (*sdk_configuration.ServerConfig, error) {
	if configPath != "" {
		return sdk_configuration.LoadFile(configPath)
	}
	return sdk_configuration.LoadConfiguration()
}

func newLogger(cfg *sdk_configuration.ServerConfig) *sdk.Logger {
	return sdk.NewLogger(sdk.LogConfig{
		LogType: sdk.LogType(cfg.LogType),
		Level:   sdk.LogLevel(cfg.LogLevel),
		Output:  os.Stderr,
	}, sdk.LogContext{Database: cfg.DocumentDB.Database})
}
