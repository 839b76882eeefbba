// Package main: wallet bootstrap service.
//
// walletboot serve runs the bootstrap and serves its RESTful API until killed, walletboot init runs a single bootstrap
// attempt and prints its outcome, and walletboot watch prints the bootstrap states published to the message broker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tarancss/walletboot/lib/config"
)

var (
	confPath string
	monitor  bool
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:           "walletboot",
	Short:         "Wallet ecosystem bootstrap and synchronization service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&confPath, "config", "c", "", "get configuration from json file")
	rootCmd.PersistentFlags().BoolVarP(&monitor, "monitor", "m", false,
		"serve Prometheus metrics at http://localhost:9100/metrics")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log at debug level")

	rootCmd.AddCommand(serveCmd, initCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "walletboot:", err)
		os.Exit(1)
	}
}

// newLogger returns the production logger, at debug level with --verbose.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}

// loadConfig reads and validates the configuration.
func loadConfig(log *zap.Logger) (config.ServiceConfig, error) {
	conf, err := config.ExtractConfiguration(confPath)
	if err != nil {
		return conf, err
	}

	if err = conf.Validate(); err != nil {
		return conf, err
	}

	log.Info("configuration loaded", zap.Stringer("config", conf))

	return conf, nil
}
