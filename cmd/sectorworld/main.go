// Command sectorworld runs the sector world server, its load test bots and storage tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xiaonanln/sectorworld/engine/config"
	"github.com/xiaonanln/sectorworld/engine/kvdb"
)

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sectorworld",
		Short:         "Sector world game server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "sectorworld.ini", "config file path")

	rootCmd.AddCommand(
		serveCmd(),
		botCmd(),
		sectorsCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file given by -c
func loadConfig() (*config.SectorWorldConfig, error) {
	cfg, err := config.Read(configFile)
	if err != nil {
		return nil, err
	}
	config.SetConfigFile(configFile)
	return cfg, nil
}

func openStorage(cfg *config.SectorWorldConfig) (*kvdb.DB, error) {
	return kvdb.Open(&cfg.Storage)
}
