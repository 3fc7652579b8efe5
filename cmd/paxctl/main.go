package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "paxctl",
	Short: "Monitor and control Pax vaporizers over Bluetooth LE",
	Long: `paxctl talks to Pax devices over Bluetooth LE:

- Scan for nearby devices
- Probe a device to identify its model and read its device info
- Watch live attribute updates (battery, charge state, oven temperature)
- Set the oven temperature and heating profile on oven models`,
	Version:           version,
	PersistentPreRunE: setup,
}

var (
	configPath string
	logLevel   string
	address    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(setTempCmd)
	rootCmd.AddCommand(setModeCmd)
	rootCmd.AddCommand(initConfigCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/paxctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&address, "address", "a", "", "device address; overrides device.address")
}
