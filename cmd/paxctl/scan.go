package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/paxctl/internal/ble"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby Pax devices",
	Long: `Scans for BLE peripherals whose advertised name matches device.name_filter
and prints their addresses.

Examples:
  paxctl scan
  paxctl scan --timeout 20s --all`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanTimeout time.Duration
	scanAll     bool
)

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "scan duration (default: ble.scan_timeout)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "list every peripheral, not only name matches")
}

func runScan(cmd *cobra.Command, _ []string) error {
	timeout := cfg.BLE.ScanTimeout
	if scanTimeout > 0 {
		timeout = scanTimeout
	}
	filter := cfg.Device.NameFilter
	if scanAll {
		filter = ""
	}

	fmt.Fprintf(os.Stderr, "Scanning for %s...\n", timeout)
	devices, err := ble.ScanForDevices(ble.NewTinyGoAdapter(), filter, timeout)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(os.Stderr, "No devices found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%d\n", d.Name, d.Address, d.RSSI)
	}
	return w.Flush()
}
