package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Identify a device and print its device info",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

var probeAllowUnknown bool

func init() {
	probeCmd.Flags().BoolVar(&probeAllowUnknown, "allow-unknown", false, "open a generic session for unrecognised models")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, probeAllowUnknown, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	id := s.Identity()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Type:         %s\n", s.Device().Type())
	fmt.Fprintf(out, "Manufacturer: %s\n", id.Manufacturer)
	fmt.Fprintf(out, "Model:        %s\n", id.Model)
	fmt.Fprintf(out, "Serial:       %s\n", id.Serial)
	fmt.Fprintf(out, "Hardware:     %s\n", id.HardwareRev)
	fmt.Fprintf(out, "Firmware:     %s\n", id.SoftwareRev)
	return nil
}
