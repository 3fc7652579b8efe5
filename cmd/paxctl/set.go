package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/paxctl/internal/ble/protocol"
	"github.com/chaz8081/paxctl/internal/device"
)

var setTempCmd = &cobra.Command{
	Use:   "set-temp <celsius>",
	Short: "Set the oven temperature",
	Long: `Sets the oven set point on oven models.

Example:
  paxctl set-temp 195`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		celsius, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q: %w", args[0], err)
		}
		return withOven(cmd, func(ctx context.Context, p3 *device.Pax3) error {
			if err := p3.SetOvenTemp(ctx, celsius); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Oven set to %.1f°C\n", celsius)
			return nil
		})
	},
}

var setModeCmd = &cobra.Command{
	Use:   "set-mode <standard|boost|efficiency|stealth|flavor>",
	Short: "Set the oven heating profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := protocol.ParseDynamicMode(args[0])
		if err != nil {
			return err
		}
		return withOven(cmd, func(ctx context.Context, p3 *device.Pax3) error {
			if err := p3.SetOvenDynamicMode(ctx, mode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Heating profile set to %s\n", mode)
			return nil
		})
	},
}

// withOven opens a session and runs fn against its oven variant.
func withOven(cmd *cobra.Command, fn func(context.Context, *device.Pax3) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, false, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	p3, ok := s.Device().(*device.Pax3)
	if !ok {
		return fmt.Errorf("%s has no oven controls", s.Device().Type())
	}
	return fn(ctx, p3)
}
