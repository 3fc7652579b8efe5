package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/paxctl/internal/ble/protocol"
	"github.com/chaz8081/paxctl/internal/device"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print attribute updates as the device reports them",
	Long: `Connects, subscribes to the device's attributes and prints every update
until interrupted or the device disconnects.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchAllowUnknown bool

func init() {
	watchCmd.Flags().BoolVar(&watchAllowUnknown, "allow-unknown", false, "open a generic session for unrecognised models")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	s, err := openSession(ctx, watchAllowUnknown, func(u device.Update) {
		fmt.Fprintf(out, "%s  %s\n", time.Now().Format(time.TimeOnly), formatUpdate(u))
	})
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(os.Stderr, "Watching %s %s (Ctrl+C to stop)\n", s.Device().Type(), s.Identity().Serial)
	select {
	case <-ctx.Done():
		return nil
	case <-s.Done():
		return s.Err()
	}
}

func formatUpdate(u device.Update) string {
	switch v := u.Value.(type) {
	case float64:
		return fmt.Sprintf("%-18s %.1f°C", attributeLabel(u.Attribute), v)
	case int:
		if u.Attribute == protocol.Battery || u.Attribute == protocol.Brightness {
			return fmt.Sprintf("%-18s %d%%", attributeLabel(u.Attribute), v)
		}
	case protocol.HeaterRangesMessage:
		return fmt.Sprintf("%-18s %.1f-%.1f°C", attributeLabel(u.Attribute), v.MinCelsius, v.MaxCelsius)
	}
	return fmt.Sprintf("%-18s %v", attributeLabel(u.Attribute), u.Value)
}

var attributeLabels = map[protocol.MessageType]string{
	protocol.Battery:             "battery",
	protocol.ChargeStatus:        "charge",
	protocol.HeatingParams:       "oven temp",
	protocol.CurrentTargetTemp:   "target temp",
	protocol.HeaterSetPoint:      "set temp",
	protocol.HeatingState:        "heating",
	protocol.DynamicMode:         "mode",
	protocol.HeaterRanges:        "heater range",
	protocol.PodInserted:         "pod inserted",
	protocol.LockStatus:          "locked",
	protocol.Brightness:          "brightness",
	protocol.DisplayName:         "name",
	protocol.SupportedAttributes: "supported",
}

func attributeLabel(t protocol.MessageType) string {
	if l, ok := attributeLabels[t]; ok {
		return l
	}
	return t.String()
}
