package pax

import (
	"log/slog"
	"time"

	"github.com/chaz8081/paxctl/internal/ble/protocol"
	"github.com/chaz8081/paxctl/internal/device"
)

// Options configures sessions and probes.
type Options struct {
	DiscoveryTimeout time.Duration      // per discovery step; zero disables
	ReadTimeout      time.Duration      // device info reads; zero disables
	WriteTimeout     time.Duration      // per command write; zero disables
	Logger           *slog.Logger       // nil uses slog.Default()
	Registry         *protocol.Registry // nil uses the built-in decoders

	// Observe, if set, is subscribed to the session's variant before the
	// session starts, so it sees the device's first values.
	Observe func(device.Update)
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DiscoveryTimeout: 10 * time.Second,
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Registry == nil {
		o.Registry = protocol.NewRegistry()
	}
	return o
}
