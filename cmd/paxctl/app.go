package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/paxctl/internal/ble"
	"github.com/chaz8081/paxctl/internal/ble/protocol"
	"github.com/chaz8081/paxctl/internal/config"
	"github.com/chaz8081/paxctl/internal/device"
	"github.com/chaz8081/paxctl/internal/pax"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

// setup loads the config and installs the process logger before any
// subcommand runs.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "init-config" {
		return nil
	}

	c, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if address != "" {
		c.Device.Address = address
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	cfg = c

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadOrDefault(config.DefaultConfigPath())
}

func sessionOptions(observe func(device.Update)) pax.Options {
	return pax.Options{
		DiscoveryTimeout: cfg.Session.DiscoveryTimeout,
		ReadTimeout:      cfg.Session.ReadTimeout,
		WriteTimeout:     cfg.Session.WriteTimeout,
		Logger:           logger,
		Observe:          observe,
	}
}

// resolveAddress returns the configured address, or scans and picks the
// strongest matching device.
func resolveAddress(adapter ble.Adapter) (string, error) {
	if cfg.Device.Address != "" {
		return cfg.Device.Address, nil
	}
	logger.Info("[BLE] no address configured, scanning", "filter", cfg.Device.NameFilter, "timeout", cfg.BLE.ScanTimeout)
	devices, err := ble.ScanForDevices(adapter, cfg.Device.NameFilter, cfg.BLE.ScanTimeout)
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no devices matching %q found", cfg.Device.NameFilter)
	}
	best := devices[0]
	for _, d := range devices[1:] {
		if d.RSSI > best.RSSI {
			best = d
		}
	}
	logger.Info("[BLE] selected device", "name", best.Name, "address", best.Address, "rssi", best.RSSI)
	return best.Address, nil
}

func connect(ctx context.Context) (ble.Peripheral, error) {
	adapter := ble.NewTinyGoAdapter()
	addr, err := resolveAddress(adapter)
	if err != nil {
		return nil, err
	}
	return ble.ConnectWithRetry(ctx, adapter, addr, ble.ConnectOptions{
		Attempts:     cfg.BLE.ConnectAttempts,
		ReconnectMax: cfg.BLE.ReconnectMax,
		Logger:       logger,
	})
}

// openSession connects, probes and waits until the session is usable. With
// allowUnknown, unrecognised hardware gets a generic session. observe, if
// non-nil, receives every attribute update from the first one on.
func openSession(ctx context.Context, allowUnknown bool, observe func(device.Update)) (*pax.Session, error) {
	p, err := connect(ctx)
	if err != nil {
		return nil, err
	}

	opts := sessionOptions(observe)
	res, err := pax.NewProber(opts).Probe(ctx, p)
	if err != nil {
		_ = p.Disconnect()
		return nil, err
	}

	s, err := res.Require()
	if errors.Is(err, pax.ErrUnknownDeviceModel) && allowUnknown {
		logger.Warn("[PAX] unknown model, continuing with generic session", "model", res.Model)
		s, err = pax.OpenGeneric(p, opts), nil
	}
	if err != nil {
		_ = p.Disconnect()
		return nil, err
	}

	if err := s.Ready(ctx); err != nil {
		s.Close()
		return nil, err
	}

	extra, err := cfg.SubscribeAttributes()
	if err != nil {
		s.Close()
		return nil, err
	}
	if extra.Len() > 0 {
		attrs := s.Device().SubscriptionAttributes().Union(extra)
		if err := s.Send(ctx, protocol.StatusUpdateMessage{Attributes: attrs}); err != nil {
			logger.Warn("[PAX] extra subscription failed", "error", err)
		}
	}
	return s, nil
}
