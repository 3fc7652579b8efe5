package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultNameFilter matches the local name Pax devices advertise.
const DefaultNameFilter = "pax"

// ConnectOptions configures connection establishment.
type ConnectOptions struct {
	Attempts     int          // connect attempts before giving up
	ReconnectMax int          // max backoff between attempts, in seconds
	Logger       *slog.Logger // nil uses slog.Default()

	sleep func(time.Duration) // test hook
}

// DefaultConnectOptions returns sensible defaults.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		Attempts:     3,
		ReconnectMax: 30,
	}
}

// backoffDelay returns the reconnection delay for attempt n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	max := time.Duration(maxSeconds) * time.Second
	if delay > max {
		return max
	}
	return delay
}

// ScanForDevices scans for peripherals whose name contains nameFilter.
func ScanForDevices(adapter Adapter, nameFilter string, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, nameFilter)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

// ConnectWithRetry enables the adapter and connects to address, retrying
// with exponential backoff. Only link establishment is retried; anything
// that happens on the established link is the caller's concern.
func ConnectWithRetry(ctx context.Context, adapter Adapter, address string, opts ConnectOptions) (Peripheral, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < opts.Attempts; attempt++ {
		// First attempt is immediate; subsequent attempts use backoff.
		if attempt > 0 {
			delay := backoffDelay(attempt-1, opts.ReconnectMax)
			log.Info("[BLE] connect backoff", "attempt", attempt+1, "delay", delay)
			if opts.sleep != nil {
				opts.sleep(delay)
			} else {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
				}
			}
		}

		p, err := adapter.Connect(ctx, address)
		if err == nil {
			log.Info("[BLE] connected", "address", address)
			return p, nil
		}
		lastErr = err
		log.Warn("[BLE] connect failed", "error", err, "attempt", attempt+1)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("ble: connect to %s after %d attempts: %w", address, opts.Attempts, lastErr)
}
