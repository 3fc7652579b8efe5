package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockAdapter refuses the first `failures` connects, then succeeds.
type mockAdapter struct {
	mu       sync.Mutex
	devices  []Device
	failures int
	attempts int
}

type nopPeripheral struct{ id string }

func (p *nopPeripheral) ID() string                                { return p.id }
func (p *nopPeripheral) SetHandler(func(Event))                    {}
func (p *nopPeripheral) DiscoverServices([]string)                 {}
func (p *nopPeripheral) DiscoverCharacteristics(Service, []string) {}
func (p *nopPeripheral) ReadValue(Characteristic)                  {}
func (p *nopPeripheral) WriteValue(Characteristic, []byte)         {}
func (p *nopPeripheral) EnableNotifications(Characteristic)        {}
func (p *nopPeripheral) Disconnect() error                         { return nil }

func (a *mockAdapter) Enable() error { return nil }

func (a *mockAdapter) Scan(_ context.Context, _ string) ([]Device, error) {
	return a.devices, nil
}

func (a *mockAdapter) Connect(_ context.Context, addr string) (Peripheral, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	if a.attempts <= a.failures {
		return nil, errors.New("mock: connect refused")
	}
	return &nopPeripheral{id: addr}, nil
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
	var _ Peripheral = (*nopPeripheral)(nil)
}

func TestReconnectBackoff(t *testing.T) {
	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second, // still capped
	}

	for i, want := range delays {
		got := backoffDelay(i, 30)
		if got != want {
			t.Errorf("backoffDelay(%d, 30) = %v, want %v", i, got, want)
		}
	}
}

func TestConnectWithRetrySucceedsAfterFailures(t *testing.T) {
	adapter := &mockAdapter{failures: 2}
	var slept []time.Duration
	opts := DefaultConnectOptions()
	opts.sleep = func(d time.Duration) { slept = append(slept, d) }

	p, err := ConnectWithRetry(context.Background(), adapter, "AA:BB:CC:DD:EE:FF", opts)
	if err != nil {
		t.Fatalf("ConnectWithRetry() error = %v", err)
	}
	if p.ID() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("ID() = %q", p.ID())
	}
	if adapter.attempts != 3 {
		t.Errorf("attempts = %d, want 3", adapter.attempts)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Errorf("backoff delays = %v, want [1s 2s]", slept)
	}
}

func TestConnectWithRetryGivesUp(t *testing.T) {
	adapter := &mockAdapter{failures: 10}
	opts := DefaultConnectOptions()
	opts.sleep = func(time.Duration) {}

	_, err := ConnectWithRetry(context.Background(), adapter, "AA:BB:CC:DD:EE:FF", opts)
	if err == nil {
		t.Fatal("ConnectWithRetry() should fail")
	}
	if adapter.attempts != opts.Attempts {
		t.Errorf("attempts = %d, want %d", adapter.attempts, opts.Attempts)
	}
}

func TestScanForDevices(t *testing.T) {
	adapter := &mockAdapter{devices: []Device{
		{Name: "PAX3", Address: "AA:BB:CC:DD:EE:FF", RSSI: -45},
	}}

	result, err := ScanForDevices(adapter, DefaultNameFilter, 5*time.Second)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d devices, want 1", len(result))
	}
	if result[0].Name != "PAX3" {
		t.Errorf("Name = %q, want %q", result[0].Name, "PAX3")
	}
}
