package pax

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chaz8081/paxctl/internal/ble"
	"github.com/chaz8081/paxctl/internal/ble/bletest"
	"github.com/chaz8081/paxctl/internal/ble/crypto"
	"github.com/chaz8081/paxctl/internal/device"
)

const (
	testSerial = "AB12CD34"
	waitFor    = 2 * time.Second
	tick       = 5 * time.Millisecond
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.DiscoveryTimeout = time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return opts
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}

func testKey(t *testing.T) crypto.Key {
	t.Helper()
	key, err := crypto.DeriveKey(testSerial)
	require.NoError(t, err)
	return key
}

// seal encrypts a payload the way the device does.
func seal(t *testing.T, plain []byte) []byte {
	t.Helper()
	iv := bytes.Repeat([]byte{0x42}, crypto.IVSize)
	raw, err := crypto.EncryptPacket(plain, testKey(t), iv)
	require.NoError(t, err)
	return raw
}

// open decrypts a packet the host wrote.
func open(t *testing.T, raw []byte) []byte {
	t.Helper()
	plain, err := crypto.DecryptPacket(raw, testKey(t))
	require.NoError(t, err)
	return plain
}

func waitWrites(t *testing.T, p *bletest.Peripheral, n int) []bletest.Write {
	t.Helper()
	require.Eventually(t, func() bool { return len(p.Writes()) >= n }, waitFor, tick)
	return p.Writes()
}

// readySession brings a session on a full Pax peripheral to StateUsable
// and waits for its status update request to land.
func readySession(t *testing.T, model string, opts Options) (*Session, *bletest.Peripheral) {
	t.Helper()
	p := bletest.NewPaxPeripheral("dev-1", model, testSerial)
	s := NewSession(p, variantFor(model), opts)
	t.Cleanup(s.Close)
	require.NoError(t, s.Ready(testContext(t)))
	waitWrites(t, p, 1)
	return s, p
}

func variantFor(model string) device.Variant {
	return device.New(device.Classify(model))
}

// handle is a bare GATT handle for manualPeripheral.
type handle string

func (h handle) UUID() string { return string(h) }

// manualPeripheral records calls and leaves every answer to the test.
type manualPeripheral struct {
	mu      sync.Mutex
	handler func(ble.Event)
	reads   []string
	writes  [][]byte
	closed  bool
}

var _ ble.Peripheral = (*manualPeripheral)(nil)

func (m *manualPeripheral) ID() string { return "manual" }

func (m *manualPeripheral) SetHandler(h func(ble.Event)) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

func (m *manualPeripheral) DiscoverServices([]string)                     {}
func (m *manualPeripheral) DiscoverCharacteristics(ble.Service, []string) {}
func (m *manualPeripheral) EnableNotifications(ble.Characteristic)        {}

func (m *manualPeripheral) WriteValue(_ ble.Characteristic, data []byte) {
	m.mu.Lock()
	m.writes = append(m.writes, data)
	m.mu.Unlock()
}

func (m *manualPeripheral) ReadValue(ch ble.Characteristic) {
	m.mu.Lock()
	m.reads = append(m.reads, ble.NormalizeUUID(ch.UUID()))
	m.mu.Unlock()
}

func (m *manualPeripheral) Disconnect() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *manualPeripheral) emit(ev ble.Event) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (m *manualPeripheral) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reads)
}

func (m *manualPeripheral) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// discover answers service and characteristic discovery for a full device.
func (m *manualPeripheral) discover() {
	m.emit(ble.ServicesDiscovered{Services: []ble.Service{
		handle(ble.DeviceInfoServiceUUID),
		handle(ble.PaxServiceUUID),
	}})
	var info []ble.Characteristic
	for _, u := range ble.DeviceInfoCharUUIDs {
		info = append(info, handle(u))
	}
	m.emit(ble.CharacteristicsDiscovered{Service: handle(ble.DeviceInfoServiceUUID), Characteristics: info})
	m.emit(ble.CharacteristicsDiscovered{
		Service:         handle(ble.PaxServiceUUID),
		Characteristics: []ble.Characteristic{handle(ble.PaxReadCharUUID), handle(ble.PaxWriteCharUUID)},
	})
}

// answerInfo answers every Device Info read.
func (m *manualPeripheral) answerInfo(serial string) {
	m.answer(serial, ble.DeviceInfoCharUUIDs...)
}

// answer answers the Device Info reads for uuids.
func (m *manualPeripheral) answer(serial string, uuids ...string) {
	values := map[string]string{
		ble.ManufacturerCharUUID: "PAX Labs",
		ble.ModelNumberCharUUID:  "PAX3",
		ble.SerialNumberCharUUID: serial,
		ble.HardwareRevCharUUID:  "2",
		ble.SoftwareRevCharUUID:  "1.4.9",
	}
	for _, u := range uuids {
		m.emit(ble.ValueUpdated{Characteristic: handle(u), Value: []byte(values[u])})
	}
}

// usableManual brings a session on a manualPeripheral to StateUsable and
// completes its status update write.
func usableManual(t *testing.T, opts Options) (*Session, *manualPeripheral) {
	t.Helper()
	m := &manualPeripheral{}
	s := NewSession(m, device.NewPax3(), opts)
	t.Cleanup(s.Close)

	m.discover()
	require.Eventually(t, func() bool { return m.readCount() == len(ble.DeviceInfoCharUUIDs)+1 }, waitFor, tick)
	m.answerInfo(testSerial)
	require.NoError(t, s.Ready(testContext(t)))

	require.Eventually(t, func() bool { return m.writeCount() == 1 }, waitFor, tick)
	m.emit(ble.WriteCompleted{Characteristic: handle(ble.PaxWriteCharUUID)})
	return s, m
}
