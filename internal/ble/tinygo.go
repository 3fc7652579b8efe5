package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// readBufferSize bounds a single characteristic read.
const readBufferSize = 512

// TinyGoAdapter wraps tinygo-org/bluetooth.
// On macOS, device addresses are CoreBluetooth UUIDs (not MAC addresses);
// the Address field of Device stores that UUID string.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the peripherals map.
	mu          sync.Mutex
	peripherals map[string]*tinyGoPeripheral // keyed by address
}

// NewTinyGoAdapter creates an adapter backed by the system BLE stack.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		peripherals: make(map[string]*tinyGoPeripheral),
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// tinygo/bluetooth fires this callback with connected=false when a
	// peripheral drops; route it to the owning peripheral.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		p, ok := a.peripherals[id]
		delete(a.peripherals, id)
		a.mu.Unlock()
		if ok {
			p.lost()
		}
	})
	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, nameFilter string) ([]Device, error) {
	filter := strings.ToLower(nameFilter)

	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		name := result.LocalName()
		if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
			return
		}
		addr := result.Address.String()
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true
		devices = append(devices, Device{
			Name:    name,
			Address: addr,
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Peripheral, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo/bluetooth's Connect blocks with its own timeout; wrap it so
	// ctx cancellation returns immediately.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		p := newTinyGoPeripheral(address, result.device)

		a.mu.Lock()
		a.peripherals[address] = p
		a.mu.Unlock()
		return p, nil
	}
}

type tinyGoService struct {
	svc bluetooth.DeviceService
}

func (s *tinyGoService) UUID() string { return s.svc.UUID().String() }

type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic

	mu         sync.Mutex
	subscribed bool
}

func (c *tinyGoCharacteristic) UUID() string { return c.char.UUID().String() }

// tinyGoPeripheral runs every blocking tinygo call on one I/O goroutine,
// in the order the calls were made, and turns results into events.
type tinyGoPeripheral struct {
	id     string
	device bluetooth.Device

	mu      sync.Mutex
	handler func(Event)

	ops      chan func()
	stop     chan struct{}
	stopOnce sync.Once
}

var _ Peripheral = (*tinyGoPeripheral)(nil)

func newTinyGoPeripheral(id string, device bluetooth.Device) *tinyGoPeripheral {
	p := &tinyGoPeripheral{
		id:     id,
		device: device,
		ops:    make(chan func(), 64),
		stop:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *tinyGoPeripheral) run() {
	for {
		select {
		case op := <-p.ops:
			op()
		case <-p.stop:
			return
		}
	}
}

func (p *tinyGoPeripheral) enqueue(op func()) {
	select {
	case p.ops <- op:
	case <-p.stop:
	}
}

func (p *tinyGoPeripheral) emit(ev Event) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (p *tinyGoPeripheral) ID() string { return p.id }

func (p *tinyGoPeripheral) SetHandler(h func(Event)) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// DiscoverServices asks for every service and filters locally so a missing
// service yields a short result instead of an error.
func (p *tinyGoPeripheral) DiscoverServices(uuids []string) {
	p.enqueue(func() {
		all, err := p.device.DiscoverServices(nil)
		if err != nil {
			p.emit(ServicesDiscovered{Err: fmt.Errorf("ble: discover services: %w", err)})
			return
		}
		var out []Service
		for i := range all {
			if matchesAny(all[i].UUID().String(), uuids) {
				out = append(out, &tinyGoService{svc: all[i]})
			}
		}
		p.emit(ServicesDiscovered{Services: out})
	})
}

func (p *tinyGoPeripheral) DiscoverCharacteristics(svc Service, uuids []string) {
	p.enqueue(func() {
		s, ok := svc.(*tinyGoService)
		if !ok {
			p.emit(CharacteristicsDiscovered{Service: svc, Err: fmt.Errorf("ble: foreign service handle %T", svc)})
			return
		}
		all, err := s.svc.DiscoverCharacteristics(nil)
		if err != nil {
			p.emit(CharacteristicsDiscovered{Service: svc, Err: fmt.Errorf("ble: discover characteristics: %w", err)})
			return
		}
		var out []Characteristic
		for i := range all {
			if matchesAny(all[i].UUID().String(), uuids) {
				out = append(out, &tinyGoCharacteristic{char: all[i]})
			}
		}
		p.emit(CharacteristicsDiscovered{Service: svc, Characteristics: out})
	})
}

func (p *tinyGoPeripheral) ReadValue(ch Characteristic) {
	p.enqueue(func() {
		c, ok := ch.(*tinyGoCharacteristic)
		if !ok {
			p.emit(ValueUpdated{Characteristic: ch, Err: fmt.Errorf("ble: foreign characteristic handle %T", ch)})
			return
		}
		buf := make([]byte, readBufferSize)
		n, err := c.char.Read(buf)
		if err != nil {
			p.emit(ValueUpdated{Characteristic: ch, Err: fmt.Errorf("ble: read %s: %w", ch.UUID(), err)})
			return
		}
		p.emit(ValueUpdated{Characteristic: ch, Value: buf[:n]})
	})
}

func (p *tinyGoPeripheral) WriteValue(ch Characteristic, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	p.enqueue(func() {
		c, ok := ch.(*tinyGoCharacteristic)
		if !ok {
			p.emit(WriteCompleted{Characteristic: ch, Err: fmt.Errorf("ble: foreign characteristic handle %T", ch)})
			return
		}
		// tinygo on Linux only supports write without response.
		_, err := c.char.WriteWithoutResponse(buf)
		if err != nil {
			err = fmt.Errorf("ble: write %s: %w", ch.UUID(), err)
		}
		p.emit(WriteCompleted{Characteristic: ch, Err: err})
	})
}

func (p *tinyGoPeripheral) EnableNotifications(ch Characteristic) {
	p.enqueue(func() {
		c, ok := ch.(*tinyGoCharacteristic)
		if !ok {
			p.emit(ValueUpdated{Characteristic: ch, Err: fmt.Errorf("ble: foreign characteristic handle %T", ch)})
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.subscribed {
			return
		}
		err := c.char.EnableNotifications(func(buf []byte) {
			value := make([]byte, len(buf))
			copy(value, buf)
			p.emit(ValueUpdated{Characteristic: ch, Value: value})
		})
		if err != nil {
			p.emit(ValueUpdated{Characteristic: ch, Err: fmt.Errorf("ble: enable notifications on %s: %w", ch.UUID(), err)})
			return
		}
		c.subscribed = true
	})
}

func (p *tinyGoPeripheral) Disconnect() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return p.device.Disconnect()
}

// lost is called from the adapter's connect handler when the link drops.
func (p *tinyGoPeripheral) lost() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.emit(Disconnected{Err: ErrDisconnected})
}

func matchesAny(uuid string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if UUIDEqual(uuid, w) {
			return true
		}
	}
	return false
}
