// Package bletest provides an in-memory ble.Peripheral for tests. Operations
// are executed in call order on a worker goroutine and answered with the
// same events a real peripheral would deliver.
package bletest

import (
	"errors"
	"sync"

	"github.com/chaz8081/paxctl/internal/ble"
)

// ErrWriteFailed is a canned write failure for tests.
var ErrWriteFailed = errors.New("bletest: write failed")

// Service is a fake GATT service.
type Service struct {
	uuid  string
	chars []*Characteristic
}

func (s *Service) UUID() string { return s.uuid }

// Characteristic is a fake GATT characteristic.
type Characteristic struct {
	uuid string
}

func (c *Characteristic) UUID() string { return c.uuid }

// Write records one WriteValue call.
type Write struct {
	UUID string
	Data []byte
}

// Peripheral is a scriptable ble.Peripheral.
type Peripheral struct {
	id string

	mu           sync.Mutex
	handler      func(ble.Event)
	services     []*Service
	values       map[string][]byte
	readErrs     map[string]error
	writeErr     error
	writes       []Write
	reads        []string
	notifying    map[string]bool
	svcRequests  [][]string
	charRequests map[string][]string
	held         bool
	parked       []func()
	disconnected bool
	onWrite      func(Write)

	ops chan func()
}

var _ ble.Peripheral = (*Peripheral)(nil)

// NewPeripheral returns an empty peripheral with the given ID.
func NewPeripheral(id string) *Peripheral {
	p := &Peripheral{
		id:           id,
		values:       make(map[string][]byte),
		readErrs:     make(map[string]error),
		notifying:    make(map[string]bool),
		charRequests: make(map[string][]string),
		ops:          make(chan func(), 256),
	}
	go p.run()
	return p
}

// NewPaxPeripheral returns a peripheral exposing the full Device Info and
// Pax services with the given model and serial.
func NewPaxPeripheral(id, model, serial string) *Peripheral {
	p := NewPeripheral(id)
	p.AddService(ble.DeviceInfoServiceUUID, ble.DeviceInfoCharUUIDs...)
	p.AddService(ble.PaxServiceUUID, ble.PaxCharUUIDs...)
	p.SetValue(ble.ManufacturerCharUUID, []byte("PAX Labs"))
	p.SetValue(ble.ModelNumberCharUUID, []byte(model))
	p.SetValue(ble.SerialNumberCharUUID, []byte(serial))
	p.SetValue(ble.HardwareRevCharUUID, []byte("2"))
	p.SetValue(ble.SoftwareRevCharUUID, []byte("1.4.9"))
	return p
}

func (p *Peripheral) run() {
	for op := range p.ops {
		op()
	}
}

// AddService adds a service with the given characteristics.
func (p *Peripheral) AddService(uuid string, charUUIDs ...string) *Peripheral {
	svc := &Service{uuid: ble.ExpandUUID(uuid)}
	for _, c := range charUUIDs {
		svc.chars = append(svc.chars, &Characteristic{uuid: ble.ExpandUUID(c)})
	}
	p.mu.Lock()
	p.services = append(p.services, svc)
	p.mu.Unlock()
	return p
}

// SetValue sets the value returned by reads of charUUID.
func (p *Peripheral) SetValue(charUUID string, v []byte) {
	p.mu.Lock()
	p.values[ble.NormalizeUUID(charUUID)] = v
	p.mu.Unlock()
}

// SetReadError makes reads of charUUID fail with err.
func (p *Peripheral) SetReadError(charUUID string, err error) {
	p.mu.Lock()
	p.readErrs[ble.NormalizeUUID(charUUID)] = err
	p.mu.Unlock()
}

// SetWriteError makes every subsequent write fail with err.
func (p *Peripheral) SetWriteError(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

// OnWrite registers fn to observe every write as it completes.
func (p *Peripheral) OnWrite(fn func(Write)) {
	p.mu.Lock()
	p.onWrite = fn
	p.mu.Unlock()
}

// Hold parks subsequent operations until Release is called.
func (p *Peripheral) Hold() {
	p.mu.Lock()
	p.held = true
	p.mu.Unlock()
}

// Release runs every parked operation and stops holding.
func (p *Peripheral) Release() {
	p.mu.Lock()
	parked := p.parked
	p.parked = nil
	p.held = false
	p.mu.Unlock()
	for _, op := range parked {
		p.ops <- op
	}
}

// Pending returns the number of parked operations.
func (p *Peripheral) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.parked)
}

func (p *Peripheral) enqueue(op func()) {
	p.mu.Lock()
	if p.held {
		p.parked = append(p.parked, op)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.ops <- op
}

func (p *Peripheral) emit(ev ble.Event) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Notify delivers an unsolicited value for charUUID.
func (p *Peripheral) Notify(charUUID string, v []byte) {
	ch := p.lookupChar(charUUID)
	p.enqueue(func() {
		p.emit(ble.ValueUpdated{Characteristic: ch, Value: v})
	})
}

// Drop simulates link loss.
func (p *Peripheral) Drop() {
	p.enqueue(func() {
		p.emit(ble.Disconnected{Err: ble.ErrDisconnected})
	})
}

// Flush blocks until every operation queued so far has run.
func (p *Peripheral) Flush() {
	done := make(chan struct{})
	p.ops <- func() { close(done) }
	<-done
}

func (p *Peripheral) lookupChar(uuid string) ble.Characteristic {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.services {
		for _, c := range s.chars {
			if ble.UUIDEqual(c.uuid, uuid) {
				return c
			}
		}
	}
	return &Characteristic{uuid: ble.ExpandUUID(uuid)}
}

func (p *Peripheral) ID() string { return p.id }

func (p *Peripheral) SetHandler(h func(ble.Event)) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *Peripheral) DiscoverServices(uuids []string) {
	p.mu.Lock()
	p.svcRequests = append(p.svcRequests, append([]string(nil), uuids...))
	p.mu.Unlock()
	p.enqueue(func() {
		p.mu.Lock()
		var out []ble.Service
		for _, s := range p.services {
			if matches(s.uuid, uuids) {
				out = append(out, s)
			}
		}
		p.mu.Unlock()
		p.emit(ble.ServicesDiscovered{Services: out})
	})
}

func (p *Peripheral) DiscoverCharacteristics(svc ble.Service, uuids []string) {
	p.mu.Lock()
	p.charRequests[ble.NormalizeUUID(svc.UUID())] = append([]string(nil), uuids...)
	p.mu.Unlock()
	p.enqueue(func() {
		s, _ := svc.(*Service)
		var out []ble.Characteristic
		if s != nil {
			for _, c := range s.chars {
				if matches(c.uuid, uuids) {
					out = append(out, c)
				}
			}
		}
		p.emit(ble.CharacteristicsDiscovered{Service: svc, Characteristics: out})
	})
}

func (p *Peripheral) ReadValue(ch ble.Characteristic) {
	key := ble.NormalizeUUID(ch.UUID())
	p.mu.Lock()
	p.reads = append(p.reads, key)
	p.mu.Unlock()
	p.enqueue(func() {
		p.mu.Lock()
		v := p.values[key]
		err := p.readErrs[key]
		p.mu.Unlock()
		if err != nil {
			p.emit(ble.ValueUpdated{Characteristic: ch, Err: err})
			return
		}
		p.emit(ble.ValueUpdated{Characteristic: ch, Value: append([]byte(nil), v...)})
	})
}

func (p *Peripheral) WriteValue(ch ble.Characteristic, data []byte) {
	w := Write{UUID: ble.NormalizeUUID(ch.UUID()), Data: append([]byte(nil), data...)}
	p.enqueue(func() {
		p.mu.Lock()
		err := p.writeErr
		if err == nil {
			p.writes = append(p.writes, w)
		}
		fn := p.onWrite
		p.mu.Unlock()
		p.emit(ble.WriteCompleted{Characteristic: ch, Err: err})
		if fn != nil && err == nil {
			fn(w)
		}
	})
}

func (p *Peripheral) EnableNotifications(ch ble.Characteristic) {
	p.mu.Lock()
	p.notifying[ble.NormalizeUUID(ch.UUID())] = true
	p.mu.Unlock()
}

func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	p.disconnected = true
	p.mu.Unlock()
	return nil
}

// Writes returns the successful writes so far.
func (p *Peripheral) Writes() []Write {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Write(nil), p.writes...)
}

// Reads returns the normalized UUIDs read so far.
func (p *Peripheral) Reads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.reads...)
}

// ServiceRequests returns the UUID lists passed to DiscoverServices.
func (p *Peripheral) ServiceRequests() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.svcRequests...)
}

// CharacteristicRequests returns the UUIDs requested for service uuid.
func (p *Peripheral) CharacteristicRequests(uuid string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.charRequests[ble.NormalizeUUID(uuid)]
}

// Notifying reports whether notifications were enabled on charUUID.
func (p *Peripheral) Notifying(charUUID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notifying[ble.NormalizeUUID(charUUID)]
}

// Disconnected reports whether Disconnect was called.
func (p *Peripheral) Disconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}

func matches(uuid string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if ble.UUIDEqual(uuid, w) {
			return true
		}
	}
	return false
}
