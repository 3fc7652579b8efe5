// Package pax drives a connected Pax peripheral: discovery, device info,
// key derivation, encrypted notifications and commands. Each Session runs
// one event loop that owns all of its state.
package pax

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/paxctl/internal/ble"
	"github.com/chaz8081/paxctl/internal/ble/crypto"
	"github.com/chaz8081/paxctl/internal/ble/protocol"
	"github.com/chaz8081/paxctl/internal/device"
)

// State is a session lifecycle stage.
type State int

const (
	StateConnected State = iota
	StateServicesDiscovered
	StateCharacteristicsDiscovered
	StateReadingDeviceInfo
	StateUsable
	StateDisconnected
)

var stateNames = [...]string{
	"connected",
	"services-discovered",
	"characteristics-discovered",
	"reading-device-info",
	"usable",
	"disconnected",
}

// String returns the lowercase stage name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// eventBuffer bounds events queued between the transport and the loop.
const eventBuffer = 64

// Session owns one connected peripheral.
type Session struct {
	p       ble.Peripheral
	variant device.Variant
	opts    Options
	log     *slog.Logger

	events  chan ble.Event
	calls   chan func()
	closing chan struct{}
	done    chan struct{}
	ready   chan struct{}

	closeOnce sync.Once
	readyOnce sync.Once

	mu       sync.Mutex
	state    State
	identity Identity
	err      error

	// Loop-owned.
	charsPending int
	infoChars    []ble.Characteristic
	paxChars     []ble.Characteristic
	readChar     ble.Characteristic
	writeChar    ble.Characteristic
	readsPending map[string]bool
	key          *crypto.Key
	early        []protocol.Message
	writes       []pendingWrite
	writeTimer   *time.Timer
	timer        *time.Timer
	timerErr     error
}

// pendingWrite is a write awaiting its WriteCompleted. Completions are
// matched in FIFO order; a write past its deadline is failed and popped so
// later completions reach their own callers.
type pendingWrite struct {
	typ      protocol.MessageType
	cb       func(error)
	deadline time.Time // zero means no deadline
}

var _ device.Sender = (*Session)(nil)

// NewSession takes ownership of p and starts discovery. The variant receives
// every decoded message once the session is usable; messages decoded while
// Device Info reads are still pending are held and applied in order then.
func NewSession(p ble.Peripheral, variant device.Variant, opts Options) *Session {
	s := newSession(p, variant, opts)
	p.SetHandler(s.deliver)
	go s.run()
	return s
}

func newSession(p ble.Peripheral, variant device.Variant, opts Options) *Session {
	opts = opts.withDefaults()
	if opts.Observe != nil {
		variant.Common().Subscribe(opts.Observe)
	}
	return &Session{
		p:            p,
		variant:      variant,
		opts:         opts,
		log:          opts.Logger.With("peripheral", p.ID()),
		events:       make(chan ble.Event, eventBuffer),
		calls:        make(chan func()),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		ready:        make(chan struct{}),
		readsPending: make(map[string]bool),
	}
}

// deliver is the transport handler. Events after teardown are dropped.
func (s *Session) deliver(ev ble.Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) run() {
	s.log.Debug("[PAX] discovering services", "variant", s.variant.Type())
	s.p.DiscoverServices([]string{ble.DeviceInfoServiceUUID, ble.PaxServiceUUID})
	s.arm(s.opts.DiscoveryTimeout, ErrDiscoveryTimeout)

	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		case fn := <-s.calls:
			fn()
		case <-s.timerC():
			s.fail(s.timerErr)
		case <-s.writeTimerC():
			s.expireWrite()
		case <-s.closing:
			s.teardown(ErrSessionClosed)
		}
		if s.State() == StateDisconnected {
			return
		}
	}
}

func (s *Session) handle(ev ble.Event) {
	switch e := ev.(type) {
	case ble.ServicesDiscovered:
		s.onServices(e)
	case ble.CharacteristicsDiscovered:
		s.onCharacteristics(e)
	case ble.ValueUpdated:
		s.onValue(e)
	case ble.WriteCompleted:
		s.onWrite(e)
	case ble.Disconnected:
		if e.Err == nil {
			s.fail(ErrTransportLost)
			return
		}
		s.fail(fmt.Errorf("%w: %w", ErrTransportLost, e.Err))
	}
}

func (s *Session) onServices(e ble.ServicesDiscovered) {
	if s.State() != StateConnected {
		return
	}
	if e.Err != nil {
		s.fail(fmt.Errorf("pax: discover services: %w", e.Err))
		return
	}
	info, err := ble.FindService(e.Services, ble.DeviceInfoServiceUUID)
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrRequiredServiceMissing, err))
		return
	}
	paxSvc, err := ble.FindService(e.Services, ble.PaxServiceUUID)
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrRequiredServiceMissing, err))
		return
	}
	s.setState(StateServicesDiscovered)

	s.charsPending = 2
	s.p.DiscoverCharacteristics(info, ble.DeviceInfoCharUUIDs)
	s.p.DiscoverCharacteristics(paxSvc, ble.PaxCharUUIDs)
	s.arm(s.opts.DiscoveryTimeout, ErrDiscoveryTimeout)
}

func (s *Session) onCharacteristics(e ble.CharacteristicsDiscovered) {
	if s.State() != StateServicesDiscovered || e.Service == nil {
		return
	}
	if e.Err != nil {
		s.fail(fmt.Errorf("pax: discover characteristics of %s: %w", e.Service.UUID(), e.Err))
		return
	}
	switch {
	case ble.UUIDEqual(e.Service.UUID(), ble.DeviceInfoServiceUUID):
		s.infoChars = e.Characteristics
	case ble.UUIDEqual(e.Service.UUID(), ble.PaxServiceUUID):
		s.paxChars = e.Characteristics
	default:
		return
	}
	s.charsPending--
	if s.charsPending > 0 {
		return
	}

	var err error
	if s.readChar, err = ble.FindCharacteristic(s.paxChars, ble.PaxReadCharUUID); err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrRequiredCharacteristicMissing, err))
		return
	}
	if s.writeChar, err = ble.FindCharacteristic(s.paxChars, ble.PaxWriteCharUUID); err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrRequiredCharacteristicMissing, err))
		return
	}
	if _, err = ble.FindCharacteristic(s.infoChars, ble.SerialNumberCharUUID); err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrRequiredCharacteristicMissing, err))
		return
	}
	s.setState(StateCharacteristicsDiscovered)

	for _, ch := range s.infoChars {
		s.readsPending[ble.NormalizeUUID(ch.UUID())] = true
		s.p.ReadValue(ch)
	}
	s.p.ReadValue(s.readChar)
	s.p.EnableNotifications(s.readChar)
	s.setState(StateReadingDeviceInfo)
	s.arm(s.opts.ReadTimeout, ErrReadTimeout)
}

func (s *Session) onValue(e ble.ValueUpdated) {
	if e.Characteristic == nil {
		return
	}
	if s.readChar != nil && ble.UUIDEqual(e.Characteristic.UUID(), s.readChar.UUID()) {
		s.onPacket(e)
		return
	}

	uuid := ble.NormalizeUUID(e.Characteristic.UUID())
	if !s.readsPending[uuid] {
		return
	}
	delete(s.readsPending, uuid)

	if e.Err != nil {
		if uuid == ble.SerialNumberCharUUID {
			s.fail(fmt.Errorf("pax: read serial: %w", e.Err))
			return
		}
		s.log.Warn("[PAX] device info read failed", "characteristic", uuid, "error", e.Err)
	} else {
		s.mu.Lock()
		s.identity.set(uuid, e.Value)
		serial := s.identity.Serial
		s.mu.Unlock()

		if uuid == ble.SerialNumberCharUUID {
			key, err := crypto.DeriveKey(serial)
			if err != nil {
				s.fail(fmt.Errorf("pax: derive key: %w", err))
				return
			}
			s.key = &key
		}
	}

	if len(s.readsPending) == 0 {
		s.becomeUsable()
	}
}

func (s *Session) onPacket(e ble.ValueUpdated) {
	if e.Err != nil {
		s.log.Warn("[PAX] read characteristic error", "error", e.Err)
		return
	}
	if len(e.Value) == 0 {
		return
	}
	if s.key == nil {
		s.log.Warn("[PAX] dropping packet", "error", ErrNoKey, "len", len(e.Value))
		return
	}
	plain, err := crypto.DecryptPacket(e.Value, *s.key)
	if err != nil {
		s.log.Warn("[PAX] dropping packet", "error", err)
		return
	}
	msg, err := s.opts.Registry.Decode(plain)
	if err != nil {
		if errors.Is(err, protocol.ErrUnsupportedMessageType) {
			s.log.Debug("[PAX] ignoring message", "error", err)
		} else {
			s.log.Warn("[PAX] dropping packet", "error", err)
		}
		return
	}
	if s.State() != StateUsable {
		// Device Info reads still pending; replayed by becomeUsable.
		if len(s.early) == eventBuffer {
			s.log.Warn("[PAX] dropping early message", "type", s.early[0].Type())
			s.early = s.early[1:]
		}
		s.early = append(s.early, msg)
		return
	}
	s.apply(msg)
}

func (s *Session) apply(msg protocol.Message) {
	if !s.variant.Apply(msg) {
		s.log.Debug("[PAX] message not used by variant", "type", msg.Type(), "variant", s.variant.Type())
	}
}

func (s *Session) onWrite(e ble.WriteCompleted) {
	w, ok := s.popWrite()
	if !ok {
		return
	}
	if e.Err != nil {
		w.cb(fmt.Errorf("pax: write %s: %w", w.typ, e.Err))
		return
	}
	w.cb(nil)
}

// expireWrite fails the oldest write once its deadline has passed.
func (s *Session) expireWrite() {
	s.writeTimer = nil
	if len(s.writes) == 0 {
		return
	}
	if d := s.writes[0].deadline; !d.IsZero() && time.Now().Before(d) {
		s.armWrite()
		return
	}
	w, _ := s.popWrite()
	s.log.Warn("[PAX] write completion missing", "type", w.typ, "timeout", s.opts.WriteTimeout)
	w.cb(fmt.Errorf("%w: %s", ErrWriteTimeout, w.typ))
}

func (s *Session) popWrite() (pendingWrite, bool) {
	if len(s.writes) == 0 {
		return pendingWrite{}, false
	}
	w := s.writes[0]
	s.writes = s.writes[1:]
	s.armWrite()
	return w, true
}

// armWrite points the write timer at the head of the queue.
func (s *Session) armWrite() {
	if s.writeTimer != nil {
		s.writeTimer.Stop()
		s.writeTimer = nil
	}
	if len(s.writes) == 0 || s.writes[0].deadline.IsZero() {
		return
	}
	s.writeTimer = time.NewTimer(time.Until(s.writes[0].deadline))
}

func (s *Session) writeTimerC() <-chan time.Time {
	if s.writeTimer == nil {
		return nil
	}
	return s.writeTimer.C
}

func (s *Session) becomeUsable() {
	s.disarm()
	s.setState(StateUsable)
	id := s.Identity()
	s.log.Info("[PAX] device ready",
		"manufacturer", id.Manufacturer,
		"model", id.Model,
		"serial", id.Serial,
		"hw", id.HardwareRev,
		"fw", id.SoftwareRev,
	)
	s.readyOnce.Do(func() { close(s.ready) })

	s.variant.Bind(s)
	for _, msg := range s.early {
		s.apply(msg)
	}
	s.early = nil

	attrs := s.variant.SubscriptionAttributes()
	s.write(protocol.StatusUpdateMessage{Attributes: attrs}, func(err error) {
		if err != nil {
			s.log.Warn("[PAX] status update request failed", "error", err)
		}
	})
}

// write encodes, encrypts and writes msg. cb runs on the loop with the
// write result.
func (s *Session) write(msg protocol.Encoder, cb func(error)) {
	if s.State() != StateUsable || s.key == nil {
		cb(ErrNotReady)
		return
	}
	plain, err := msg.Encode()
	if err != nil {
		if !errors.Is(err, protocol.ErrCommandEncode) {
			err = fmt.Errorf("%w: %w", protocol.ErrCommandEncode, err)
		}
		cb(fmt.Errorf("pax: encode %s: %w", msg.Type(), err))
		return
	}
	iv, err := crypto.NewIV()
	if err != nil {
		cb(fmt.Errorf("pax: %w", err))
		return
	}
	raw, err := crypto.EncryptPacket(plain, *s.key, iv)
	if err != nil {
		cb(fmt.Errorf("pax: %w", err))
		return
	}
	w := pendingWrite{typ: msg.Type(), cb: cb}
	if s.opts.WriteTimeout > 0 {
		w.deadline = time.Now().Add(s.opts.WriteTimeout)
	}
	s.writes = append(s.writes, w)
	if len(s.writes) == 1 {
		s.armWrite()
	}
	s.p.WriteValue(s.writeChar, raw)
}

// Send encodes msg, writes it to the device and waits for the write to
// complete. A write with no completion within Options.WriteTimeout fails
// with ErrWriteTimeout.
func (s *Session) Send(ctx context.Context, msg protocol.Encoder) error {
	res := make(chan error, 1)
	call := func() {
		s.write(msg, func(err error) { res <- err })
	}

	select {
	case s.calls <- call:
	case <-s.done:
		return s.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case err := <-res:
			return err
		default:
			return s.closedErr()
		}
	}
}

// Ready blocks until the session is usable or has failed.
func (s *Session) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the session down and disconnects the peripheral. No variant
// state changes after Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
	<-s.done
}

// Done is closed when the session reaches StateDisconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the reason the session ended, or nil while it is alive.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the Device Info values read so far.
func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Device returns the variant fed by this session.
func (s *Session) Device() device.Variant { return s.variant }

func (s *Session) closedErr() error {
	if err := s.Err(); err != nil {
		return err
	}
	return ErrSessionClosed
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Debug("[PAX] state", "from", prev, "to", st)
	}
}

func (s *Session) fail(err error) {
	if s.State() == StateDisconnected {
		return
	}
	s.log.Error("[PAX] session failed", "state", s.State(), "error", err)
	s.teardown(err)
}

func (s *Session) teardown(err error) {
	if s.State() == StateDisconnected {
		return
	}
	s.disarm()
	s.p.SetHandler(nil)

	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.setState(StateDisconnected)

	writes := s.writes
	s.writes = nil
	s.armWrite()
	for _, w := range writes {
		w.cb(err)
	}
	s.variant.Close()
	if derr := s.p.Disconnect(); derr != nil {
		s.log.Warn("[PAX] disconnect failed", "error", derr)
	}
	close(s.done)
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) arm(d time.Duration, err error) {
	s.disarm()
	if d <= 0 {
		return
	}
	s.timer = time.NewTimer(d)
	s.timerErr = err
}

func (s *Session) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) timerC() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timer.C
}
