package pax

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/paxctl/internal/ble"
	"github.com/chaz8081/paxctl/internal/device"
)

// ProbeResult is the single outcome of probing a peripheral.
type ProbeResult struct {
	Type    device.Type
	Model   string   // raw Model Number string
	Session *Session // set for recognised models
	Err     error
}

// Require returns the session, or an *UnknownModelError when the model was
// not recognised.
func (r ProbeResult) Require() (*Session, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Type == device.TypeUnknown || r.Session == nil {
		return nil, &UnknownModelError{Model: r.Model}
	}
	return r.Session, nil
}

// Prober identifies connected peripherals by reading their Model Number.
// Each peripheral ID is probed at most once.
type Prober struct {
	opts Options

	mu     sync.Mutex
	probed map[string]bool
}

// NewProber returns a Prober that hands recognised peripherals to sessions
// built with opts.
func NewProber(opts Options) *Prober {
	return &Prober{
		opts:   opts.withDefaults(),
		probed: make(map[string]bool),
	}
}

// Start probes p in the background and calls done exactly once. A
// recognised model hands p to a new Session; otherwise p is left to the
// caller.
func (pr *Prober) Start(ctx context.Context, p ble.Peripheral, done func(ProbeResult)) {
	pr.mu.Lock()
	seen := pr.probed[p.ID()]
	pr.probed[p.ID()] = true
	pr.mu.Unlock()

	if seen {
		go done(ProbeResult{Err: fmt.Errorf("%w: %s", ErrAlreadyProbed, p.ID())})
		return
	}

	run := &probe{
		p:    p,
		opts: pr.opts,
		log:  pr.opts.Logger.With("peripheral", p.ID()),
		wake: make(chan struct{}, 1),
	}
	p.SetHandler(run.deliver)
	go func() {
		done(run.run(ctx))
	}()
}

// Probe is the blocking form of Start.
func (pr *Prober) Probe(ctx context.Context, p ble.Peripheral) (ProbeResult, error) {
	ch := make(chan ProbeResult, 1)
	pr.Start(ctx, p, func(r ProbeResult) { ch <- r })
	r := <-ch
	return r, r.Err
}

// OpenGeneric opens a Base-only session for hardware the prober did not
// recognise.
func OpenGeneric(p ble.Peripheral, opts Options) *Session {
	return NewSession(p, device.NewGeneric(), opts)
}

type probe struct {
	p    ble.Peripheral
	opts Options
	log  *slog.Logger

	mu    sync.Mutex
	queue []ble.Event
	next  func(ble.Event) // set once the probe hands the peripheral on
	wake  chan struct{}
}

func (pr *probe) deliver(ev ble.Event) {
	pr.mu.Lock()
	if next := pr.next; next != nil {
		pr.mu.Unlock()
		next(ev)
		return
	}
	pr.queue = append(pr.queue, ev)
	pr.mu.Unlock()

	select {
	case pr.wake <- struct{}{}:
	default:
	}
}

func (pr *probe) pop() (ble.Event, bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if len(pr.queue) == 0 {
		return nil, false
	}
	ev := pr.queue[0]
	pr.queue = pr.queue[1:]
	return ev, true
}

// handover routes every later event to next. A link loss still queued is
// passed on so the new owner sees it.
func (pr *probe) handover(next func(ble.Event)) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	for _, ev := range pr.queue {
		if _, ok := ev.(ble.Disconnected); ok {
			next(ev)
		}
	}
	pr.queue = nil
	pr.next = next
}

func (pr *probe) run(ctx context.Context) ProbeResult {
	model, err := pr.readModel(ctx)
	if err != nil {
		pr.release()
		pr.log.Warn("[PROBE] failed", "error", err)
		return ProbeResult{Err: err}
	}

	typ := device.Classify(model)
	res := ProbeResult{Type: typ, Model: model}
	if typ == device.TypeUnknown {
		pr.release()
		pr.log.Info("[PROBE] unrecognised model", "model", model)
		return res
	}
	pr.log.Info("[PROBE] identified", "model", model, "type", typ)

	s := newSession(pr.p, device.New(typ), pr.opts)
	pr.handover(s.deliver)
	pr.p.SetHandler(s.deliver)
	go s.run()
	res.Session = s
	return res
}

// release hands the peripheral back to the caller with no handler.
func (pr *probe) release() {
	pr.handover(func(ble.Event) {})
	pr.p.SetHandler(nil)
}

func (pr *probe) readModel(ctx context.Context) (string, error) {
	pr.p.DiscoverServices([]string{ble.DeviceInfoServiceUUID})
	timer, timeout := newStepTimer(pr.opts.DiscoveryTimeout)
	defer func() { timer.Stop() }()
	timeoutErr := ErrDiscoveryTimeout

	var modelChar ble.Characteristic
	for {
		ev, ok := pr.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-timeout:
				return "", timeoutErr
			case <-pr.wake:
			}
			continue
		}

		switch e := ev.(type) {
		case ble.ServicesDiscovered:
			if e.Err != nil {
				return "", fmt.Errorf("pax: probe: discover services: %w", e.Err)
			}
			svc, err := ble.FindService(e.Services, ble.DeviceInfoServiceUUID)
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrRequiredServiceMissing, err)
			}
			pr.p.DiscoverCharacteristics(svc, []string{ble.ModelNumberCharUUID})

		case ble.CharacteristicsDiscovered:
			if e.Err != nil {
				return "", fmt.Errorf("pax: probe: discover characteristics: %w", e.Err)
			}
			ch, err := ble.FindCharacteristic(e.Characteristics, ble.ModelNumberCharUUID)
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrRequiredCharacteristicMissing, err)
			}
			modelChar = ch
			pr.p.ReadValue(ch)
			timer.Stop()
			timer, timeout = newStepTimer(pr.opts.ReadTimeout)
			timeoutErr = ErrReadTimeout

		case ble.ValueUpdated:
			if modelChar == nil || e.Characteristic == nil || !ble.UUIDEqual(e.Characteristic.UUID(), modelChar.UUID()) {
				continue
			}
			if e.Err != nil {
				return "", fmt.Errorf("pax: probe: read model: %w", e.Err)
			}
			return cleanString(e.Value), nil

		case ble.Disconnected:
			if e.Err == nil {
				return "", ErrTransportLost
			}
			return "", fmt.Errorf("%w: %w", ErrTransportLost, e.Err)
		}
	}
}

// stepTimer is a stoppable timer whose channel is nil when disabled.
type stepTimer struct{ t *time.Timer }

func (s stepTimer) Stop() {
	if s.t != nil {
		s.t.Stop()
	}
}

func newStepTimer(d time.Duration) (stepTimer, <-chan time.Time) {
	if d <= 0 {
		return stepTimer{}, nil
	}
	t := time.NewTimer(d)
	return stepTimer{t: t}, t.C
}
