package device

import (
	"context"
	"fmt"
	"math"

	"github.com/chaz8081/paxctl/internal/ble/protocol"
)

// Pax3 is the oven model.
type Pax3 struct {
	*Base

	ovenTemp   float64
	targetTemp float64
	setTemp    float64
	heating    protocol.HeatingStateValue
	mode       protocol.DynamicModeValue
	minTemp    float64
	maxTemp    float64
	hasRange   bool
}

var _ Variant = (*Pax3)(nil)

// NewPax3 returns a Pax3 whose temperatures are NaN until reported.
func NewPax3() *Pax3 {
	return &Pax3{
		Base:       NewGeneric(),
		ovenTemp:   math.NaN(),
		targetTemp: math.NaN(),
		setTemp:    math.NaN(),
	}
}

// Type reports TypePax3.
func (p *Pax3) Type() Type { return TypePax3 }

// SubscriptionAttributes adds the oven attributes to the common set.
func (p *Pax3) SubscriptionAttributes() protocol.AttributeSet {
	set := p.Base.SubscriptionAttributes()
	set.Add(
		protocol.HeatingParams,
		protocol.CurrentTargetTemp,
		protocol.HeaterSetPoint,
		protocol.HeatingState,
		protocol.DynamicMode,
		protocol.HeaterRanges,
		protocol.LockStatus,
		protocol.Brightness,
	)
	return set
}

// Apply handles the oven messages and defers everything else to Base.
func (p *Pax3) Apply(msg protocol.Message) bool {
	var u Update
	p.mu.Lock()
	switch m := msg.(type) {
	case protocol.HeatingParamsMessage:
		p.ovenTemp = m.OvenCelsius
		u = Update{Attribute: protocol.HeatingParams, Value: m.OvenCelsius}
	case protocol.CurrentTargetTempMessage:
		p.targetTemp = m.Celsius
		u = Update{Attribute: protocol.CurrentTargetTemp, Value: m.Celsius}
	case protocol.HeaterSetPointMessage:
		p.setTemp = m.Celsius
		u = Update{Attribute: protocol.HeaterSetPoint, Value: m.Celsius}
	case protocol.HeatingStateMessage:
		p.heating = m.State
		u = Update{Attribute: protocol.HeatingState, Value: m.State}
	case protocol.DynamicModeMessage:
		p.mode = m.Mode
		u = Update{Attribute: protocol.DynamicMode, Value: m.Mode}
	case protocol.HeaterRangesMessage:
		p.minTemp, p.maxTemp, p.hasRange = m.MinCelsius, m.MaxCelsius, true
		u = Update{Attribute: protocol.HeaterRanges, Value: m}
	default:
		p.mu.Unlock()
		return p.Base.Apply(msg)
	}
	p.mu.Unlock()
	p.publish(u)
	return true
}

// OvenTemp is the live oven temperature in °C, NaN until reported.
func (p *Pax3) OvenTemp() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ovenTemp
}

// OvenTargetTemp is the temperature the oven is currently driving to.
func (p *Pax3) OvenTargetTemp() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.targetTemp
}

// OvenSetTemp is the user-selected set point.
func (p *Pax3) OvenSetTemp() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.setTemp
}

// HeatingState is the oven's current heating phase.
func (p *Pax3) HeatingState() protocol.HeatingStateValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.heating
}

// DynamicMode is the selected heating profile.
func (p *Pax3) DynamicMode() protocol.DynamicModeValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// HeaterRange returns the allowed set point range, if the device sent one.
func (p *Pax3) HeaterRange() (lo, hi float64, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minTemp, p.maxTemp, p.hasRange
}

// SetOvenTemp changes the set point. Values outside a reported heater range
// are rejected before anything is written.
func (p *Pax3) SetOvenTemp(ctx context.Context, celsius float64) error {
	if lo, hi, ok := p.HeaterRange(); ok && (celsius < lo || celsius > hi) {
		return fmt.Errorf("device: %w: %.1f°C outside %.1f-%.1f°C", protocol.ErrCommandEncode, celsius, lo, hi)
	}
	return p.send(ctx, protocol.HeaterSetPointMessage{Celsius: celsius})
}

// SetOvenDynamicMode selects the heating profile.
func (p *Pax3) SetOvenDynamicMode(ctx context.Context, mode protocol.DynamicModeValue) error {
	return p.send(ctx, protocol.DynamicModeMessage{Mode: mode})
}
