// Package mux routes one analog multiplexer channel at a time onto its ADC
// input and samples it. Everything here drives shared GPIO state and must
// only be called from the single scan loop.
package mux

import (
	"errors"
	"fmt"

	"github.com/shego/hallscan/internal/hal"
)

var (
	ErrNoAddressLines = errors.New("mux: no address lines")
	ErrMuxIndex       = errors.New("mux: index out of range")
	ErrChannelIndex   = errors.New("mux: channel out of range")
)

// BusConfig describes the select lines shared by every multiplexer.
type BusConfig struct {
	// Address lines, least significant bit first.
	Address []hal.Pin
	// Latch is pulsed low then high to commit the address (ADG732 WR).
	// hal.NoPin when the address is transparent (CD74HC4067).
	Latch            hal.Pin
	LatchPulseMicros uint32
	// Selects holds one active-low chip-select per multiplexer;
	// hal.NoPin for a mux that is always enabled.
	Selects []hal.Pin
}

// Bus drives the address, latch and chip-select lines.
type Bus struct {
	out    hal.DigitalWriter
	delay  hal.Clock
	cfg    BusConfig
	active int
}

// NewBus validates cfg and returns a Bus with every multiplexer deselected
// on the first call to Init.
func NewBus(out hal.DigitalWriter, delay hal.Clock, cfg BusConfig) (*Bus, error) {
	if len(cfg.Address) == 0 {
		return nil, ErrNoAddressLines
	}
	if len(cfg.Address) > 8 {
		return nil, fmt.Errorf("mux: %d address lines, at most 8 supported", len(cfg.Address))
	}
	return &Bus{out: out, delay: delay, cfg: cfg, active: -1}, nil
}

// Width returns the number of channels the address lines can reach.
func (b *Bus) Width() int {
	return 1 << len(b.cfg.Address)
}

// Muxes returns the number of multiplexers on the bus.
func (b *Bus) Muxes() int {
	return len(b.cfg.Selects)
}

// Init parks the latch line high and deselects every multiplexer.
func (b *Bus) Init() error {
	if b.cfg.Latch.Valid() {
		if err := b.out.DigitalWrite(b.cfg.Latch, true); err != nil {
			return fmt.Errorf("park latch: %w", err)
		}
	}
	return b.Release()
}

// Select routes channel ch of multiplexer m onto its ADC input. Only m is
// enabled afterwards. The caller waits the settle delay before sampling.
func (b *Bus) Select(m, ch int) error {
	if m < 0 || m >= len(b.cfg.Selects) {
		return fmt.Errorf("%w: %d", ErrMuxIndex, m)
	}
	if ch < 0 || ch >= b.Width() {
		return fmt.Errorf("%w: %d", ErrChannelIndex, ch)
	}

	if b.active != m {
		if err := b.enable(m); err != nil {
			return err
		}
	}

	for bit, pin := range b.cfg.Address {
		if err := b.out.DigitalWrite(pin, ch&(1<<bit) != 0); err != nil {
			return fmt.Errorf("address bit %d: %w", bit, err)
		}
	}

	if b.cfg.Latch.Valid() {
		if err := b.out.DigitalWrite(b.cfg.Latch, false); err != nil {
			return fmt.Errorf("latch low: %w", err)
		}
		b.delay.DelayMicros(b.cfg.LatchPulseMicros)
		if err := b.out.DigitalWrite(b.cfg.Latch, true); err != nil {
			return fmt.Errorf("latch high: %w", err)
		}
	}
	return nil
}

// Release deselects every multiplexer. The next Select re-addresses from
// scratch, so no selection survives a scan pass.
func (b *Bus) Release() error {
	b.active = -1
	var first error
	for i, pin := range b.cfg.Selects {
		if !pin.Valid() {
			continue
		}
		if err := b.out.DigitalWrite(pin, true); err != nil && first == nil {
			first = fmt.Errorf("deselect mux %d: %w", i, err)
		}
	}
	return first
}

// enable deasserts every other chip-select before asserting m's so two
// multiplexers never drive a shared ADC net at the same time.
func (b *Bus) enable(m int) error {
	for i, pin := range b.cfg.Selects {
		if i == m || !pin.Valid() {
			continue
		}
		if err := b.out.DigitalWrite(pin, true); err != nil {
			b.active = -1
			return fmt.Errorf("deselect mux %d: %w", i, err)
		}
	}
	if pin := b.cfg.Selects[m]; pin.Valid() {
		if err := b.out.DigitalWrite(pin, false); err != nil {
			b.active = -1
			return fmt.Errorf("select mux %d: %w", m, err)
		}
	}
	b.active = m
	return nil
}
