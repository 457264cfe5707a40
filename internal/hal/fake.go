package hal

import (
	"errors"
	"fmt"
)

// Floating is what a FakeBoard ADC pin reads when no multiplexer routes a
// channel onto it.
const Floating uint16 = 4095

// FakeMux describes one simulated multiplexer wired to a FakeBoard.
type FakeMux struct {
	ADC    Pin
	Select Pin // active low; NoPin when the mux is always enabled
	Width  int
}

// Write records a single DigitalWrite call.
type Write struct {
	Pin  Pin
	High bool
}

// FakeBoard is a test double that simulates analog multiplexers sharing a
// set of address lines. The value returned by AnalogRead depends on which
// mux is enabled and which address is currently routed, like the real
// hardware.
type FakeBoard struct {
	// Now is returned by Millis.
	Now uint32

	// DelayedMicros accumulates all DelayMicros calls.
	DelayedMicros uint64

	// Writes contains every DigitalWrite call in order.
	Writes []Write

	// Contentions counts analog reads that happened while more than one
	// multiplexer sharing the read pin was enabled.
	Contentions int

	// ReadError, if set, is returned by AnalogRead.
	ReadError error

	// WriteError, if set, is returned by DigitalWrite.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool

	address []Pin
	latch   Pin
	muxes   []FakeMux
	levels  map[Pin]bool
	latched int
	values  [][]uint16
	script  map[[2]int][]uint16
}

// NewFakeBoard creates a FakeBoard with the given address lines (LSB first),
// optional latch line and multiplexers. All channels start at value.
func NewFakeBoard(address []Pin, latch Pin, muxes []FakeMux, value uint16) *FakeBoard {
	f := &FakeBoard{
		address: address,
		latch:   latch,
		muxes:   muxes,
		levels:  make(map[Pin]bool),
		script:  make(map[[2]int][]uint16),
	}
	f.values = make([][]uint16, len(muxes))
	for i, m := range muxes {
		f.values[i] = make([]uint16, m.Width)
		for ch := range f.values[i] {
			f.values[i][ch] = value
		}
	}
	// Select lines idle high, latch idle high.
	for _, m := range muxes {
		if m.Select.Valid() {
			f.levels[m.Select] = true
		}
	}
	if latch.Valid() {
		f.levels[latch] = true
	}
	return f
}

// Set sets the steady value read from (mux, ch).
func (f *FakeBoard) Set(mux, ch int, v uint16) {
	f.values[mux][ch] = v
}

// Script queues values returned by successive reads of (mux, ch) before
// falling back to the steady value.
func (f *FakeBoard) Script(mux, ch int, vs ...uint16) {
	k := [2]int{mux, ch}
	f.script[k] = append(f.script[k], vs...)
}

// Level returns the last value written to pin.
func (f *FakeBoard) Level(pin Pin) bool {
	return f.levels[pin]
}

// Advance moves the clock forward by ms.
func (f *FakeBoard) Advance(ms uint32) {
	f.Now += ms
}

// ResetWrites clears the recorded writes.
func (f *FakeBoard) ResetWrites() {
	f.Writes = nil
}

// DigitalWrite records the write and latches the address on a rising latch edge.
func (f *FakeBoard) DigitalWrite(pin Pin, high bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	prev := f.levels[pin]
	f.levels[pin] = high
	f.Writes = append(f.Writes, Write{Pin: pin, High: high})
	if pin == f.latch && f.latch.Valid() && !prev && high {
		f.latched = f.addressValue()
	}
	return nil
}

// AnalogRead returns the value of the channel routed to pin.
func (f *FakeBoard) AnalogRead(pin Pin) (uint16, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	ch := f.addressValue()
	if f.latch.Valid() {
		ch = f.latched
	}

	enabled := -1
	count := 0
	for i, m := range f.muxes {
		if m.ADC != pin {
			continue
		}
		if m.Select.Valid() && f.levels[m.Select] {
			continue
		}
		enabled = i
		count++
	}
	if count > 1 {
		f.Contentions++
	}
	if enabled < 0 {
		return Floating, nil
	}
	if ch >= f.muxes[enabled].Width {
		return Floating, nil
	}

	k := [2]int{enabled, ch}
	if q := f.script[k]; len(q) > 0 {
		f.script[k] = q[1:]
		return q[0], nil
	}
	return f.values[enabled][ch], nil
}

// Millis returns Now.
func (f *FakeBoard) Millis() uint32 {
	return f.Now
}

// DelayMicros records the delay without sleeping.
func (f *FakeBoard) DelayMicros(us uint32) {
	f.DelayedMicros += uint64(us)
}

// Close marks the board as closed.
func (f *FakeBoard) Close() error {
	f.Closed = true
	return nil
}

func (f *FakeBoard) addressValue() int {
	v := 0
	for bit, p := range f.address {
		if f.levels[p] {
			v |= 1 << bit
		}
	}
	return v
}

// errFakeUnsupported is returned by helpers when the fake was built without muxes.
var errFakeUnsupported = errors.New("fake board: no multiplexers configured")

// Validate checks that the fake has at least one mux and that every width
// fits the address lines.
func (f *FakeBoard) Validate() error {
	if len(f.muxes) == 0 {
		return errFakeUnsupported
	}
	for i, m := range f.muxes {
		if m.Width > 1<<len(f.address) {
			return fmt.Errorf("fake mux %d: width %d exceeds %d address lines", i, m.Width, len(f.address))
		}
	}
	return nil
}
