package mux

import "github.com/shego/hallscan/internal/hal"

// Sampler reads the ADC input of each multiplexer and rejects readings
// above the implausibility ceiling (crosstalk or a disconnected line).
type Sampler struct {
	in      hal.AnalogReader
	pins    []hal.Pin
	ceiling uint16
}

// NewSampler returns a Sampler for the given per-mux ADC pins.
func NewSampler(in hal.AnalogReader, pins []hal.Pin, ceiling uint16) *Sampler {
	return &Sampler{in: in, pins: pins, ceiling: ceiling}
}

// Plausible reports whether v is at or below the ceiling.
func (s *Sampler) Plausible(v uint16) bool {
	return v <= s.ceiling
}

// ReadRaw samples whatever channel is currently routed on multiplexer m.
// ok is false for an implausible value or a failed read; a failed read
// returns 0.
func (s *Sampler) ReadRaw(m int) (v uint16, ok bool) {
	if m < 0 || m >= len(s.pins) {
		return 0, false
	}
	v, err := s.in.AnalogRead(s.pins[m])
	if err != nil {
		return 0, false
	}
	return v, s.Plausible(v)
}

// Reader combines a Bus and a Sampler into one select, settle, sample step.
type Reader struct {
	Bus     *Bus
	Sampler *Sampler
	Clock   hal.Clock
	Settle  uint32

	// Faults counts select failures since the last ResetFaults.
	Faults int
}

// Read selects (m, ch), waits the settle delay and samples it.
func (r *Reader) Read(m, ch int) (uint16, bool) {
	if err := r.Bus.Select(m, ch); err != nil {
		r.Faults++
		return 0, false
	}
	r.Clock.DelayMicros(r.Settle)
	return r.Sampler.ReadRaw(m)
}

// Release deselects every multiplexer.
func (r *Reader) Release() error {
	return r.Bus.Release()
}

// ResetFaults returns the fault count and clears it.
func (r *Reader) ResetFaults() int {
	n := r.Faults
	r.Faults = 0
	return n
}
