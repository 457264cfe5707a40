// Package scan owns one scanner instance: the multiplexer bus, calibration
// tables, debounced matrix and SOCD arbiter. A Context is driven by a single
// caller, one Scan per main-loop iteration; nothing in it is shared or locked.
package scan

import (
	"fmt"

	"github.com/shego/hallscan/internal/calib"
	"github.com/shego/hallscan/internal/hal"
	"github.com/shego/hallscan/internal/matrix"
	"github.com/shego/hallscan/internal/mux"
	"github.com/shego/hallscan/internal/socd"
	"github.com/shego/hallscan/internal/wiring"
)

// Event is one arbitrated press or release.
type Event = socd.Event

// Options configures a Context.
type Options struct {
	Bus          mux.BusConfig
	ADCPins      []hal.Pin
	SettleMicros uint32
	Ceiling      uint16
	Calibration  calib.Params

	DebounceMs         uint32
	ToggleCooldownMs   uint32
	ArbitrationEnabled bool
}

// Stats counts work done since the Context was created.
type Stats struct {
	Passes         uint64
	Transitions    uint64
	Events         uint64
	InvalidSamples uint64
	BusFaults      uint64
}

// Context is the complete scanner state.
type Context struct {
	cm     *wiring.ChannelMap
	clock  hal.Clock
	bus    *mux.Bus
	reader *mux.Reader
	engine *calib.Engine
	deb    *matrix.Debouncer
	arb    *socd.Arbiter

	prev  matrix.Frame
	raw   [][]uint16
	stats Stats
}

// New validates opts against cm and returns a Context with every
// multiplexer deselected. Errors are configuration errors; the caller must
// not start scanning.
func New(cm *wiring.ChannelMap, board hal.Board, opts Options) (*Context, error) {
	if len(opts.ADCPins) != cm.NumMuxes() {
		return nil, fmt.Errorf("%d ADC pins for %d multiplexers", len(opts.ADCPins), cm.NumMuxes())
	}

	bus, err := mux.NewBus(board, board, opts.Bus)
	if err != nil {
		return nil, fmt.Errorf("mux bus: %w", err)
	}
	if bus.Muxes() != cm.NumMuxes() {
		return nil, fmt.Errorf("%d chip-select entries for %d multiplexers", bus.Muxes(), cm.NumMuxes())
	}
	for m := 0; m < cm.NumMuxes(); m++ {
		if cm.Width(m) > bus.Width() {
			return nil, fmt.Errorf("mux %d width %d needs more than %d address lines", m, cm.Width(m), len(opts.Bus.Address))
		}
	}

	engine, err := calib.NewEngine(opts.Calibration, cm.NumKeys())
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}

	if err := bus.Init(); err != nil {
		return nil, fmt.Errorf("init mux bus: %w", err)
	}

	c := &Context{
		cm:    cm,
		clock: board,
		bus:   bus,
		reader: &mux.Reader{
			Bus:     bus,
			Sampler: mux.NewSampler(board, opts.ADCPins, opts.Ceiling),
			Clock:   board,
			Settle:  opts.SettleMicros,
		},
		engine: engine,
		deb:    matrix.NewDebouncer(opts.DebounceMs),
		arb:    socd.NewArbiter(cm, opts.ArbitrationEnabled, opts.ToggleCooldownMs),
		raw:    make([][]uint16, cm.NumMuxes()),
	}
	for m := range c.raw {
		c.raw[m] = make([]uint16, cm.Width(m))
	}
	return c, nil
}

// Calibrate runs the blocking startup calibration. Call it once, before the
// first Scan, with no keys held.
func (c *Context) Calibrate() {
	c.engine.Calibrate(c.cm, c.reader, c.clock)
	if err := c.reader.Release(); err != nil {
		c.stats.BusFaults++
	}
	c.stats.BusFaults += uint64(c.reader.ResetFaults())
}

// Calibrated reports whether Calibrate has run.
func (c *Context) Calibrated() bool {
	return c.engine.Calibrated()
}

// Scan performs one pass over every (mux, channel), debounces mapped keys,
// diffs the matrix and arbitrates the resulting transitions. changed is true
// when at least one key committed a transition.
func (c *Context) Scan() (matrix.Frame, bool) {
	now := c.clock.Millis()
	c.arb.Begin()
	changed := false

	for m := 0; m < c.cm.NumMuxes(); m++ {
		for ch := 0; ch < c.cm.Width(m); ch++ {
			v, ok := c.reader.Read(m, ch)
			c.raw[m][ch] = v

			k := c.cm.KeyAt(m, ch)
			if k == wiring.NoKey {
				continue
			}
			if !ok {
				c.stats.InvalidSamples++
				continue
			}
			if c.deb.Update(k, v, c.engine.Threshold(k), now) {
				changed = true
			}
		}
	}
	if err := c.reader.Release(); err != nil {
		c.stats.BusFaults++
	}
	c.stats.BusFaults += uint64(c.reader.ResetFaults())

	cur := c.deb.Frame()
	if changed {
		matrix.Diff(c.prev, cur, c.arb.Process)
	}
	c.stats.Transitions = uint64(c.deb.Commits())
	c.prev = cur
	c.stats.Passes++
	c.stats.Events += uint64(len(c.arb.Events()))
	return cur, changed
}

// ArbitratedEvents returns the SOCD-filtered transitions of the last Scan.
// The slice is only valid until the next Scan.
func (c *Context) ArbitratedEvents() []Event {
	return c.arb.Events()
}

// SetKeyThreshold overrides one key's threshold percentage. Out-of-range
// values are clamped. It returns false for an unknown or uncalibrated key.
func (c *Context) SetKeyThreshold(k wiring.KeyID, percent uint8) bool {
	return c.engine.SetKeyThreshold(k, percent)
}

// ToggleArbitration flips SOCD arbitration unless the last accepted toggle
// was within the cooldown. It returns true if the flag changed.
func (c *Context) ToggleArbitration() bool {
	return c.arb.Toggle(c.clock.Millis())
}

// IsArbitrationEnabled reports whether SOCD arbitration is on.
func (c *Context) IsArbitrationEnabled() bool {
	return c.arb.Enabled()
}

// Calibration returns the calibration record of every mapped key.
func (c *Context) Calibration() []calib.KeyCalibration {
	return c.engine.Summary()
}

// Fallbacks returns the keys calibrated with default values.
func (c *Context) Fallbacks() []wiring.KeyID {
	return c.engine.Fallbacks()
}

// Frame returns the current key matrix.
func (c *Context) Frame() matrix.Frame {
	return c.deb.Frame()
}

// LastRaw returns the last reading of (mux, ch), mapped or not.
func (c *Context) LastRaw(m, ch int) uint16 {
	if m < 0 || m >= len(c.raw) || ch < 0 || ch >= len(c.raw[m]) {
		return 0
	}
	return c.raw[m][ch]
}

// Stats returns the counters.
func (c *Context) Stats() Stats {
	return c.stats
}

// ChannelMap returns the wiring the Context was built with.
func (c *Context) ChannelMap() *wiring.ChannelMap {
	return c.cm
}
