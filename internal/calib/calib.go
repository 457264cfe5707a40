// Package calib measures each key's resting ADC level at startup and derives
// its actuation threshold as a percentage of that baseline.
//
// Calibration assumes no key is held while it runs. A held key yields a low
// baseline and an over-sensitive threshold; this cannot be detected.
package calib

import (
	"fmt"

	"github.com/shego/hallscan/internal/wiring"
)

// Allowed range for threshold percentages.
const (
	MinPercent uint8 = 50
	MaxPercent uint8 = 99
)

// ErrPercentRange is returned when the configured default percent is outside
// [MinPercent, MaxPercent].
var ErrPercentRange = fmt.Errorf("threshold percent outside %d-%d", MinPercent, MaxPercent)

// Params are the calibration constants.
type Params struct {
	Samples          int
	SampleGapMicros  uint32
	DefaultBaseline  uint16
	DefaultThreshold uint16
	DefaultPercent   uint8
	MinThreshold     uint16
	MaxThreshold     uint16
}

// Validate reports structural errors in p.
func (p Params) Validate() error {
	if p.Samples <= 0 {
		return fmt.Errorf("calibration samples must be positive, got %d", p.Samples)
	}
	if p.DefaultPercent < MinPercent || p.DefaultPercent > MaxPercent {
		return fmt.Errorf("%w: default percent %d", ErrPercentRange, p.DefaultPercent)
	}
	if p.MinThreshold > p.MaxThreshold {
		return fmt.Errorf("min threshold %d above max threshold %d", p.MinThreshold, p.MaxThreshold)
	}
	return nil
}

// Source produces one settled sample of a multiplexer channel.
type Source interface {
	Read(mux, ch int) (uint16, bool)
}

// Delayer waits between samples.
type Delayer interface {
	DelayMicros(us uint32)
}

// KeyCalibration is the calibration record of one key.
type KeyCalibration struct {
	Key       wiring.KeyID
	Baseline  uint16
	Threshold uint16
	Percent   uint8
	Valid     int
	Fallback  bool
}

// Engine holds the per-key baselines and thresholds.
type Engine struct {
	params     Params
	keys       []KeyCalibration
	thresholds []uint16
	known      []bool
	done       bool
}

// NewEngine returns an Engine for numKeys keys.
func NewEngine(p Params, numKeys int) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		params:     p,
		keys:       make([]KeyCalibration, numKeys),
		thresholds: make([]uint16, numKeys),
		known:      make([]bool, numKeys),
	}
	for i := range e.keys {
		e.keys[i] = KeyCalibration{Key: wiring.KeyID(i), Percent: p.DefaultPercent}
	}
	return e, nil
}

// ComputeThreshold returns clamp(baseline*percent/100, min, max).
func ComputeThreshold(baseline uint16, percent uint8, min, max uint16) uint16 {
	t := uint32(baseline) * uint32(percent) / 100
	if t < uint32(min) {
		return min
	}
	if t > uint32(max) {
		return max
	}
	return uint16(t)
}

// Calibrate samples every mapped channel Samples times and stores baselines
// and thresholds. Implausible samples are discarded; a key left with no valid
// sample falls back to the default baseline and threshold. It never retries.
func (e *Engine) Calibrate(cm *wiring.ChannelMap, src Source, d Delayer) {
	for _, c := range cm.Mapped() {
		var sum uint32
		valid := 0
		for i := 0; i < e.params.Samples; i++ {
			if v, ok := src.Read(int(c.Mux), int(c.Index)); ok {
				sum += uint32(v)
				valid++
			}
			d.DelayMicros(e.params.SampleGapMicros)
		}

		kc := KeyCalibration{Key: c.Key, Percent: e.params.DefaultPercent, Valid: valid}
		if valid == 0 {
			kc.Baseline = e.params.DefaultBaseline
			kc.Threshold = e.params.DefaultThreshold
			kc.Fallback = true
		} else {
			kc.Baseline = uint16(sum / uint32(valid))
			kc.Threshold = ComputeThreshold(kc.Baseline, kc.Percent, e.params.MinThreshold, e.params.MaxThreshold)
		}
		e.set(kc)
	}
	e.done = true
}

// SetKeyThreshold recomputes k's threshold from its stored baseline. percent
// is clamped to [MinPercent, MaxPercent]. It returns false for a key that was
// never calibrated.
func (e *Engine) SetKeyThreshold(k wiring.KeyID, percent uint8) bool {
	if int(k) >= len(e.keys) || !e.known[k] {
		return false
	}
	if percent < MinPercent {
		percent = MinPercent
	}
	if percent > MaxPercent {
		percent = MaxPercent
	}

	kc := e.keys[k]
	kc.Percent = percent
	kc.Threshold = ComputeThreshold(kc.Baseline, percent, e.params.MinThreshold, e.params.MaxThreshold)
	e.set(kc)
	return true
}

// set publishes a record with a single threshold store.
func (e *Engine) set(kc KeyCalibration) {
	e.keys[kc.Key] = kc
	e.known[kc.Key] = true
	e.thresholds[kc.Key] = kc.Threshold
}

// Threshold returns k's actuation threshold, 0 before calibration.
func (e *Engine) Threshold(k wiring.KeyID) uint16 {
	if int(k) >= len(e.thresholds) {
		return 0
	}
	return e.thresholds[k]
}

// Calibrated reports whether Calibrate has run.
func (e *Engine) Calibrated() bool {
	return e.done
}

// Key returns k's calibration record.
func (e *Engine) Key(k wiring.KeyID) (KeyCalibration, bool) {
	if int(k) >= len(e.keys) || !e.known[k] {
		return KeyCalibration{}, false
	}
	return e.keys[k], true
}

// Summary returns a copy of every calibrated key's record, in key order.
func (e *Engine) Summary() []KeyCalibration {
	out := make([]KeyCalibration, 0, len(e.keys))
	for i, kc := range e.keys {
		if e.known[i] {
			out = append(out, kc)
		}
	}
	return out
}

// Fallbacks returns the keys that are running on the default calibration.
func (e *Engine) Fallbacks() []wiring.KeyID {
	var out []wiring.KeyID
	for i, kc := range e.keys {
		if e.known[i] && kc.Fallback {
			out = append(out, kc.Key)
		}
	}
	return out
}
