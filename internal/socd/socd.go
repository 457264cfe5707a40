// Package socd resolves simultaneous presses of opposing directional keys
// with last-input-wins semantics.
package socd

import (
	"github.com/shego/hallscan/internal/hal"
	"github.com/shego/hallscan/internal/matrix"
	"github.com/shego/hallscan/internal/wiring"
)

// State is the arbitration state of one key within a pair.
type State uint8

const (
	// Idle: not physically held.
	Idle State = iota
	// Asserted: held and reported as pressed.
	Asserted
	// Suppressed: held but reported as released because the opposing key
	// was pressed later.
	Suppressed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Asserted:
		return "ASSERTED"
	case Suppressed:
		return "SUPPRESSED"
	}
	return "UNKNOWN"
}

// Event is one press or release on the arbitrated output stream.
type Event struct {
	Key     wiring.KeyID
	Pressed bool
}

// Arbiter applies SOCD resolution to matrix transitions.
type Arbiter struct {
	cm       *wiring.ChannelMap
	states   [][2]State
	enabled  bool
	cooldown uint32

	lastToggle uint32
	toggled    bool

	events []Event
}

// NewArbiter creates an Arbiter for the pairs in cm. cooldownMs is the
// minimum time between accepted toggles.
func NewArbiter(cm *wiring.ChannelMap, enabled bool, cooldownMs uint32) *Arbiter {
	return &Arbiter{
		cm:       cm,
		states:   make([][2]State, len(cm.Pairs())),
		enabled:  enabled,
		cooldown: cooldownMs,
	}
}

// Enabled reports whether arbitration is on.
func (a *Arbiter) Enabled() bool {
	return a.enabled
}

// Toggle flips arbitration on or off. Requests within the cooldown of the
// last accepted toggle are ignored. It returns true if the flag changed.
func (a *Arbiter) Toggle(now uint32) bool {
	if a.toggled && hal.Elapsed(now, a.lastToggle) < a.cooldown {
		return false
	}
	a.toggled = true
	a.lastToggle = now
	a.enabled = !a.enabled
	return true
}

// State returns the state of one side of a pair.
func (a *Arbiter) State(pair int, side wiring.Side) State {
	if pair < 0 || pair >= len(a.states) {
		return Idle
	}
	return a.states[pair][side]
}

// Begin clears the event stream for a new scan pass.
func (a *Arbiter) Begin() {
	a.events = a.events[:0]
}

// Events returns the arbitrated events of the current pass. The slice is
// reused by the next Begin.
func (a *Arbiter) Events() []Event {
	return a.events
}

// Process consumes one matrix transition. The transition's own event is
// emitted first, followed by any synthetic event for the opposing key.
func (a *Arbiter) Process(tr matrix.Transition) {
	switch b := a.cm.Binding(tr.Key).(type) {
	case wiring.Directional:
		a.processDirectional(b, tr)
	case wiring.Other:
		a.emit(tr.Key, tr.Pressed)
	}
}

func (a *Arbiter) processDirectional(b wiring.Directional, tr matrix.Transition) {
	st := &a.states[b.Pair]
	me, opp := b.Side, b.Side.Opposite()
	oppKey := a.cm.Pairs()[b.Pair].Keys[opp]

	if tr.Pressed {
		st[me] = Asserted
		a.emit(tr.Key, true)
		// Disabled: nothing new is suppressed.
		if a.enabled && st[opp] == Asserted {
			st[opp] = Suppressed
			a.emit(oppKey, false)
		}
		return
	}

	// Suppression left over from before a disable still resolves on release.
	switch st[me] {
	case Suppressed:
		// Never reported as pressed, so nothing to release.
		st[me] = Idle
	case Asserted:
		st[me] = Idle
		a.emit(tr.Key, false)
		if st[opp] == Suppressed {
			st[opp] = Asserted
			a.emit(oppKey, true)
		}
	case Idle:
		a.emit(tr.Key, false)
	}
}

func (a *Arbiter) emit(k wiring.KeyID, pressed bool) {
	a.events = append(a.events, Event{Key: k, Pressed: pressed})
}
