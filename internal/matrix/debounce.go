package matrix

import (
	"github.com/shego/hallscan/internal/hal"
	"github.com/shego/hallscan/internal/wiring"
)

// Debouncer commits threshold crossings to the key matrix with a per-key
// minimum interval between accepted transitions.
type Debouncer struct {
	interval uint32
	states   [wiring.MaxKeys]KeyState
	frame    Frame
	commits  int
}

// NewDebouncer creates a Debouncer with the given interval in milliseconds.
func NewDebouncer(intervalMs uint32) *Debouncer {
	return &Debouncer{interval: intervalMs}
}

// Update compares sample against threshold (lower reading = deeper press)
// and commits a flip only if more than the interval has passed since k's
// last transition. Flips inside the window are dropped, not deferred.
// It returns true when a transition was committed.
func (d *Debouncer) Update(k wiring.KeyID, sample, threshold uint16, now uint32) bool {
	if int(k) >= wiring.MaxKeys {
		return false
	}
	st := &d.states[k]

	raw := sample < threshold
	if raw == st.Pressed {
		return false
	}
	if hal.Elapsed(now, st.LastTransition) <= d.interval {
		return false
	}

	st.Pressed = raw
	st.LastTransition = now
	d.frame.Set(k, raw)
	d.commits++
	return true
}

// Frame returns the current key matrix.
func (d *Debouncer) Frame() Frame {
	return d.frame
}

// State returns k's committed state.
func (d *Debouncer) State(k wiring.KeyID) KeyState {
	if int(k) >= wiring.MaxKeys {
		return KeyState{}
	}
	return d.states[k]
}

// Commits returns the number of transitions committed since creation.
func (d *Debouncer) Commits() int {
	return d.commits
}
