// Package matrix turns threshold comparisons into debounced key states and
// keeps the boolean key matrix.
// This package has NO hardware dependencies; time is always passed in as a
// wrapping millisecond counter.
package matrix

import (
	"math/bits"

	"github.com/shego/hallscan/internal/wiring"
)

const words = (wiring.MaxKeys + 63) / 64

// Frame is a snapshot of every key's committed pressed state.
type Frame struct {
	bits [words]uint64
}

// Pressed reports whether k is pressed in f.
func (f Frame) Pressed(k wiring.KeyID) bool {
	if int(k) >= wiring.MaxKeys {
		return false
	}
	return f.bits[k/64]&(1<<(k%64)) != 0
}

// Set updates k's bit.
func (f *Frame) Set(k wiring.KeyID, pressed bool) {
	if int(k) >= wiring.MaxKeys {
		return
	}
	if pressed {
		f.bits[k/64] |= 1 << (k % 64)
	} else {
		f.bits[k/64] &^= 1 << (k % 64)
	}
}

// Count returns the number of pressed keys.
func (f Frame) Count() int {
	n := 0
	for _, w := range f.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// Keys returns the pressed keys in ascending order.
func (f Frame) Keys() []wiring.KeyID {
	var out []wiring.KeyID
	for i, w := range f.bits {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, wiring.KeyID(i*64+b))
			w &^= 1 << b
		}
	}
	return out
}

// Transition is a committed press or release.
type Transition struct {
	Key     wiring.KeyID
	Pressed bool
}

// Diff calls fn for every key whose bit differs between prev and cur, in
// ascending key order.
func Diff(prev, cur Frame, fn func(Transition)) {
	for i := range cur.bits {
		d := prev.bits[i] ^ cur.bits[i]
		for d != 0 {
			b := bits.TrailingZeros64(d)
			k := wiring.KeyID(i*64 + b)
			fn(Transition{Key: k, Pressed: cur.bits[i]&(1<<b) != 0})
			d &^= 1 << b
		}
	}
}

// KeyState is the committed state of one key.
type KeyState struct {
	Pressed        bool
	LastTransition uint32
}
