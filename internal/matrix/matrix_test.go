package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shego/hallscan/internal/wiring"
)

func TestFrameSetAndKeys(t *testing.T) {
	var f Frame
	f.Set(3, true)
	f.Set(70, true)
	f.Set(127, true)
	f.Set(200, true) // out of range, ignored

	assert.True(t, f.Pressed(3))
	assert.True(t, f.Pressed(70))
	assert.False(t, f.Pressed(4))
	assert.False(t, f.Pressed(200))
	assert.Equal(t, 3, f.Count())
	assert.Equal(t, []wiring.KeyID{3, 70, 127}, f.Keys())

	f.Set(70, false)
	assert.False(t, f.Pressed(70))
	assert.Equal(t, 2, f.Count())
}

func TestDiffOrder(t *testing.T) {
	var prev, cur Frame
	prev.Set(1, true)
	prev.Set(65, true)
	cur.Set(65, true)
	cur.Set(90, true)
	cur.Set(2, true)

	var got []Transition
	Diff(prev, cur, func(tr Transition) { got = append(got, tr) })

	assert.Equal(t, []Transition{
		{Key: 1, Pressed: false},
		{Key: 2, Pressed: true},
		{Key: 90, Pressed: true},
	}, got)
}

func TestThresholdExample(t *testing.T) {
	// Baseline 500 at 85% gives threshold 425.
	d := NewDebouncer(5)
	assert.True(t, d.Update(0, 400, 425, 100))
	assert.True(t, d.State(0).Pressed)

	d2 := NewDebouncer(5)
	assert.False(t, d2.Update(0, 450, 425, 100))
	assert.False(t, d2.State(0).Pressed)
}

func TestSampleAtThresholdIsReleased(t *testing.T) {
	d := NewDebouncer(5)
	assert.False(t, d.Update(0, 425, 425, 100))
}

type step struct {
	sample uint16
	now    uint32
}

func TestDebounceWindow(t *testing.T) {
	tests := []struct {
		name    string
		steps   []step
		pressed []bool
	}{
		{
			name: "flip inside window dropped",
			steps: []step{
				{400, 100}, // press committed
				{450, 103}, // release inside 5 ms: dropped
				{450, 105}, // exactly 5 ms: still dropped (strictly greater required)
				{450, 106}, // committed
			},
			pressed: []bool{true, true, true, false},
		},
		{
			name: "bounce does not reset timer",
			steps: []step{
				{400, 100},
				{450, 101},
				{400, 102},
				{450, 106},
			},
			pressed: []bool{true, true, true, false},
		},
		{
			name: "stable reading never commits",
			steps: []step{
				{450, 100},
				{450, 200},
			},
			pressed: []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(5)
			for i, s := range tt.steps {
				d.Update(7, s.sample, 425, s.now)
				assert.Equal(t, tt.pressed[i], d.State(7).Pressed, "step %d", i)
				assert.Equal(t, tt.pressed[i], d.Frame().Pressed(7), "frame step %d", i)
			}
		})
	}
}

func TestDebounceTimestampUpdatedOnCommit(t *testing.T) {
	d := NewDebouncer(5)
	d.Update(1, 400, 425, 100)
	assert.Equal(t, uint32(100), d.State(1).LastTransition)
	d.Update(1, 400, 425, 200)
	assert.Equal(t, uint32(100), d.State(1).LastTransition, "no flip, no update")
	assert.Equal(t, 1, d.Commits())
}

func TestDebounceAcrossWraparound(t *testing.T) {
	d := NewDebouncer(5)
	d.Update(1, 400, 425, 0xFFFFFFF0)
	assert.True(t, d.State(1).Pressed)

	// 3 ms later: inside the window.
	assert.False(t, d.Update(1, 450, 425, 0xFFFFFFF3))
	// Counter wrapped to 2, 18 ms after the press.
	assert.True(t, d.Update(1, 450, 425, 2))
	assert.False(t, d.State(1).Pressed)
}

func TestDebouncerIgnoresOutOfRangeKeys(t *testing.T) {
	d := NewDebouncer(5)
	assert.False(t, d.Update(wiring.KeyID(200), 0, 425, 100))
	assert.Equal(t, KeyState{}, d.State(200))
}

func TestKeysIndependent(t *testing.T) {
	d := NewDebouncer(5)
	assert.True(t, d.Update(1, 400, 425, 100))
	assert.True(t, d.Update(2, 400, 425, 101), "key 2 has its own timer")
	assert.Equal(t, []wiring.KeyID{1, 2}, d.Frame().Keys())
}
