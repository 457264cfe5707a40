package socd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shego/hallscan/internal/matrix"
	"github.com/shego/hallscan/internal/wiring"
)

type keys struct {
	a, d, w, s, esc wiring.KeyID
}

func newArbiter(t *testing.T, enabled bool) (*Arbiter, keys) {
	t.Helper()
	cm, err := wiring.Build(
		[]string{"A", "D", "W", "S", "Esc"},
		[]wiring.MuxTable{{Width: 8, Channels: []string{"A", "D", "W", "S", "Esc"}}},
		[]wiring.PairSpec{{A: "A", B: "D"}, {A: "W", B: "S"}},
	)
	require.NoError(t, err)
	var k keys
	k.a, _ = cm.Lookup("A")
	k.d, _ = cm.Lookup("D")
	k.w, _ = cm.Lookup("W")
	k.s, _ = cm.Lookup("S")
	k.esc, _ = cm.Lookup("Esc")
	return NewArbiter(cm, enabled, 1000), k
}

// step feeds one transition as its own pass and returns the emitted events.
func step(a *Arbiter, k wiring.KeyID, pressed bool) []Event {
	a.Begin()
	a.Process(matrix.Transition{Key: k, Pressed: pressed})
	return append([]Event(nil), a.Events()...)
}

func TestLastInputWins(t *testing.T) {
	a, k := newArbiter(t, true)

	assert.Equal(t, []Event{{k.a, true}}, step(a, k.a, true))
	assert.Equal(t, Asserted, a.State(0, wiring.SideA))

	assert.Equal(t, []Event{{k.d, true}, {k.a, false}}, step(a, k.d, true))
	assert.Equal(t, Suppressed, a.State(0, wiring.SideA))
	assert.Equal(t, Asserted, a.State(0, wiring.SideB))

	assert.Equal(t, []Event{{k.d, false}, {k.a, true}}, step(a, k.d, false))
	assert.Equal(t, Asserted, a.State(0, wiring.SideA))
	assert.Equal(t, Idle, a.State(0, wiring.SideB))

	assert.Equal(t, []Event{{k.a, false}}, step(a, k.a, false))
	assert.Equal(t, Idle, a.State(0, wiring.SideA))
}

func TestSingleKeyPressRelease(t *testing.T) {
	a, k := newArbiter(t, true)

	assert.Equal(t, []Event{{k.a, true}}, step(a, k.a, true))
	assert.Equal(t, []Event{{k.a, false}}, step(a, k.a, false))
	assert.Equal(t, Idle, a.State(0, wiring.SideB), "D never touched")
}

func TestReleaseSuppressedKeyEmitsNothing(t *testing.T) {
	a, k := newArbiter(t, true)

	step(a, k.a, true)
	step(a, k.d, true)

	assert.Empty(t, step(a, k.a, false), "A was suppressed, its release is swallowed")
	assert.Equal(t, Idle, a.State(0, wiring.SideA))
	assert.Equal(t, Asserted, a.State(0, wiring.SideB))

	assert.Equal(t, []Event{{k.d, false}}, step(a, k.d, false))
}

func TestRepressTakesBackControl(t *testing.T) {
	a, k := newArbiter(t, true)

	step(a, k.a, true)
	step(a, k.d, true)
	step(a, k.a, false) // suppressed A lifted
	assert.Equal(t, []Event{{k.a, true}, {k.d, false}}, step(a, k.a, true))
	assert.Equal(t, Suppressed, a.State(0, wiring.SideB))
}

func TestPairsAreIndependent(t *testing.T) {
	a, k := newArbiter(t, true)

	step(a, k.a, true)
	assert.Equal(t, []Event{{k.w, true}}, step(a, k.w, true))
	assert.Equal(t, []Event{{k.s, true}, {k.w, false}}, step(a, k.s, true))
	assert.Equal(t, Asserted, a.State(0, wiring.SideA))
}

func TestOtherKeysPassThrough(t *testing.T) {
	a, k := newArbiter(t, true)

	assert.Equal(t, []Event{{k.esc, true}}, step(a, k.esc, true))
	assert.Equal(t, []Event{{k.esc, false}}, step(a, k.esc, false))
}

func TestDisabledPassesThrough(t *testing.T) {
	a, k := newArbiter(t, false)

	var got []Event
	got = append(got, step(a, k.a, true)...)
	got = append(got, step(a, k.d, true)...)
	got = append(got, step(a, k.a, false)...)
	got = append(got, step(a, k.d, false)...)

	assert.Equal(t, []Event{{k.a, true}, {k.d, true}, {k.a, false}, {k.d, false}}, got)
}

func TestDisabledNeverSuppresses(t *testing.T) {
	a, k := newArbiter(t, false)

	step(a, k.a, true)
	step(a, k.d, true)
	assert.Equal(t, Asserted, a.State(0, wiring.SideA))
	assert.Equal(t, Asserted, a.State(0, wiring.SideB))
}

func TestEnableWhileBothHeld(t *testing.T) {
	a, k := newArbiter(t, false)

	step(a, k.a, true)
	step(a, k.d, true)
	require.True(t, a.Toggle(0))

	// Both are reported pressed; releasing one does not hand anything back.
	assert.Equal(t, []Event{{k.a, false}}, step(a, k.a, false))
	assert.Equal(t, []Event{{k.d, false}}, step(a, k.d, false))
}

func TestDisableWhileSuppressed(t *testing.T) {
	a, k := newArbiter(t, true)

	step(a, k.a, true)
	assert.Equal(t, []Event{{k.d, true}, {k.a, false}}, step(a, k.d, true))
	require.True(t, a.Toggle(0))
	assert.Equal(t, Suppressed, a.State(0, wiring.SideA))

	// The held loser gets control back when the winner is released.
	assert.Equal(t, []Event{{k.d, false}, {k.a, true}}, step(a, k.d, false))
	assert.Equal(t, Asserted, a.State(0, wiring.SideA))
	assert.Equal(t, []Event{{k.a, false}}, step(a, k.a, false))
	assert.Equal(t, Idle, a.State(0, wiring.SideA))
}

func TestDisableThenReleaseSuppressed(t *testing.T) {
	a, k := newArbiter(t, true)

	step(a, k.a, true)
	step(a, k.d, true)
	require.True(t, a.Toggle(0))

	assert.Empty(t, step(a, k.a, false), "A was already reported released")
	assert.Equal(t, []Event{{k.d, false}}, step(a, k.d, false))
}

func TestToggleCooldown(t *testing.T) {
	a, _ := newArbiter(t, true)

	assert.True(t, a.Toggle(5000))
	assert.False(t, a.Enabled())

	assert.False(t, a.Toggle(5200), "inside cooldown")
	assert.False(t, a.Enabled(), "ignored toggle changes nothing")

	assert.True(t, a.Toggle(6000))
	assert.True(t, a.Enabled())
}

func TestFirstToggleAlwaysAccepted(t *testing.T) {
	a, _ := newArbiter(t, true)
	assert.True(t, a.Toggle(0))
	assert.False(t, a.Enabled())
}

func TestToggleCooldownAcrossWraparound(t *testing.T) {
	a, _ := newArbiter(t, true)
	require.True(t, a.Toggle(0xFFFFFF00))
	assert.False(t, a.Toggle(0x00000010), "272 ms after the wrap")
	assert.True(t, a.Toggle(0x00000400))
}

func TestBeginResetsEvents(t *testing.T) {
	a, k := newArbiter(t, true)

	a.Begin()
	a.Process(matrix.Transition{Key: k.a, Pressed: true})
	a.Process(matrix.Transition{Key: k.d, Pressed: true})
	assert.Len(t, a.Events(), 3)

	a.Begin()
	assert.Empty(t, a.Events())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", Idle.String())
	assert.Equal(t, "ASSERTED", Asserted.String())
	assert.Equal(t, "SUPPRESSED", Suppressed.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
	assert.Equal(t, Idle, (&Arbiter{}).State(3, wiring.SideA))
}
