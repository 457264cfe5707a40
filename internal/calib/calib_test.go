package calib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shego/hallscan/internal/wiring"
)

type scripted struct {
	samples map[[2]int][]uint16
	invalid uint16
	reads   int
}

func (s *scripted) Read(m, ch int) (uint16, bool) {
	s.reads++
	q := s.samples[[2]int{m, ch}]
	if len(q) == 0 {
		return 0, false
	}
	v := q[0]
	s.samples[[2]int{m, ch}] = q[1:]
	return v, v <= s.invalid
}

type delays struct{ total uint64 }

func (d *delays) DelayMicros(us uint32) { d.total += uint64(us) }

func testParams() Params {
	return Params{
		Samples:          5,
		SampleGapMicros:  100,
		DefaultBaseline:  500,
		DefaultThreshold: 413,
		DefaultPercent:   85,
		MinThreshold:     50,
		MaxThreshold:     3000,
	}
}

func testMap(t *testing.T) *wiring.ChannelMap {
	t.Helper()
	cm, err := wiring.Build(
		[]string{"A", "D", "Esc"},
		[]wiring.MuxTable{{Width: 4, Channels: []string{"A", "", "D", "Esc"}}},
		nil,
	)
	require.NoError(t, err)
	return cm
}

func TestComputeThreshold(t *testing.T) {
	tests := []struct {
		name     string
		baseline uint16
		percent  uint8
		want     uint16
	}{
		{"example", 500, 85, 425},
		{"clamped low", 40, 85, 50},
		{"clamped high", 4000, 99, 3000},
		{"truncates", 501, 85, 425},
		{"no overflow", 65535, 99, 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeThreshold(tt.baseline, tt.percent, 50, 3000))
		})
	}
}

func TestParamsValidate(t *testing.T) {
	p := testParams()
	assert.NoError(t, p.Validate())

	p.DefaultPercent = 100
	assert.ErrorIs(t, p.Validate(), ErrPercentRange)
	p.DefaultPercent = 10
	assert.ErrorIs(t, p.Validate(), ErrPercentRange)

	p = testParams()
	p.Samples = 0
	assert.Error(t, p.Validate())

	p = testParams()
	p.MinThreshold = 4000
	assert.Error(t, p.Validate())

	_, err := NewEngine(Params{}, 3)
	assert.Error(t, err)
}

func TestCalibrateAveragesValidSamples(t *testing.T) {
	cm := testMap(t)
	src := &scripted{
		invalid: 3500,
		samples: map[[2]int][]uint16{
			{0, 0}: {500, 500, 500, 500, 500},
			{0, 2}: {480, 4000, 520, 3900, 500}, // two crosstalk spikes
			{0, 3}: {4095, 4095, 4095, 4095, 4095},
		},
	}
	d := &delays{}
	e, err := NewEngine(testParams(), cm.NumKeys())
	require.NoError(t, err)

	e.Calibrate(cm, src, d)
	require.True(t, e.Calibrated())

	a, _ := cm.Lookup("A")
	kc, ok := e.Key(a)
	require.True(t, ok)
	assert.Equal(t, uint16(500), kc.Baseline)
	assert.Equal(t, uint16(425), kc.Threshold)
	assert.Equal(t, 5, kc.Valid)
	assert.False(t, kc.Fallback)

	dk, _ := cm.Lookup("D")
	kc, _ = e.Key(dk)
	assert.Equal(t, uint16(500), kc.Baseline, "mean of 480, 520, 500")
	assert.Equal(t, 3, kc.Valid)
	assert.Equal(t, uint16(425), e.Threshold(dk))

	esc, _ := cm.Lookup("Esc")
	kc, _ = e.Key(esc)
	assert.True(t, kc.Fallback)
	assert.Equal(t, uint16(500), kc.Baseline)
	assert.Equal(t, uint16(413), kc.Threshold)
	assert.Equal(t, []wiring.KeyID{esc}, e.Fallbacks())

	assert.Equal(t, 15, src.reads, "unmapped channel is never sampled, no retries")
	assert.Equal(t, uint64(15*100), d.total)
}

func TestSetKeyThreshold(t *testing.T) {
	cm := testMap(t)
	src := &scripted{invalid: 3500, samples: map[[2]int][]uint16{
		{0, 0}: {1000, 1000, 1000, 1000, 1000},
	}}
	e, err := NewEngine(testParams(), cm.NumKeys())
	require.NoError(t, err)
	e.Calibrate(cm, src, &delays{})

	a, _ := cm.Lookup("A")
	assert.Equal(t, uint16(850), e.Threshold(a))

	require.True(t, e.SetKeyThreshold(a, 90))
	assert.Equal(t, uint16(900), e.Threshold(a))
	kc, _ := e.Key(a)
	assert.Equal(t, uint8(90), kc.Percent)
	assert.Equal(t, uint16(1000), kc.Baseline, "baseline is never recalculated")

	// Out-of-range percent is clamped, not rejected.
	require.True(t, e.SetKeyThreshold(a, 255))
	assert.Equal(t, uint16(990), e.Threshold(a))
	require.True(t, e.SetKeyThreshold(a, 0))
	assert.Equal(t, uint16(500), e.Threshold(a))

	// Other keys are untouched.
	d, _ := cm.Lookup("D")
	assert.Equal(t, uint16(413), e.Threshold(d))
}

func TestSetKeyThresholdUnknownKey(t *testing.T) {
	e, err := NewEngine(testParams(), 2)
	require.NoError(t, err)

	assert.False(t, e.SetKeyThreshold(0, 90), "not calibrated yet")
	assert.False(t, e.SetKeyThreshold(9, 90))
	assert.Zero(t, e.Threshold(0))
	assert.Zero(t, e.Threshold(9))
	assert.Empty(t, e.Summary())
}

func TestSummaryOrder(t *testing.T) {
	cm := testMap(t)
	e, err := NewEngine(testParams(), cm.NumKeys())
	require.NoError(t, err)
	e.Calibrate(cm, &scripted{invalid: 3500, samples: map[[2]int][]uint16{}}, &delays{})

	s := e.Summary()
	require.Len(t, s, 3)
	for i, kc := range s {
		assert.Equal(t, wiring.KeyID(i), kc.Key)
		assert.True(t, kc.Fallback)
	}
}
