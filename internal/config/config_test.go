package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shego/hallscan/internal/hal"
	"github.com/shego/hallscan/internal/wiring"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hallscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cm, err := cfg.ChannelMap()
	require.NoError(t, err)
	assert.Equal(t, len(cfg.Keys), cm.NumKeys())
	assert.Equal(t, 3, cm.NumMuxes())
	assert.Len(t, cm.Pairs(), 2)

	a, ok := cm.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, wiring.Directional{Pair: 0, Side: wiring.SideA}, cm.Binding(a))
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialFile(t *testing.T) {
	path := writeFile(t, `
scan:
  debounce: 8ms
socd:
  enabled: false
mqtt:
  broker: tcp://localhost:1883
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8*time.Millisecond, cfg.Scan.Debounce)
	assert.Equal(t, time.Millisecond, cfg.Scan.Poll)
	assert.False(t, cfg.SOCD.Enabled)
	assert.Len(t, cfg.SOCD.Pairs, 2)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "hallscan", cfg.MQTT.ClientID)
	assert.Equal(t, uint8(85), cfg.Calibration.DefaultPercent)
}

func TestLoadCustomWiring(t *testing.T) {
	path := writeFile(t, `
board:
  address_pins: [5, 6, 13]
  latch_pin: 19
  muxes:
    - adc_pin: 0
      select_pin: 20
      width: 8
      channels: [Left, Right, "", Jump]
keys: [Left, Right, Jump]
socd:
  pairs:
    - {a: Left, b: Right}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	opts := cfg.ScanOptions()
	assert.Equal(t, []hal.Pin{5, 6, 13}, opts.Bus.Address)
	assert.Equal(t, hal.Pin(19), opts.Bus.Latch)
	assert.Equal(t, []hal.Pin{20}, opts.Bus.Selects)
	assert.Equal(t, []hal.Pin{0}, opts.ADCPins)
	assert.Equal(t, uint32(5), opts.DebounceMs)
	assert.Equal(t, uint32(1000), opts.ToggleCooldownMs)
	assert.Equal(t, uint32(50), opts.SettleMicros)

	pins, idle := cfg.OutputPins()
	assert.Equal(t, []hal.Pin{5, 6, 13, 19, 20}, pins)
	assert.Equal(t, map[hal.Pin]bool{19: true, 20: true}, idle)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "keys: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Addr = ":9090"
	cfg.Scan.Debounce = 7 * time.Millisecond
	latch := 4
	cfg.Board.LatchPin = &latch

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no address pins", func(c *Config) { c.Board.AddressPins = nil }, nil},
		{"no muxes", func(c *Config) { c.Board.Muxes = nil }, nil},
		{"zero poll", func(c *Config) { c.Scan.Poll = 0 }, nil},
		{"percent too low", func(c *Config) { c.Calibration.DefaultPercent = 20 }, nil},
		{"unknown key", func(c *Config) { c.Board.Muxes[0].Channels[0] = "Nope" }, wiring.ErrUnknownKey},
		{"duplicate key", func(c *Config) { c.Board.Muxes[2].Channels[6] = "A" }, wiring.ErrDuplicateKey},
		{"pair key unknown", func(c *Config) { c.SOCD.Pairs[0].B = "Right" }, wiring.ErrUnknownKey},
		{"too wide", func(c *Config) { c.Board.Muxes[0].Width = 64 }, wiring.ErrMuxWidth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestOptionalPin(t *testing.T) {
	neg := -1
	seven := 7
	assert.Equal(t, hal.NoPin, optionalPin(nil))
	assert.Equal(t, hal.NoPin, optionalPin(&neg))
	assert.Equal(t, hal.Pin(7), optionalPin(&seven))
}
