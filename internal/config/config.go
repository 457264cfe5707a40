// Package config loads the scanner configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shego/hallscan/internal/calib"
	"github.com/shego/hallscan/internal/hal"
	"github.com/shego/hallscan/internal/mux"
	"github.com/shego/hallscan/internal/scan"
	"github.com/shego/hallscan/internal/wiring"
)

// Config represents the application configuration.
type Config struct {
	Board       BoardConfig       `yaml:"board"`
	Keys        []string          `yaml:"keys"`
	SOCD        SOCDConfig        `yaml:"socd"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Scan        ScanConfig        `yaml:"scan"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
	UART        UARTConfig        `yaml:"uart"`
	Log         LogConfig         `yaml:"log"`
}

// BoardConfig describes the multiplexer wiring.
type BoardConfig struct {
	Chip         string      `yaml:"chip"`
	IIODevice    string      `yaml:"iio_device"`
	AddressPins  []int       `yaml:"address_pins"` // LSB first
	LatchPin     *int        `yaml:"latch_pin"`    // ADG732 WR; omit for transparent muxes
	LatchPulseUs uint32      `yaml:"latch_pulse_us"`
	SettleUs     uint32      `yaml:"settle_us"`
	Muxes        []MuxConfig `yaml:"muxes"`
}

// MuxConfig describes one multiplexer and its channel table.
type MuxConfig struct {
	ADCPin    int      `yaml:"adc_pin"`
	SelectPin *int     `yaml:"select_pin"` // active low; omit when always enabled
	Width     int      `yaml:"width"`
	Channels  []string `yaml:"channels"` // key name per channel, "" = unmapped
}

// SOCDConfig configures opposing-direction arbitration.
type SOCDConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ToggleCooldown time.Duration `yaml:"toggle_cooldown"`
	Pairs          []PairConfig  `yaml:"pairs"`
}

// PairConfig names the two keys of an opposing pair.
type PairConfig struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// CalibrationConfig contains the startup calibration constants.
type CalibrationConfig struct {
	Samples          int    `yaml:"samples"`
	SampleGapUs      uint32 `yaml:"sample_gap_us"`
	Ceiling          uint16 `yaml:"ceiling"` // readings above are crosstalk or a disconnected line
	DefaultBaseline  uint16 `yaml:"default_baseline"`
	DefaultThreshold uint16 `yaml:"default_threshold"`
	DefaultPercent   uint8  `yaml:"default_percent"`
	MinThreshold     uint16 `yaml:"min_threshold"`
	MaxThreshold     uint16 `yaml:"max_threshold"`
}

// ScanConfig contains main loop timing.
type ScanConfig struct {
	Poll     time.Duration `yaml:"poll"`
	Debounce time.Duration `yaml:"debounce"`
}

// MQTTConfig configures event telemetry. An empty broker disables it.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// UARTConfig configures the debug console. An empty port disables it.
type UARTConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the breadboard prototype: three 16-channel muxes on
// shared S0-S3 lines, each with its own ADC input.
func Default() *Config {
	return &Config{
		Board: BoardConfig{
			Chip:         "gpiochip0",
			IIODevice:    "/sys/bus/iio/devices/iio:device0",
			AddressPins:  []int{11, 12, 13, 14},
			LatchPulseUs: 5,
			SettleUs:     50,
			Muxes: []MuxConfig{
				{ADCPin: 0, Width: 16, Channels: []string{
					"2", "F1", "1", "Esc", "Grave", "Tab", "CapsLock", "ShiftL",
					"Z", "W", "Win", "A", "Q", "F2", "F3", "3",
				}},
				{ADCPin: 1, Width: 16, Channels: []string{
					"E", "4", "S", "AltL", "D", "Space", "G", "F5",
					"V", "", "R", "5", "B", "F", "", "Ctrl",
				}},
				{ADCPin: 2, Width: 16, Channels: []string{
					"6", "F6", "F7", "7", "H", "N", "", "",
					"", "", "", "", "J", "U", "Y", "",
				}},
			},
		},
		Keys: []string{
			"Esc", "F1", "F2", "F3", "F5", "F6", "F7",
			"Grave", "1", "2", "3", "4", "5", "6", "7",
			"Tab", "Q", "W", "E", "R", "Y", "U",
			"CapsLock", "A", "S", "D", "F", "G", "H", "J",
			"ShiftL", "Z", "V", "B", "N",
			"Ctrl", "Win", "AltL", "Space",
		},
		SOCD: SOCDConfig{
			Enabled:        true,
			ToggleCooldown: time.Second,
			Pairs: []PairConfig{
				{A: "A", B: "D"},
				{A: "W", B: "S"},
			},
		},
		Calibration: CalibrationConfig{
			Samples:          5,
			SampleGapUs:      200,
			Ceiling:          3500,
			DefaultBaseline:  500,
			DefaultThreshold: 413,
			DefaultPercent:   85,
			MinThreshold:     50,
			MaxThreshold:     3000,
		},
		Scan: ScanConfig{
			Poll:     time.Millisecond,
			Debounce: 5 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			ClientID:  "hallscan",
			Heartbeat: 15 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		UART: UARTConfig{
			Baud: 115200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist,
// defaults are returned; missing fields are filled from defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills zero-valued scalar fields. Wiring tables are never
// defaulted piecemeal: a file that sets keys or muxes owns the whole table.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Board.Chip == "" {
		c.Board.Chip = def.Board.Chip
	}
	if c.Board.IIODevice == "" {
		c.Board.IIODevice = def.Board.IIODevice
	}
	if c.Board.SettleUs == 0 {
		c.Board.SettleUs = def.Board.SettleUs
	}
	if c.Board.LatchPulseUs == 0 {
		c.Board.LatchPulseUs = def.Board.LatchPulseUs
	}

	if c.SOCD.ToggleCooldown == 0 {
		c.SOCD.ToggleCooldown = def.SOCD.ToggleCooldown
	}

	cal := &c.Calibration
	if cal.Samples == 0 {
		cal.Samples = def.Calibration.Samples
	}
	if cal.Ceiling == 0 {
		cal.Ceiling = def.Calibration.Ceiling
	}
	if cal.DefaultBaseline == 0 {
		cal.DefaultBaseline = def.Calibration.DefaultBaseline
	}
	if cal.DefaultThreshold == 0 {
		cal.DefaultThreshold = def.Calibration.DefaultThreshold
	}
	if cal.DefaultPercent == 0 {
		cal.DefaultPercent = def.Calibration.DefaultPercent
	}
	if cal.MaxThreshold == 0 {
		cal.MaxThreshold = def.Calibration.MaxThreshold
	}

	if c.Scan.Poll == 0 {
		c.Scan.Poll = def.Scan.Poll
	}
	if c.Scan.Debounce == 0 {
		c.Scan.Debounce = def.Scan.Debounce
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.UART.Baud == 0 {
		c.UART.Baud = def.UART.Baud
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// ChannelMap builds and validates the wiring described by c.
func (c *Config) ChannelMap() (*wiring.ChannelMap, error) {
	muxes := make([]wiring.MuxTable, len(c.Board.Muxes))
	for i, m := range c.Board.Muxes {
		muxes[i] = wiring.MuxTable{Width: m.Width, Channels: m.Channels}
	}
	pairs := make([]wiring.PairSpec, len(c.SOCD.Pairs))
	for i, p := range c.SOCD.Pairs {
		pairs[i] = wiring.PairSpec{A: p.A, B: p.B}
	}

	cm, err := wiring.Build(c.Keys, muxes, pairs)
	if err != nil {
		return nil, fmt.Errorf("wiring: %w", err)
	}
	return cm, nil
}

// ScanOptions converts c into scan.Options.
func (c *Config) ScanOptions() scan.Options {
	selects := make([]hal.Pin, len(c.Board.Muxes))
	adc := make([]hal.Pin, len(c.Board.Muxes))
	for i, m := range c.Board.Muxes {
		selects[i] = optionalPin(m.SelectPin)
		adc[i] = hal.Pin(m.ADCPin)
	}
	addr := make([]hal.Pin, len(c.Board.AddressPins))
	for i, p := range c.Board.AddressPins {
		addr[i] = hal.Pin(p)
	}

	return scan.Options{
		Bus: mux.BusConfig{
			Address:          addr,
			Latch:            optionalPin(c.Board.LatchPin),
			LatchPulseMicros: c.Board.LatchPulseUs,
			Selects:          selects,
		},
		ADCPins:      adc,
		SettleMicros: c.Board.SettleUs,
		Ceiling:      c.Calibration.Ceiling,
		Calibration: calib.Params{
			Samples:          c.Calibration.Samples,
			SampleGapMicros:  c.Calibration.SampleGapUs,
			DefaultBaseline:  c.Calibration.DefaultBaseline,
			DefaultThreshold: c.Calibration.DefaultThreshold,
			DefaultPercent:   c.Calibration.DefaultPercent,
			MinThreshold:     c.Calibration.MinThreshold,
			MaxThreshold:     c.Calibration.MaxThreshold,
		},
		DebounceMs:         uint32(c.Scan.Debounce.Milliseconds()),
		ToggleCooldownMs:   uint32(c.SOCD.ToggleCooldown.Milliseconds()),
		ArbitrationEnabled: c.SOCD.Enabled,
	}
}

// OutputPins lists every GPIO line the bus drives, with its idle level.
func (c *Config) OutputPins() ([]hal.Pin, map[hal.Pin]bool) {
	idle := make(map[hal.Pin]bool)
	var pins []hal.Pin
	for _, p := range c.Board.AddressPins {
		pins = append(pins, hal.Pin(p))
	}
	if p := optionalPin(c.Board.LatchPin); p.Valid() {
		pins = append(pins, p)
		idle[p] = true
	}
	for _, m := range c.Board.Muxes {
		if p := optionalPin(m.SelectPin); p.Valid() {
			pins = append(pins, p)
			idle[p] = true
		}
	}
	return pins, idle
}

// Validate checks everything that can be checked without hardware.
func (c *Config) Validate() error {
	if len(c.Board.AddressPins) == 0 {
		return errors.New("board: no address pins")
	}
	if len(c.Board.Muxes) == 0 {
		return errors.New("board: no multiplexers")
	}
	if c.Scan.Poll <= 0 {
		return fmt.Errorf("scan: poll interval must be positive, got %v", c.Scan.Poll)
	}
	if err := c.ScanOptions().Calibration.Validate(); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	if _, err := c.ChannelMap(); err != nil {
		return err
	}
	return nil
}

func optionalPin(p *int) hal.Pin {
	if p == nil || *p < 0 {
		return hal.NoPin
	}
	return hal.Pin(*p)
}
