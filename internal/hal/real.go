//go:build linux

package hal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// LinuxConfig selects the GPIO chip and IIO device used by LinuxBoard.
type LinuxConfig struct {
	// Chip is the GPIO character device name, e.g. "gpiochip0".
	Chip string
	// IIODevice is the sysfs directory of the ADC, e.g.
	// /sys/bus/iio/devices/iio:device0. Analog pins are in_voltage<N>_raw.
	IIODevice string
	// Outputs lists every line driven by the multiplexer bus.
	Outputs []Pin
	// Idle is the level each output is requested with; missing pins start low.
	Idle map[Pin]bool
}

// LinuxBoard drives multiplexer lines through the Linux GPIO character
// device and samples the ADC through the IIO sysfs interface.
type LinuxBoard struct {
	chip  *gpiocdev.Chip
	lines map[Pin]*gpiocdev.Line
	adc   map[Pin]*os.File
	iio   string
	start time.Time
	log   zerolog.Logger
}

// NewLinuxBoard requests the output lines and opens nothing else until the
// first AnalogRead of each pin.
func NewLinuxBoard(cfg LinuxConfig, log zerolog.Logger) (*LinuxBoard, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip, gpiocdev.WithConsumer("hallscan"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Chip, err)
	}

	b := &LinuxBoard{
		chip:  chip,
		lines: make(map[Pin]*gpiocdev.Line, len(cfg.Outputs)),
		adc:   make(map[Pin]*os.File),
		iio:   cfg.IIODevice,
		start: time.Now(),
		log:   log,
	}

	for _, p := range cfg.Outputs {
		if !p.Valid() {
			continue
		}
		if _, ok := b.lines[p]; ok {
			continue
		}
		v := 0
		if cfg.Idle[p] {
			v = 1
		}
		line, err := chip.RequestLine(int(p), gpiocdev.AsOutput(v))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request output line %d: %w", p, err)
		}
		b.lines[p] = line
	}

	return b, nil
}

// DigitalWrite sets an output line requested at construction.
func (b *LinuxBoard) DigitalWrite(pin Pin, high bool) error {
	line, ok := b.lines[pin]
	if !ok {
		return fmt.Errorf("line %d not requested as output", pin)
	}
	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set line %d: %w", pin, err)
	}
	return nil
}

// AnalogRead reads in_voltage<pin>_raw from the IIO device.
func (b *LinuxBoard) AnalogRead(pin Pin) (uint16, error) {
	f, ok := b.adc[pin]
	if !ok {
		var err error
		name := filepath.Join(b.iio, fmt.Sprintf("in_voltage%d_raw", pin))
		f, err = os.Open(name)
		if err != nil {
			return 0, fmt.Errorf("open adc %s: %w", name, err)
		}
		b.adc[pin] = f
	}

	var buf [16]byte
	n, err := f.ReadAt(buf[:], 0)
	if n == 0 && err != nil {
		return 0, fmt.Errorf("read adc %d: %w", pin, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(buf[:n])), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("parse adc %d: %w", pin, err)
	}
	return uint16(v), nil
}

// Millis returns milliseconds since the board was opened, truncated to 32 bits.
func (b *LinuxBoard) Millis() uint32 {
	return uint32(time.Since(b.start).Milliseconds())
}

// DelayMicros busy-waits; time.Sleep cannot resolve tens of microseconds.
func (b *LinuxBoard) DelayMicros(us uint32) {
	d := time.Duration(us) * time.Microsecond
	t0 := time.Now()
	for time.Since(t0) < d {
	}
}

// Close returns every line to an input and releases the chip.
func (b *LinuxBoard) Close() error {
	var errs []error

	for p, line := range b.lines {
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", p, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", p, err))
		}
	}
	for p, f := range b.adc {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close adc %d: %w", p, err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		b.log.Warn().Int("errors", len(errs)).Msg("board close reported errors")
		return errors.Join(errs...)
	}
	return nil
}
