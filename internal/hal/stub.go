//go:build !linux

package hal

import (
	"errors"

	"github.com/rs/zerolog"
)

// LinuxConfig selects the GPIO chip and IIO device used by LinuxBoard.
type LinuxConfig struct {
	Chip      string
	IIODevice string
	Outputs   []Pin
	Idle      map[Pin]bool
}

// LinuxBoard is not available on non-Linux platforms.
type LinuxBoard struct{}

// NewLinuxBoard returns an error on non-Linux platforms.
func NewLinuxBoard(cfg LinuxConfig, log zerolog.Logger) (*LinuxBoard, error) {
	return nil, errors.New("hal: not supported on this platform (requires Linux)")
}

// DigitalWrite is not implemented on non-Linux platforms.
func (b *LinuxBoard) DigitalWrite(pin Pin, high bool) error {
	return errors.New("hal: not supported")
}

// AnalogRead is not implemented on non-Linux platforms.
func (b *LinuxBoard) AnalogRead(pin Pin) (uint16, error) {
	return 0, errors.New("hal: not supported")
}

// Millis always returns 0 on non-Linux platforms.
func (b *LinuxBoard) Millis() uint32 { return 0 }

// DelayMicros does nothing on non-Linux platforms.
func (b *LinuxBoard) DelayMicros(us uint32) {}

// Close is not implemented on non-Linux platforms.
func (b *LinuxBoard) Close() error {
	return nil
}
