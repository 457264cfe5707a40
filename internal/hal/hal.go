// Package hal is the hardware boundary of the scanner: digital output lines
// that drive the multiplexers, analog input pins behind them, and a
// millisecond clock with a microsecond busy delay.
// The Linux implementation drives real GPIO lines; the fake implementation
// simulates multiplexers so the core can be tested without hardware.
package hal

// Pin identifies a GPIO line offset or an ADC input channel.
type Pin int

// NoPin marks an optional line that is not wired on this board.
const NoPin Pin = -1

// Valid reports whether p refers to a wired line.
func (p Pin) Valid() bool {
	return p >= 0
}

// DigitalWriter drives output lines.
type DigitalWriter interface {
	DigitalWrite(pin Pin, high bool) error
}

// AnalogReader samples an ADC input.
type AnalogReader interface {
	AnalogRead(pin Pin) (uint16, error)
}

// Clock is a monotonic millisecond counter plus a busy delay.
// Millis wraps around; compare timestamps with unsigned subtraction only.
type Clock interface {
	Millis() uint32
	DelayMicros(us uint32)
}

// Board is everything the scan core needs from the hardware.
type Board interface {
	DigitalWriter
	AnalogReader
	Clock

	// Close releases hardware resources.
	Close() error
}

// Elapsed returns now-since in milliseconds, correct across counter wraparound.
func Elapsed(now, since uint32) uint32 {
	return now - since
}
