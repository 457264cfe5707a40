// Package uart writes a human-readable debug trace of scanner activity to a
// serial console.
package uart

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/shego/hallscan/internal/calib"
	"github.com/shego/hallscan/internal/wiring"
)

// Open opens a serial port at baud, 8N1.
func Open(port string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return p, nil
}

// Reporter formats scanner activity as CRLF-terminated lines.
// Not safe for concurrent use.
type Reporter struct {
	w      io.Writer
	log    zerolog.Logger
	failed bool
}

// NewReporter returns a Reporter writing to w. Write errors are logged once
// per failure streak and otherwise ignored.
func NewReporter(w io.Writer, log zerolog.Logger) *Reporter {
	return &Reporter{w: w, log: log.With().Str("subsystem", "uart").Logger()}
}

func (r *Reporter) printf(format string, args ...interface{}) {
	_, err := fmt.Fprintf(r.w, format+"\r\n", args...)
	switch {
	case err != nil && !r.failed:
		r.log.Warn().Err(err).Msg("write failed")
		r.failed = true
	case err == nil && r.failed:
		r.log.Info().Msg("write recovered")
		r.failed = false
	}
}

// Key reports one arbitrated key event.
func (r *Reporter) Key(name string, pressed bool) {
	action := "RELEASE"
	if pressed {
		action = "PRESS"
	}
	r.printf("Key %s: %s", name, action)
}

// Arbitration reports the arbitration mode after a toggle.
func (r *Reporter) Arbitration(enabled bool) {
	if enabled {
		r.printf("SOCD: Enabled")
		return
	}
	r.printf("SOCD: Disabled")
}

// ToggleIgnored reports a toggle request dropped by the cooldown.
func (r *Reporter) ToggleIgnored() {
	r.printf("SOCD: toggle ignored (debounce)")
}

// Threshold reports a runtime threshold change.
func (r *Reporter) Threshold(name string, kc calib.KeyCalibration) {
	r.printf("Key %s: threshold %d (%d%% of %d)", name, kc.Threshold, kc.Percent, kc.Baseline)
}

// Calibration prints the calibration table followed by one warning line
// per key that fell back to default values.
func (r *Reporter) Calibration(cm *wiring.ChannelMap, keys []calib.KeyCalibration) {
	r.printf("%-10s %5s %5s %8s %9s", "key", "mux", "ch", "baseline", "threshold")
	for _, kc := range keys {
		loc, ok := cm.Location(kc.Key)
		if !ok {
			continue
		}
		r.printf("%-10s %5d %5d %8d %9d", cm.KeyName(kc.Key), loc.Mux, loc.Index, kc.Baseline, kc.Threshold)
	}
	for _, kc := range keys {
		if kc.Fallback {
			r.printf("key %s using fallback calibration", cm.KeyName(kc.Key))
		}
	}
}
