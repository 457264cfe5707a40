// Package mqtt publishes key events, calibration reports and system
// lifecycle events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"
)

// TopicEvents is the MQTT topic for arbitrated key events.
const TopicEvents = "hallscan/keys/events"

// TopicCalibration is the MQTT topic for the startup calibration report.
const TopicCalibration = "hallscan/keys/calibration"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "hallscan/system"

// Publisher publishes telemetry to MQTT.
type Publisher interface {
	// Publish sends one key event. Errors are reported, never fatal.
	Publish(event KeyEvent) error

	// PublishCalibration sends the calibration table (retained).
	PublishCalibration(report CalibrationReport) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// KeyEvent is one press or release leaving the arbiter.
type KeyEvent struct {
	Timestamp time.Time
	Key       string
	Pressed   bool
	SOCD      bool // arbitration was enabled when the event was produced
}

// Action returns "PRESS" or "RELEASE".
func (e KeyEvent) Action() string {
	if e.Pressed {
		return "PRESS"
	}
	return "RELEASE"
}

// KeyCalibration is one row of a calibration report.
type KeyCalibration struct {
	Key       string
	Baseline  uint16
	Threshold uint16
	Percent   uint8
	Fallback  bool
}

// CalibrationReport is the calibration table of every key.
type CalibrationReport struct {
	Timestamp time.Time
	Keys      []KeyCalibration
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, SOCD toggle).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "SOCD_ENABLED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload for a key event.
type Payload struct {
	Key KeyPayload `json:"key"`
}

// KeyPayload contains the key event details.
type KeyPayload struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Event     string `json:"event"`
	SOCD      bool   `json:"socd"`
}

// FormatPayload creates the JSON payload for a key event.
func FormatPayload(event KeyEvent) ([]byte, error) {
	payload := Payload{
		Key: KeyPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Name:      event.Key,
			Event:     event.Action(),
			SOCD:      event.SOCD,
		},
	}
	return json.Marshal(payload)
}

// CalibrationPayload is the MQTT message payload for a calibration report.
type CalibrationPayload struct {
	Calibration CalibrationInner `json:"calibration"`
}

// CalibrationInner contains the calibration table.
type CalibrationInner struct {
	Timestamp string            `json:"timestamp"`
	Fallbacks int               `json:"fallbacks"`
	Keys      []CalibrationJSON `json:"keys"`
}

// CalibrationJSON is one key in a calibration payload.
type CalibrationJSON struct {
	Name      string `json:"name"`
	Baseline  uint16 `json:"baseline"`
	Threshold uint16 `json:"threshold"`
	Percent   uint8  `json:"percent"`
	Fallback  bool   `json:"fallback"`
}

// FormatCalibrationPayload creates the JSON payload for a calibration report.
func FormatCalibrationPayload(report CalibrationReport) ([]byte, error) {
	inner := CalibrationInner{
		Timestamp: report.Timestamp.UTC().Format(time.RFC3339),
		Keys:      make([]CalibrationJSON, len(report.Keys)),
	}
	for i, k := range report.Keys {
		inner.Keys[i] = CalibrationJSON{
			Name:      k.Key,
			Baseline:  k.Baseline,
			Threshold: k.Threshold,
			Percent:   k.Percent,
			Fallback:  k.Fallback,
		}
		if k.Fallback {
			inner.Fallbacks++
		}
	}
	return json.Marshal(CalibrationPayload{Calibration: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Discard is a Publisher that drops everything, used when no broker is configured.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(KeyEvent) error                     { return nil }
func (discard) PublishCalibration(CalibrationReport) error { return nil }
func (discard) PublishSystem(SystemEvent) error            { return nil }
func (discard) Close() error                               { return nil }
func (discard) IsConnected() bool                          { return false }
