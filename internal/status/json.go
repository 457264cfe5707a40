package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	SOCD          bool         `json:"socd"`
	Pressed       []string     `json:"pressed"`
	Fallbacks     int          `json:"fallbacks"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Keys          []KeyJSON    `json:"keys,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of scanner counters.
type CountsJSON struct {
	Passes         uint64 `json:"passes"`
	Transitions    uint64 `json:"transitions"`
	Events         uint64 `json:"events"`
	InvalidSamples uint64 `json:"invalid_samples"`
	BusFaults      uint64 `json:"bus_faults"`
}

// KeyJSON is the JSON representation of one key.
type KeyJSON struct {
	Name      string `json:"name"`
	Mux       uint8  `json:"mux"`
	Channel   uint8  `json:"channel"`
	Raw       uint16 `json:"raw"`
	Baseline  uint16 `json:"baseline"`
	Threshold uint16 `json:"threshold"`
	Percent   uint8  `json:"percent"`
	Fallback  bool   `json:"fallback"`
	Held      bool   `json:"held"`
	Active    bool   `json:"active"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs           int64  `json:"poll_ms"`
	DebounceMs       int64  `json:"debounce_ms"`
	ToggleCooldownMs int64  `json:"toggle_cooldown_ms"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	Broker           string `json:"broker"`
	HTTPAddr         string `json:"http_addr"`
	UARTPort         string `json:"uart_port,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	pressed := snap.Active()
	if pressed == nil {
		pressed = []string{}
	}

	inner := StatusInner{
		Ready:         snap.Calibrated,
		SOCD:          snap.Arbitration,
		Pressed:       pressed,
		Fallbacks:     snap.Fallbacks(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Passes:         snap.Counts.Passes,
			Transitions:    snap.Counts.Transitions,
			Events:         snap.Counts.Events,
			InvalidSamples: snap.Counts.InvalidSamples,
			BusFaults:      snap.Counts.BusFaults,
		},
		Config: ConfigJSON{
			PollMs:           snap.Config.PollMs,
			DebounceMs:       snap.Config.DebounceMs,
			ToggleCooldownMs: snap.Config.ToggleCooldownMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			UARTPort:         snap.Config.UARTPort,
		},
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint, including every key.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	inner.Keys = make([]KeyJSON, len(snap.Keys))
	for i, k := range snap.Keys {
		inner.Keys[i] = KeyJSON{
			Name:      k.Name,
			Mux:       k.Mux,
			Channel:   k.Channel,
			Raw:       k.Raw,
			Baseline:  k.Baseline,
			Threshold: k.Threshold,
			Percent:   k.Percent,
			Fallback:  k.Fallback,
			Held:      k.Held,
			Active:    k.Active,
		}
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Per-key rows are left out; the calibration topic carries them.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
