// Package status provides a thread-safe view of scanner state for the HTTP
// server and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/shego/hallscan/internal/matrix"
	"github.com/shego/hallscan/internal/scan"
	"github.com/shego/hallscan/internal/wiring"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs           int64
	DebounceMs       int64
	ToggleCooldownMs int64
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
	UARTPort         string
}

// KeyStatus is the state of one mapped key.
type KeyStatus struct {
	Name      string
	Mux       uint8
	Channel   uint8
	Raw       uint16
	Baseline  uint16
	Threshold uint16
	Percent   uint8
	Fallback  bool
	Held      bool // debounced physical state
	Active    bool // state after arbitration
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; Keys is never shared with the Tracker.
type Snapshot struct {
	Keys          []KeyStatus
	Arbitration   bool
	Calibrated    bool
	Counts        scan.Stats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Active returns the names of keys currently reported as pressed.
func (s Snapshot) Active() []string {
	var out []string
	for _, k := range s.Keys {
		if k.Active {
			out = append(out, k.Name)
		}
	}
	return out
}

// Fallbacks counts keys running on default calibration.
func (s Snapshot) Fallbacks() int {
	n := 0
	for _, k := range s.Keys {
		if k.Fallback {
			n++
		}
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Observe copies the scanner state. active is the arbitrated output frame.
// Called from the run loop, never concurrently with sc.
func (t *Tracker) Observe(sc *scan.Context, active matrix.Frame) {
	cm := sc.ChannelMap()
	held := sc.Frame()
	keys := make([]KeyStatus, 0, len(cm.Mapped()))
	index := make(map[wiring.KeyID]int, len(cm.Mapped()))
	for _, c := range cm.Mapped() {
		index[c.Key] = len(keys)
		ks := KeyStatus{
			Name:    cm.KeyName(c.Key),
			Mux:     c.Mux,
			Channel: c.Index,
			Raw:     sc.LastRaw(int(c.Mux), int(c.Index)),
			Held:    held.Pressed(c.Key),
			Active:  active.Pressed(c.Key),
		}
		keys = append(keys, ks)
	}
	for _, kc := range sc.Calibration() {
		if i, ok := index[kc.Key]; ok {
			keys[i].Baseline = kc.Baseline
			keys[i].Threshold = kc.Threshold
			keys[i].Percent = kc.Percent
			keys[i].Fallback = kc.Fallback
		}
	}

	t.mu.Lock()
	t.snap.Keys = keys
	t.snap.Arbitration = sc.IsArbitrationEnabled()
	t.snap.Calibrated = sc.Calibrated()
	t.snap.Counts = sc.Stats()
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Keys = append([]KeyStatus(nil), t.snap.Keys...)
	if t.snap.Network != nil {
		n := *t.snap.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
