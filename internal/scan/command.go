package scan

import (
	"fmt"

	"github.com/shego/hallscan/internal/wiring"
)

// CommandKind identifies a runtime configuration change.
type CommandKind int

const (
	// SetThreshold overrides one key's threshold percentage.
	SetThreshold CommandKind = iota
	// ToggleArbitration flips SOCD arbitration.
	ToggleArbitration
)

func (k CommandKind) String() string {
	switch k {
	case SetThreshold:
		return "SET_THRESHOLD"
	case ToggleArbitration:
		return "TOGGLE_SOCD"
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command is a configuration change requested from outside the scan loop.
// Commands are applied between passes so a pass never sees one half-applied.
type Command struct {
	Kind    CommandKind
	Key     wiring.KeyID
	Percent uint8
}

// Apply executes cmd and reports whether it changed anything.
func (c *Context) Apply(cmd Command) bool {
	switch cmd.Kind {
	case SetThreshold:
		return c.SetKeyThreshold(cmd.Key, cmd.Percent)
	case ToggleArbitration:
		return c.ToggleArbitration()
	}
	return false
}
