// Package wiring describes which multiplexer channel drives which logical key
// and which keys form opposing directional pairs. A ChannelMap is built once
// from board configuration, validated, and read-only afterwards.
package wiring

import "fmt"

// KeyID is the logical identity of one physical key position.
type KeyID uint8

// MaxKeys bounds the number of keys a ChannelMap can describe.
const MaxKeys = 128

// NoKey marks an unmapped channel.
const NoKey KeyID = 0xFF

// MaxMuxWidth is the widest supported multiplexer (ADG732, 5 address lines).
const MaxMuxWidth = 32

// Side picks one key of an opposing pair.
type Side uint8

const (
	SideA Side = 0
	SideB Side = 1
)

// Opposite returns the other side of the pair.
func (s Side) Opposite() Side {
	return s ^ 1
}

// Binding says how a key is routed after debouncing.
// It is either Directional or Other.
type Binding interface {
	isBinding()
}

// Directional is a key that belongs to an opposing pair.
type Directional struct {
	Pair int
	Side Side
}

// Other is any key that is not part of a pair.
type Other struct {
	Key KeyID
}

func (Directional) isBinding() {}
func (Other) isBinding()       {}

// MuxTable lists the key name wired to each channel of one multiplexer.
// An empty name means the channel is unmapped.
type MuxTable struct {
	Width    int
	Channels []string
}

// PairSpec names the two keys of an opposing pair.
type PairSpec struct {
	A string
	B string
}

// Pair is a validated opposing pair.
type Pair struct {
	Keys [2]KeyID
}

// Channel identifies one (multiplexer, channel) position and the key it drives.
type Channel struct {
	Mux   uint8
	Index uint8
	Key   KeyID
}

// Mapped reports whether the channel drives a key.
func (c Channel) Mapped() bool {
	return c.Key != NoKey
}

// ChannelMap is the validated, immutable board wiring.
type ChannelMap struct {
	names    []string
	byName   map[string]KeyID
	muxes    [][]Channel
	mapped   []Channel
	location []Channel
	bindings []Binding
	pairs    []Pair
}

// Build validates the wiring tables and returns the ChannelMap.
// keys defines KeyIDs in order. Every error is a structural configuration
// error; the scanner must not start with a map that fails to build.
func Build(keys []string, muxes []MuxTable, pairs []PairSpec) (*ChannelMap, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	if len(keys) > MaxKeys {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyKeys, len(keys), MaxKeys)
	}

	cm := &ChannelMap{
		names:    make([]string, len(keys)),
		byName:   make(map[string]KeyID, len(keys)),
		muxes:    make([][]Channel, len(muxes)),
		location: make([]Channel, len(keys)),
		bindings: make([]Binding, len(keys)),
	}

	for i, name := range keys {
		if name == "" {
			return nil, fmt.Errorf("%w at index %d", ErrEmptyKeyName, i)
		}
		if _, dup := cm.byName[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		k := KeyID(i)
		cm.names[i] = name
		cm.byName[name] = k
		cm.location[i] = Channel{Key: NoKey}
		cm.bindings[i] = Other{Key: k}
	}

	for m, table := range muxes {
		if table.Width <= 0 || table.Width > MaxMuxWidth {
			return nil, fmt.Errorf("%w: mux %d width %d", ErrMuxWidth, m, table.Width)
		}
		if len(table.Channels) > table.Width {
			return nil, fmt.Errorf("%w: mux %d has %d entries for width %d", ErrChannelRange, m, len(table.Channels), table.Width)
		}

		cm.muxes[m] = make([]Channel, table.Width)
		for ch := range cm.muxes[m] {
			c := Channel{Mux: uint8(m), Index: uint8(ch), Key: NoKey}
			if ch < len(table.Channels) && table.Channels[ch] != "" {
				name := table.Channels[ch]
				k, ok := cm.byName[name]
				if !ok {
					return nil, fmt.Errorf("%w: %q on mux %d channel %d", ErrUnknownKey, name, m, ch)
				}
				if prev := cm.location[k]; prev.Mapped() {
					return nil, fmt.Errorf("%w: %q on mux %d channel %d and mux %d channel %d",
						ErrDuplicateKey, name, prev.Mux, prev.Index, m, ch)
				}
				c.Key = k
				cm.location[k] = c
				cm.mapped = append(cm.mapped, c)
			}
			cm.muxes[m][ch] = c
		}
	}

	for i, p := range pairs {
		a, err := cm.pairKey(i, p.A)
		if err != nil {
			return nil, err
		}
		b, err := cm.pairKey(i, p.B)
		if err != nil {
			return nil, err
		}
		if a == b {
			return nil, fmt.Errorf("%w: pair %d uses %q twice", ErrInvalidPair, i, p.A)
		}
		for _, k := range []KeyID{a, b} {
			if _, taken := cm.bindings[k].(Directional); taken {
				return nil, fmt.Errorf("%w: %q is in more than one pair", ErrInvalidPair, cm.names[k])
			}
		}
		cm.bindings[a] = Directional{Pair: len(cm.pairs), Side: SideA}
		cm.bindings[b] = Directional{Pair: len(cm.pairs), Side: SideB}
		cm.pairs = append(cm.pairs, Pair{Keys: [2]KeyID{a, b}})
	}

	return cm, nil
}

func (cm *ChannelMap) pairKey(pair int, name string) (KeyID, error) {
	k, ok := cm.byName[name]
	if !ok {
		return NoKey, fmt.Errorf("%w: %q in pair %d", ErrUnknownKey, name, pair)
	}
	if !cm.location[k].Mapped() {
		return NoKey, fmt.Errorf("%w: %q in pair %d", ErrUnmappedPairKey, name, pair)
	}
	return k, nil
}

// NumKeys returns the number of defined keys.
func (cm *ChannelMap) NumKeys() int {
	return len(cm.names)
}

// NumMuxes returns the number of multiplexers.
func (cm *ChannelMap) NumMuxes() int {
	return len(cm.muxes)
}

// Width returns the number of channels on mux m.
func (cm *ChannelMap) Width(m int) int {
	return len(cm.muxes[m])
}

// KeyAt returns the key driven by (mux, ch), or NoKey.
func (cm *ChannelMap) KeyAt(mux, ch int) KeyID {
	if mux < 0 || mux >= len(cm.muxes) || ch < 0 || ch >= len(cm.muxes[mux]) {
		return NoKey
	}
	return cm.muxes[mux][ch].Key
}

// Mapped returns every mapped channel in scan order.
func (cm *ChannelMap) Mapped() []Channel {
	return cm.mapped
}

// Location returns the channel that drives k.
func (cm *ChannelMap) Location(k KeyID) (Channel, bool) {
	if int(k) >= len(cm.location) {
		return Channel{Key: NoKey}, false
	}
	c := cm.location[k]
	return c, c.Mapped()
}

// KeyName returns the configured name of k.
func (cm *ChannelMap) KeyName(k KeyID) string {
	if int(k) >= len(cm.names) {
		return fmt.Sprintf("key%d", k)
	}
	return cm.names[k]
}

// Lookup resolves a key name.
func (cm *ChannelMap) Lookup(name string) (KeyID, bool) {
	k, ok := cm.byName[name]
	return k, ok
}

// Binding returns how k is routed. Unknown keys are reported as Other.
func (cm *ChannelMap) Binding(k KeyID) Binding {
	if int(k) >= len(cm.bindings) {
		return Other{Key: k}
	}
	return cm.bindings[k]
}

// Pairs returns the opposing pairs in configuration order.
func (cm *ChannelMap) Pairs() []Pair {
	return cm.pairs
}
