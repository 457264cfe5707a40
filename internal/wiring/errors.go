package wiring

// Error is a wiring configuration error.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrNoKeys          = Error("no keys defined")
	ErrTooManyKeys     = Error("too many keys")
	ErrEmptyKeyName    = Error("empty key name")
	ErrDuplicateName   = Error("duplicate key name")
	ErrUnknownKey      = Error("unknown key")
	ErrDuplicateKey    = Error("key assigned to more than one channel")
	ErrMuxWidth        = Error("invalid multiplexer width")
	ErrChannelRange    = Error("channel table longer than multiplexer width")
	ErrUnmappedPairKey = Error("pair references a key with no channel")
	ErrInvalidPair     = Error("invalid pair")
)
