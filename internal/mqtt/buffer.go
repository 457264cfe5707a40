package mqtt

import "github.com/rs/zerolog"

// bufferedMsg is a serialized message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages published while the
// broker was unreachable. Not safe for concurrent use.
type ringBuffer struct {
	buf      []bufferedMsg
	head     int // next write position
	count    int
	overflow bool // set once per drain cycle when the oldest entry is lost
	dropped  int
	log      zerolog.Logger
}

func newRingBuffer(capacity int, log zerolog.Logger) *ringBuffer {
	return &ringBuffer{
		buf: make([]bufferedMsg, capacity),
		log: log,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if len(r.buf) == 0 {
		r.dropped++
		return
	}
	if r.count == len(r.buf) {
		if !r.overflow {
			r.log.Warn().Int("capacity", len(r.buf)).Msg("buffer full, dropping oldest messages")
			r.overflow = true
		}
		r.dropped++
		r.buf[r.head] = msg
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	r.count++
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
