package mqtt

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloads(msgs []bufferedMsg) []byte {
	out := make([]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.payload[0]
	}
	return out
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10, zerolog.Nop())
	assert.Nil(t, rb.drainAll())
}

func TestRingBufferPushAndDrain(t *testing.T) {
	rb := newRingBuffer(10, zerolog.Nop())
	for i := 0; i < 5; i++ {
		rb.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}

	assert.Equal(t, []byte{0, 1, 2, 3, 4}, payloads(rb.drainAll()))
	assert.Nil(t, rb.drainAll(), "second drain should be empty")
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	rb := newRingBuffer(5, zerolog.Nop())
	for i := 0; i < 8; i++ {
		rb.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}

	assert.Equal(t, 5, rb.len())
	assert.Equal(t, 3, rb.dropped)
	assert.Equal(t, []byte{3, 4, 5, 6, 7}, payloads(rb.drainAll()))
	assert.False(t, rb.overflow)
}

func TestRingBufferMultipleCycles(t *testing.T) {
	rb := newRingBuffer(5, zerolog.Nop())

	for i := 0; i < 3; i++ {
		rb.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}
	require.Len(t, rb.drainAll(), 3)

	for i := 10; i < 14; i++ {
		rb.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}
	assert.Equal(t, []byte{10, 11, 12, 13}, payloads(rb.drainAll()))
}

func TestRingBufferZeroCapacity(t *testing.T) {
	rb := newRingBuffer(0, zerolog.Nop())
	rb.push(bufferedMsg{topic: "t", payload: []byte{1}})
	assert.Equal(t, 0, rb.len())
	assert.Equal(t, 1, rb.dropped)
	assert.Nil(t, rb.drainAll())
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(10, zerolog.Nop())
	want := bufferedMsg{
		topic:    TopicCalibration,
		payload:  []byte(`{"test":true}`),
		qos:      1,
		retained: true,
	}
	rb.push(want)

	got := rb.drainAll()
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
}
