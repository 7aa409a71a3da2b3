package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPacketHeaders(t *testing.T) {
	pkt := NewPacket([]byte("hi"), "a", "1", "b", "2", "a", "3")

	v, ok := pkt.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, []string{"1", "3"}, pkt.Values("a"))
	assert.Equal(t, [][2]string{{"a", "1"}, {"b", "2"}, {"a", "3"}}, pkt.Pairs())

	_, ok = pkt.Get("missing")
	assert.False(t, ok)
}

func TestPacketWithDoesNotAlias(t *testing.T) {
	pkt := NewPacket([]byte("hi"), "a", "1")
	next := pkt.With("b", "2")

	assert.Len(t, pkt.Headers, 1)
	assert.Len(t, next.Headers, 2)

	next.Payload[0] = 'H'
	assert.Equal(t, "hi", string(pkt.Payload))
}

func TestPacketWithout(t *testing.T) {
	pkt := NewPacket(nil, "rpc_type", "request", "req_id", "x", "user", "1", "rpc_extra", "y")
	out := pkt.Without("req_id", "rpc_*")
	assert.Equal(t, [][2]string{{"user", "1"}}, out.Pairs())
}

func TestPacketSeq(t *testing.T) {
	assert.Equal(t, uint64(0), NewPacket(nil).Seq())
	assert.Equal(t, uint64(7), NewPacket(nil, HeaderTransportSeq, "7").Seq())
	assert.Equal(t, uint64(0), NewPacket(nil, HeaderTransportSeq, "x").Seq())
}

func TestLogLevel(t *testing.T) {
	lvl, ok := ParseLogLevel("WARN")
	assert.True(t, ok)
	assert.Equal(t, LogWarn, lvl)
	assert.True(t, LogCrit < LogInfo)
	assert.Equal(t, "DBG", LogDbg.String())

	_, ok = ParseLogLevel("warn")
	assert.False(t, ok)
}
