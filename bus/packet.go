package bus

import (
	"strconv"
	"strings"
)

// Standard header keys attached by the bus.
const (
	HeaderTimeMono     = "time_mono"
	HeaderTimeWall     = "time_wall"
	HeaderTransportSeq = "transport_seq"
	HeaderWriterID     = "writer_id"
	HeaderWriterSeq    = "writer_seq"

	HeaderRPCType  = "rpc_type"
	HeaderReqID    = "req_id"
	HeaderDep      = "dep"
	HeaderPRPCDone = "prpc_done"
	HeaderLogLevel = "log_level"
)

// StandardHeaders lists the keys every published packet carries, in the order
// they are appended.
var StandardHeaders = []string{
	HeaderTimeMono,
	HeaderTimeWall,
	HeaderTransportSeq,
	HeaderWriterID,
	HeaderWriterSeq,
}

// RPC packet kinds carried in HeaderRPCType.
const (
	RPCRequest  = "request"
	RPCResponse = "response"
	RPCCancel   = "cancel"
	RPCProgress = "progress"
)

// Header is a single key/value pair. Keys may repeat within a packet.
type Header struct {
	Key   string
	Value string
}

// Packet is the bus unit of data: an ordered header list and an opaque payload.
type Packet struct {
	Headers []Header
	Payload []byte
}

// NewPacket builds a packet from alternating key/value pairs.
func NewPacket(payload []byte, pairs ...string) Packet {
	pkt := Packet{Payload: payload}
	for i := 0; i+1 < len(pairs); i += 2 {
		pkt.Headers = append(pkt.Headers, Header{Key: pairs[i], Value: pairs[i+1]})
	}
	return pkt
}

// Get returns the first value stored under key.
func (p Packet) Get(key string) (string, bool) {
	for _, h := range p.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Values returns every value stored under key in insertion order.
func (p Packet) Values(key string) []string {
	var out []string
	for _, h := range p.Headers {
		if h.Key == key {
			out = append(out, h.Value)
		}
	}
	return out
}

// Seq returns the transport sequence number assigned by the bus, or zero.
func (p Packet) Seq() uint64 {
	v, ok := p.Get(HeaderTransportSeq)
	if !ok {
		return 0
	}
	seq, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

// With returns a copy of the packet with the header appended.
func (p Packet) With(key, value string) Packet {
	out := p.Clone()
	out.Headers = append(out.Headers, Header{Key: key, Value: value})
	return out
}

// Without returns a copy of the packet without the named headers. A key ending
// in "*" removes every header with that prefix.
func (p Packet) Without(keys ...string) Packet {
	out := Packet{Payload: p.Payload}
	for _, h := range p.Headers {
		if matchesAny(h.Key, keys) {
			continue
		}
		out.Headers = append(out.Headers, h)
	}
	return out
}

// Clone returns a deep copy of the packet.
func (p Packet) Clone() Packet {
	out := Packet{}
	if p.Headers != nil {
		out.Headers = make([]Header, len(p.Headers))
		copy(out.Headers, p.Headers)
	}
	if p.Payload != nil {
		out.Payload = make([]byte, len(p.Payload))
		copy(out.Payload, p.Payload)
	}
	return out
}

// Pairs flattens the headers into the [key, value] form used on the wire.
func (p Packet) Pairs() [][2]string {
	pairs := make([][2]string, 0, len(p.Headers))
	for _, h := range p.Headers {
		pairs = append(pairs, [2]string{h.Key, h.Value})
	}
	return pairs
}

func matchesAny(key string, keys []string) bool {
	for _, k := range keys {
		if strings.HasSuffix(k, "*") && strings.HasPrefix(key, strings.TrimSuffix(k, "*")) {
			return true
		}
		if key == k {
			return true
		}
	}
	return false
}
