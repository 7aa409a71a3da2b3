// Package request validates the JSON commands clients send to the gateway and
// turns them into typed Commands.
//
// Validation is a single pass over the raw fields of the request object. Every
// failure is a *errors.RequestError carrying the literal message clients match
// on, and every check runs before the caller touches the bus.
package request

import (
	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/codec"
)

// Op tags the operation a Command performs.
type Op int

const (
	OpPublish Op = iota + 1
	OpWrite
	OpRPC
	OpSubscribe
	OpRead
	OpPRPC
	OpDiscover
	OpLog
	OpPubStream
)

func (o Op) String() string {
	switch o {
	case OpPublish:
		return "pub"
	case OpWrite:
		return "write"
	case OpRPC:
		return "rpc"
	case OpSubscribe:
		return "sub"
	case OpRead:
		return "read"
	case OpPRPC:
		return "prpc"
	case OpDiscover:
		return "discover"
	case OpLog:
		return "log"
	case OpPubStream:
		return "pub_stream"
	default:
		return "unknown"
	}
}

// Scheduler paces a live stream to its socket.
type Scheduler int

const (
	// Immediate sends every frame as soon as the bus delivers it.
	Immediate Scheduler = iota
	// OnAck keeps at most one frame in flight; any client text frame releases it.
	OnAck
	// OnDrain waits for each write to complete. Writes are synchronous, so it
	// paces like Immediate.
	OnDrain
)

var schedulerNames = map[string]Scheduler{
	"IMMEDIATE": Immediate,
	"ON_ACK":    OnAck,
	"ON_DRAIN":  OnDrain,
}

func (s Scheduler) String() string {
	for name, v := range schedulerNames {
		if v == s {
			return name
		}
	}
	return "UNKNOWN"
}

// DefaultPattern is the discovery glob used when the request omits one.
const DefaultPattern = "**/*"

// Command is a validated request. Op tells which fields are meaningful:
//
//	OpPublish, OpRPC, OpPRPC, OpPubStream: Topic, Packet, encodings
//	OpSubscribe, OpLog: Topic, Read, ResponseEncoding, Scheduler
//	OpWrite: Path, Packet, StandardHeaders
//	OpRead: Path, Read, ResponseEncoding, Scheduler
//	OpDiscover: Protocol, Pattern, Scheduler
type Command struct {
	Op Op

	Topic bus.Topic
	Path  string

	Packet          bus.Packet
	StandardHeaders bool

	RequestEncoding  codec.Encoding
	ResponseEncoding codec.Encoding

	Scheduler Scheduler
	Read      bus.ReadOptions

	Protocol bus.Protocol
	Pattern  string
	Level    bus.LogLevel
}
