package bridge

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/ids"
	"github.com/drblury/protogate/internal/runtime/metadata"
)

// toMessage converts a bus packet into a broker message with a fresh id.
func toMessage(pkt bus.Packet, envelope bool) *message.Message {
	if envelope {
		return message.NewMessage(ids.New(), EncodeEnvelope(pkt))
	}
	msg := message.NewMessage(ids.New(), message.Payload(pkt.Payload))
	msg.Metadata = metadata.ToMessage(pkt.Headers)
	return msg
}

// toPacket converts a broker message back into a packet. Standard headers are
// dropped because the receiving bus assigns its own.
func toPacket(msg *message.Message, envelope bool) (bus.Packet, error) {
	var pkt bus.Packet
	if envelope {
		var err error
		if pkt, err = DecodeEnvelope(msg.Payload); err != nil {
			return bus.Packet{}, err
		}
	} else {
		pkt = bus.Packet{
			Headers: metadata.FromMessage(msg.Metadata),
			Payload: append([]byte{}, msg.Payload...),
		}
	}
	return pkt.Without(bus.StandardHeaders...), nil
}
