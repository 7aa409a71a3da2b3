package stream

import (
	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/codec"
	"github.com/drblury/protogate/internal/runtime/jsoncodec"
)

// PacketFrame is the JSON form of a packet sent to clients. Done is only set on
// PRPC frames.
type PacketFrame struct {
	Headers [][2]string `json:"headers"`
	Payload string      `json:"payload"`
	Done    *bool       `json:"done,omitempty"`
}

// NewPacketFrame encodes the payload of pkt with enc.
func NewPacketFrame(pkt bus.Packet, enc codec.Encoding) (PacketFrame, error) {
	payload, err := codec.Encode(pkt.Payload, enc)
	if err != nil {
		return PacketFrame{}, err
	}
	return PacketFrame{Headers: pkt.Pairs(), Payload: payload}, nil
}

// EncodePacket renders pkt as a data frame.
func EncodePacket(pkt bus.Packet, enc codec.Encoding) ([]byte, error) {
	f, err := NewPacketFrame(pkt, enc)
	if err != nil {
		return nil, err
	}
	return jsoncodec.Marshal(f)
}

// EncodeProgress renders a PRPC response, including its done flag.
func EncodeProgress(pkt bus.Packet, enc codec.Encoding, done bool) ([]byte, error) {
	f, err := NewPacketFrame(pkt, enc)
	if err != nil {
		return nil, err
	}
	f.Done = &done
	return jsoncodec.Marshal(f)
}
