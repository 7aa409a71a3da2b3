package bridge

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/drblury/protogate/bus"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
)

// Envelope field numbers. A header is a nested message of key and value.
const (
	fieldHeader  protowire.Number = 1
	fieldPayload protowire.Number = 2

	fieldHeaderKey   protowire.Number = 1
	fieldHeaderValue protowire.Number = 2
)

// EncodeEnvelope serialises pkt in protobuf wire format. Headers are written in
// order, so repeated keys and their positions survive the trip.
func EncodeEnvelope(pkt bus.Packet) []byte {
	var out []byte
	for _, h := range pkt.Headers {
		var nested []byte
		nested = protowire.AppendTag(nested, fieldHeaderKey, protowire.BytesType)
		nested = protowire.AppendString(nested, h.Key)
		nested = protowire.AppendTag(nested, fieldHeaderValue, protowire.BytesType)
		nested = protowire.AppendString(nested, h.Value)

		out = protowire.AppendTag(out, fieldHeader, protowire.BytesType)
		out = protowire.AppendBytes(out, nested)
	}
	out = protowire.AppendTag(out, fieldPayload, protowire.BytesType)
	return protowire.AppendBytes(out, pkt.Payload)
}

// DecodeEnvelope parses an envelope written by EncodeEnvelope. Unknown fields
// are skipped.
func DecodeEnvelope(data []byte) (bus.Packet, error) {
	var pkt bus.Packet
	err := walk(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch {
		case num == fieldHeader && typ == protowire.BytesType:
			h, err := decodeHeader(value)
			if err != nil {
				return err
			}
			pkt.Headers = append(pkt.Headers, h)
		case num == fieldPayload && typ == protowire.BytesType:
			pkt.Payload = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return bus.Packet{}, err
	}
	if pkt.Payload == nil {
		pkt.Payload = []byte{}
	}
	return pkt, nil
}

func decodeHeader(data []byte) (bus.Header, error) {
	var h bus.Header
	err := walk(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case fieldHeaderKey:
			h.Key = string(value)
		case fieldHeaderValue:
			h.Value = string(value)
		}
		return nil
	})
	return h, err
}

// walk calls fn for every field in data. value is only set for length
// delimited fields.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", errspkg.ErrEnvelopeMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		var value []byte
		if typ == protowire.BytesType {
			value, n = protowire.ConsumeBytes(data)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", errspkg.ErrEnvelopeMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(num, typ, value); err != nil {
			return err
		}
	}
	return nil
}
