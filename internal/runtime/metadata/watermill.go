package metadata

import (
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/protogate/bus"
)

// reservedPrefix marks keys some Watermill marshalers add for their own
// bookkeeping. They are not packet headers.
const reservedPrefix = "_watermill"

// ToMessage flattens packet headers into message metadata.
func ToMessage(headers []bus.Header) message.Metadata {
	return message.Metadata(FromHeaders(headers))
}

// FromMessage rebuilds packet headers from message metadata, skipping keys
// reserved by Watermill.
func FromMessage(md message.Metadata) []bus.Header {
	m := make(Metadata, len(md))
	for k, v := range md {
		if strings.HasPrefix(k, reservedPrefix) {
			continue
		}
		m[k] = v
	}
	return m.Headers()
}
