package stream

import (
	"context"

	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/codec"
)

// Filter decides whether a packet is sent to the client.
type Filter func(bus.Packet) bool

// Tail returns a producer streaming the packets of path as data frames.
// filter may be nil.
func Tail(reader bus.Reader, path string, opts bus.ReadOptions, enc codec.Encoding, filter Filter) Start {
	return func(ctx context.Context, emit Emit) (bus.Subscription, error) {
		return reader.Subscribe(ctx, path, opts, func(ctx context.Context, pkt bus.Packet) error {
			if filter != nil && !filter(pkt) {
				return nil
			}
			data, err := EncodePacket(pkt, enc)
			if err != nil {
				return err
			}
			return emit(ctx, Frame{Data: data})
		})
	}
}

// AtLeast keeps log packets at or above the given severity. Packets without a
// recognised log_level header are kept.
func AtLeast(level bus.LogLevel) Filter {
	return func(pkt bus.Packet) bool {
		v, ok := pkt.Get(bus.HeaderLogLevel)
		if !ok {
			return true
		}
		got, ok := bus.ParseLogLevel(v)
		if !ok {
			return true
		}
		return got <= level
	}
}
