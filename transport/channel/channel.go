// Package channel bridges through an in-process Go channel pub/sub. It needs no
// broker, which makes it the transport of choice for tests and for wiring two
// pipes of the same process together.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/protogate/transport"
)

const TransportName = "channel"

// outputBuffer lets a publisher run ahead of a slow bridge pipe.
const outputBuffer = 64

// Factory creates the pub/sub. Tests replace it to share one instance.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

// Register adds the channel transport to r.
func Register(r *transport.Registry) {
	r.Register(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a fresh in-process pub/sub. Publisher and subscriber share it.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{OutputChannelBuffer: outputBuffer}, logger)
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}
