// Package nats bridges over NATS core subjects.
package nats

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/protogate/transport"
)

const TransportName = "nats"

// DefaultClientName identifies gateway connections on the NATS server when the
// pipe does not name them.
const DefaultClientName = "protogate"

var PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

var SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmnats.NewSubscriber(cfg, logger)
}

// Register adds the NATS transport to r.
func Register(r *transport.Registry) {
	r.Register(TransportName, Build, transport.NATSCapabilities)
}

// Build connects a publisher and a subscriber to the configured server.
// JetStream is left off: bridged topics are plain subjects.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	options := connectOptions(cfg)
	marshaler := &wmnats.NATSMarshaler{}
	noJetStream := wmnats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(wmnats.PublisherConfig{
		URL:         url,
		NatsOptions: options,
		Marshaler:   marshaler,
		JetStream:   noJetStream,
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(wmnats.SubscriberConfig{
		URL:         url,
		NatsOptions: options,
		Unmarshaler: marshaler,
		JetStream:   noJetStream,
	}, logger)
	if err != nil {
		return transport.Transport{}, errors.Join(err, publisher.Close())
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func connectOptions(cfg transport.Config) []nc.Option {
	name := cfg.GetNATSClientName()
	if name == "" {
		name = DefaultClientName
	}
	return []nc.Option{
		nc.Name(name),
		nc.MaxReconnects(-1),
	}
}
