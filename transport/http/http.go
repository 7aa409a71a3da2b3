// Package http bridges over plain HTTP. Sink pipes POST every message to
// publisher_url followed by the topic; source pipes serve one route per topic
// on http_server_address.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/protogate/transport"
)

const TransportName = "http"

var PublisherFactory = func(cfg wmhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmhttp.NewPublisher(cfg, logger)
}

var SubscriberFactory = func(addr string, cfg wmhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmhttp.NewSubscriber(addr, cfg, logger)
}

// Register adds the HTTP transport to r.
func Register(r *transport.Registry) {
	r.Register(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates the publisher and the subscriber. The subscriber's server is
// started after its first Subscribe call, once the topic route exists.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	base := cfg.GetHTTPPublisherURL()

	publisher, err := PublisherFactory(wmhttp.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
			return wmhttp.DefaultMarshalMessageFunc(topicURL(base, topic), msg)
		},
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(cfg.GetHTTPServerAddress(), wmhttp.SubscriberConfig{
		UnmarshalMessageFunc: wmhttp.DefaultUnmarshalMessageFunc,
	}, logger)
	if err != nil {
		return transport.Transport{}, errors.Join(err, publisher.Close())
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: &lazySubscriber{Subscriber: subscriber, logger: logger},
	}, nil
}

func topicURL(base, topic string) string {
	if base == "" || strings.HasSuffix(base, "/") {
		return base + topic
	}
	return base + "/" + topic
}

// serverStarter is implemented by the watermill HTTP subscriber.
type serverStarter interface {
	StartHTTPServer() error
}

type lazySubscriber struct {
	message.Subscriber
	logger watermill.LoggerAdapter
	once   sync.Once
}

func (s *lazySubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	msgs, err := s.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	s.once.Do(func() {
		starter, ok := s.Subscriber.(serverStarter)
		if !ok {
			return
		}
		go func() {
			if err := starter.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				s.logger.Error("HTTP subscriber server stopped", err, nil)
			}
		}()
	})
	return msgs, nil
}
