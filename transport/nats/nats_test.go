package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/protogate/internal/runtime/config"
	"github.com/drblury/protogate/transport"
)

type stubPublisher struct{ closed bool }

func (s *stubPublisher) Publish(string, ...*message.Message) error { return nil }
func (s *stubPublisher) Close() error {
	s.closed = true
	return nil
}

type stubSubscriber struct{}

func (stubSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (stubSubscriber) Close() error { return nil }

func withFactories(t *testing.T, pub func(wmnats.PublisherConfig) (message.Publisher, error), sub func(wmnats.SubscriberConfig) (message.Subscriber, error)) {
	t.Helper()
	origPub, origSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory, SubscriberFactory = origPub, origSub
	})
	PublisherFactory = func(cfg wmnats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		return pub(cfg)
	}
	SubscriberFactory = func(cfg wmnats.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		return sub(cfg)
	}
}

func clientName(t *testing.T, opts []nc.Option) string {
	t.Helper()
	var o nc.Options
	for _, opt := range opts {
		require.NoError(t, opt(&o))
	}
	return o.Name
}

func TestRegister(t *testing.T) {
	reg := transport.NewRegistry()
	Register(reg)
	assert.True(t, reg.Has(TransportName))
	assert.Equal(t, transport.NATSCapabilities, reg.Capabilities(TransportName))
}

func TestBuildPassesConnectionSettings(t *testing.T) {
	var pubCfg wmnats.PublisherConfig
	var subCfg wmnats.SubscriberConfig
	pub := &stubPublisher{}
	withFactories(t,
		func(cfg wmnats.PublisherConfig) (message.Publisher, error) { pubCfg = cfg; return pub, nil },
		func(cfg wmnats.SubscriberConfig) (message.Subscriber, error) { subCfg = cfg; return stubSubscriber{}, nil },
	)

	cfg := &configpkg.TransportConfig{PubSubSystem: TransportName, NATSURL: "nats://localhost:4222", NATSClientName: "edge-1"}
	tr, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)

	assert.Equal(t, "nats://localhost:4222", pubCfg.URL)
	assert.Equal(t, "nats://localhost:4222", subCfg.URL)
	assert.True(t, pubCfg.JetStream.Disabled)
	assert.True(t, subCfg.JetStream.Disabled)
	assert.Equal(t, "edge-1", clientName(t, pubCfg.NatsOptions))
	assert.Equal(t, "edge-1", clientName(t, subCfg.NatsOptions))
}

func TestBuildDefaultsClientName(t *testing.T) {
	var pubCfg wmnats.PublisherConfig
	withFactories(t,
		func(cfg wmnats.PublisherConfig) (message.Publisher, error) { pubCfg = cfg; return &stubPublisher{}, nil },
		func(wmnats.SubscriberConfig) (message.Subscriber, error) { return stubSubscriber{}, nil },
	)

	_, err := Build(context.Background(), &configpkg.TransportConfig{NATSURL: "nats://x"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, DefaultClientName, clientName(t, pubCfg.NatsOptions))
}

func TestBuildErrors(t *testing.T) {
	cfg := &configpkg.TransportConfig{NATSURL: "nats://x"}

	withFactories(t,
		func(wmnats.PublisherConfig) (message.Publisher, error) { return nil, errors.New("publisher error") },
		func(wmnats.SubscriberConfig) (message.Subscriber, error) { return stubSubscriber{}, nil },
	)
	_, err := Build(context.Background(), cfg, watermill.NopLogger{})
	assert.ErrorContains(t, err, "publisher error")

	pub := &stubPublisher{}
	withFactories(t,
		func(wmnats.PublisherConfig) (message.Publisher, error) { return pub, nil },
		func(wmnats.SubscriberConfig) (message.Subscriber, error) { return nil, errors.New("subscriber error") },
	)
	_, err = Build(context.Background(), cfg, watermill.NopLogger{})
	assert.ErrorContains(t, err, "subscriber error")
	assert.True(t, pub.closed)
}
