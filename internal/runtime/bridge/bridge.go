// Package bridge relays packets between bus pubsub topics and external
// brokers. A source pipe republishes broker messages on the bus; a sink pipe
// publishes every new bus packet to the broker.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/protogate/bus"
	configpkg "github.com/drblury/protogate/internal/runtime/config"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	loggingpkg "github.com/drblury/protogate/internal/runtime/logging"
	"github.com/drblury/protogate/internal/runtime/topic"
	"github.com/drblury/protogate/transport"
)

const (
	routerCloseTimeout = 10 * time.Second

	retryAttempts = 3
	retryInterval = 100 * time.Millisecond
)

// Dependencies holds the optional collaborators of a Bridge.
type Dependencies struct {
	// Registry resolves transport names. Nil uses transport.DefaultRegistry.
	Registry *transport.Registry
	// Registerer receives the relay metrics. Nil uses the Prometheus default.
	Registerer prometheus.Registerer
}

// Bridge runs the configured pipes.
type Bridge struct {
	bus      bus.Bus
	pipes    []pipe
	logger   loggingpkg.ServiceLogger
	registry *transport.Registry
	metrics  *Metrics
	tracer   trace.Tracer

	running chan struct{}
	started atomic.Bool
}

type pipe struct {
	conf  configpkg.BridgeConfig
	topic bus.Topic
}

// New validates the pipes of conf against b. Transports are connected by Run.
func New(conf *configpkg.Config, b bus.Bus, log loggingpkg.ServiceLogger, deps Dependencies) (*Bridge, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if b == nil {
		return nil, errspkg.ErrBusRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	resolver := topic.NewResolver(conf.DefaultContainer)
	pipes := make([]pipe, 0, len(conf.Bridges))
	for _, bc := range conf.Bridges {
		if bc.Name == "" {
			return nil, errspkg.ErrPipeNameRequired
		}
		if bc.Direction != configpkg.DirectionSource && bc.Direction != configpkg.DirectionSink {
			return nil, fmt.Errorf("bridge %s: %w: %q", bc.Name, errspkg.ErrPipeDirectionInvalid, bc.Direction)
		}
		var container *string
		if bc.Container != "" {
			container = &bc.Container
		}
		t, err := resolver.Resolve(bus.ProtocolPubSub, container, bc.Topic)
		if err != nil {
			return nil, fmt.Errorf("bridge %s: %w", bc.Name, err)
		}
		pipes = append(pipes, pipe{conf: bc, topic: t})
	}

	registry := deps.Registry
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	metrics := NewMetrics(deps.Registerer)
	if err := metrics.Register(); err != nil {
		return nil, fmt.Errorf("register bridge metrics: %w", err)
	}

	return &Bridge{
		bus:      b,
		pipes:    pipes,
		logger:   log.With(loggingpkg.LogFields{"component": "bridge"}),
		registry: registry,
		metrics:  metrics,
		tracer:   otel.Tracer("protogate-bridge"),
		running:  make(chan struct{}),
	}, nil
}

// Running is closed once every pipe is connected and consuming.
func (br *Bridge) Running() <-chan struct{} {
	return br.running
}

// Run connects every pipe and relays until ctx ends or a pipe fails. It
// closes the transports before returning. A bridge runs at most once.
func (br *Bridge) Run(ctx context.Context) (err error) {
	if !br.started.CompareAndSwap(false, true) {
		return errspkg.ErrBridgeStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		transports []transport.Transport
		subs       []bus.Subscription
		router     *message.Router
	)
	defer func() {
		for _, sub := range subs {
			_ = sub.Close()
		}
		for _, t := range transports {
			if closeErr := t.Close(); closeErr != nil {
				br.logger.Error("Failed to close bridge transport", closeErr, nil)
			}
		}
	}()

	wmLogger := loggingpkg.NewWatermillAdapter(br.logger)
	for _, p := range br.pipes {
		t, buildErr := br.registry.Build(ctx, &p.conf.Transport, wmLogger.With(watermill.LogFields{"pipe": p.conf.Name}))
		if buildErr != nil {
			return fmt.Errorf("bridge %s: %w", p.conf.Name, buildErr)
		}
		transports = append(transports, t)

		switch p.conf.Direction {
		case configpkg.DirectionSource:
			if router == nil {
				if router, err = br.newRouter(wmLogger); err != nil {
					return err
				}
			}
			router.AddNoPublisherHandler(p.conf.Name, p.conf.ExternalTopic(), t.Subscriber, br.source(p))
		case configpkg.DirectionSink:
			caps := br.registry.Capabilities(p.conf.Transport.PubSubSystem)
			sub, subErr := br.bus.Subscribe(ctx, p.topic.Path(), bus.ReadOptions{Init: bus.InitAwaitNew}, br.sink(p, t.Publisher, caps))
			if subErr != nil {
				return fmt.Errorf("bridge %s: subscribe %s: %w", p.conf.Name, p.topic, subErr)
			}
			subs = append(subs, sub)
		}
		br.logger.Info("Bridge pipe connected", loggingpkg.LogFields{
			"pipe":      p.conf.Name,
			"direction": p.conf.Direction,
			"topic":     p.topic.Path(),
			"external":  p.conf.ExternalTopic(),
			"system":    p.conf.Transport.PubSubSystem,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	if router != nil {
		g.Go(func() error {
			return router.Run(gctx)
		})
		g.Go(func() error {
			select {
			case <-router.Running():
				close(br.running)
			case <-gctx.Done():
			}
			return nil
		})
	} else {
		close(br.running)
	}
	for _, sub := range subs {
		g.Go(func() error {
			select {
			case <-sub.Done():
				if subErr := sub.Err(); subErr != nil && gctx.Err() == nil {
					return fmt.Errorf("bridge sink stopped: %w", subErr)
				}
				return nil
			case <-gctx.Done():
				return nil
			}
		})
	}
	// Run lasts until ctx ends even when every pipe stops cleanly.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (br *Bridge) newRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: routerCloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create bridge router: %w", err)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      retryAttempts,
			InitialInterval: retryInterval,
			Logger:          logger,
		}.Middleware,
	)
	return router, nil
}

// source republishes broker messages on the pipe's bus topic.
func (br *Bridge) source(p pipe) message.NoPublishHandlerFunc {
	log := br.logger.With(loggingpkg.LogFields{"pipe": p.conf.Name})
	relayed := br.metrics.relayedTotal.WithLabelValues(p.conf.Name, configpkg.DirectionSource)
	failed := br.metrics.failedTotal.WithLabelValues(p.conf.Name, configpkg.DirectionSource)
	malformed := br.metrics.droppedTotal.WithLabelValues(p.conf.Name, dropMalformed)

	return func(msg *message.Message) error {
		ctx, span := br.startSpan(msg.Context(), p)
		defer span.End()
		span.SetAttributes(attribute.String("message.uuid", msg.UUID))

		pkt, err := toPacket(msg, p.conf.Envelope)
		if err != nil {
			malformed.Inc()
			log.Error("Dropping malformed message", err, loggingpkg.LogFields{"uuid": msg.UUID})
			return nil
		}
		if err := br.bus.Publish(ctx, p.topic, pkt); err != nil {
			failed.Inc()
			recordError(span, err)
			return fmt.Errorf("publish to %s: %w", p.topic, err)
		}
		relayed.Inc()
		return nil
	}
}

// sink publishes bus packets to the pipe's broker topic. Broker failures are
// logged and counted; the packet is not retried.
func (br *Bridge) sink(p pipe, pub message.Publisher, caps transport.Capabilities) bus.Handler {
	log := br.logger.With(loggingpkg.LogFields{"pipe": p.conf.Name})
	relayed := br.metrics.relayedTotal.WithLabelValues(p.conf.Name, configpkg.DirectionSink)
	failed := br.metrics.failedTotal.WithLabelValues(p.conf.Name, configpkg.DirectionSink)
	oversize := br.metrics.droppedTotal.WithLabelValues(p.conf.Name, dropOversize)
	external := p.conf.ExternalTopic()

	return func(ctx context.Context, pkt bus.Packet) error {
		ctx, span := br.startSpan(ctx, p)
		defer span.End()

		msg := toMessage(pkt, p.conf.Envelope)
		span.SetAttributes(attribute.String("message.uuid", msg.UUID))
		if !caps.Fits(len(msg.Payload)) {
			oversize.Inc()
			log.Info("Dropping packet larger than the broker accepts", loggingpkg.LogFields{
				"size":  len(msg.Payload),
				"limit": caps.MaxMessageSize,
			})
			return nil
		}

		msg.SetContext(ctx)
		if err := pub.Publish(external, msg); err != nil {
			failed.Inc()
			recordError(span, err)
			log.Error("Failed to relay packet", err, loggingpkg.LogFields{"uuid": msg.UUID})
			return nil
		}
		relayed.Inc()
		return nil
	}
}

func (br *Bridge) startSpan(ctx context.Context, p pipe) (context.Context, trace.Span) {
	kind := trace.SpanKindConsumer
	if p.conf.Direction == configpkg.DirectionSink {
		kind = trace.SpanKindProducer
	}
	return br.tracer.Start(ctx, "bridge."+p.conf.Direction,
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String("bridge.pipe", p.conf.Name),
			attribute.String("bridge.topic", p.topic.Path()),
			attribute.String("bridge.external", p.conf.ExternalTopic()),
		),
	)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
