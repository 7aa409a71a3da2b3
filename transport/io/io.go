// Package io bridges through an append-only file of JSON lines. Every line
// holds one message and the topic it was published to, so one file can carry
// many topics and a source pipe can replay everything a sink pipe wrote.
package io

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/protogate/internal/runtime/jsoncodec"
	"github.com/drblury/protogate/transport"
)

const TransportName = "io"

// DefaultFilePath is used when the pipe sets no io_file.
const DefaultFilePath = "protogate-bridge.jsonl"

// PollInterval is how long a subscriber waits at the end of the file before
// looking for new lines.
var PollInterval = 50 * time.Millisecond

var errClosed = errors.New("io transport closed")

// Register adds the file transport to r.
func Register(r *transport.Registry) {
	r.Register(TransportName, Build, transport.IOCapabilities)
}

// Build opens a publisher and a subscriber on the same file.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	path := cfg.GetIOFile()
	if path == "" {
		path = DefaultFilePath
	}
	return transport.Transport{
		Publisher:  NewPublisher(path),
		Subscriber: NewSubscriber(path, logger),
	}, nil
}

// line is one stored message.
type line struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends messages to the file.
type Publisher struct {
	path   string
	mu     sync.Mutex
	closed bool
}

func NewPublisher(path string) *Publisher {
	return &Publisher{path: path}
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}

	var buf bytes.Buffer
	for _, msg := range messages {
		data, err := jsoncodec.Marshal(line{UUID: msg.UUID, Topic: topic, Metadata: msg.Metadata, Payload: msg.Payload})
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Subscriber tails the file from its beginning for every subscription.
type Subscriber struct {
	path   string
	logger watermill.LoggerAdapter

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSubscriber(path string, logger watermill.LoggerAdapter) *Subscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Subscriber{path: path, logger: logger, closing: make(chan struct{})}
}

// Subscribe delivers the messages of topic one at a time; the next one is read
// after the previous was acked. A nacked message is delivered again.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, errClosed
	default:
	}

	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer f.Close()
		s.tail(ctx, f, topic, out)
	}()
	return out, nil
}

func (s *Subscriber) tail(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	logger := s.logger.With(watermill.LogFields{"topic": topic, "file": s.path})
	reader := bufio.NewReader(f)
	var partial []byte

	for {
		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		if errors.Is(err, io.EOF) {
			if !s.sleep(ctx) {
				return
			}
			continue
		}
		if err != nil {
			logger.Error("Failed to read bridge file", err, nil)
			return
		}

		raw := bytes.TrimSpace(partial)
		partial = nil
		if len(raw) == 0 {
			continue
		}

		var l line
		if err := jsoncodec.Unmarshal(raw, &l); err != nil {
			logger.Error("Skipping malformed bridge line", err, nil)
			continue
		}
		if l.Topic != topic {
			continue
		}
		if !s.deliver(ctx, l, out, logger) {
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, l line, out chan<- *message.Message, logger watermill.LoggerAdapter) bool {
	for {
		msg := message.NewMessage(l.UUID, l.Payload)
		for k, v := range l.Metadata {
			msg.Metadata.Set(k, v)
		}
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		}

		select {
		case <-msg.Acked():
			return true
		case <-msg.Nacked():
			logger.Debug("Redelivering nacked message", watermill.LogFields{"uuid": l.UUID})
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		}
	}
}

func (s *Subscriber) sleep(ctx context.Context) bool {
	timer := time.NewTimer(PollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}
}

// Close stops every subscription and waits for them to exit.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.wg.Wait()
	return nil
}
