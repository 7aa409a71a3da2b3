// Package bus defines the message bus capabilities the gateway consumes and the
// packet model shared by every bus implementation.
//
// A bus exposes three protocols over named topics: pub/sub logs, single
// request/response calls (RPC), and streaming calls (PRPC) that answer one request
// with several progress packets followed by exactly one terminal packet. The
// gateway never depends on a concrete implementation; bus/local provides the
// file-backed reference used by the protogate binary and the tests.
package bus

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by operations on a bus that has been closed.
	ErrClosed = errors.New("bus: closed")
	// ErrInvalidPath is returned when a path escapes the bus root or is malformed.
	ErrInvalidPath = errors.New("bus: invalid path")
	// ErrUnknownCall is returned when a cancel targets a request id the bus does not know.
	ErrUnknownCall = errors.New("bus: unknown call")
)

// Handler receives packets from a subscription. It runs on the subscription's
// reader goroutine; returning an error ends the subscription with that error.
// Blocking inside the handler blocks the reader, which is how consumers apply
// backpressure.
type Handler func(ctx context.Context, pkt Packet) error

// StreamHandler receives the responses of a PRPC call. done is true exactly once,
// on the last invocation.
type StreamHandler func(ctx context.Context, pkt Packet, done bool) error

// WatchHandler receives bus file paths relative to the bus root.
type WatchHandler func(ctx context.Context, relpath string) error

// Subscription is a live bus-side resource owned by its caller.
type Subscription interface {
	// Done is closed once the subscription stopped delivering.
	Done() <-chan struct{}
	// Err reports why the subscription stopped. It is nil after Close or a
	// cancelled context.
	Err() error
	// Close releases the subscription and waits for the reader to exit.
	Close() error
}

// StreamCall is an outstanding PRPC call.
type StreamCall interface {
	Subscription
	// ID returns the request id used to address the call, for example when
	// cancelling it.
	ID() string
}

// Publisher appends packets to topics and raw bus paths.
type Publisher interface {
	// Publish appends pkt to the pub/sub topic, attaching the standard headers.
	Publish(ctx context.Context, topic Topic, pkt Packet) error
	// Write appends pkt to the raw bus path. Standard headers are only attached
	// when standardHeaders is true.
	Write(ctx context.Context, path string, pkt Packet, standardHeaders bool) error
}

// Reader opens subscriptions on raw bus paths.
type Reader interface {
	Subscribe(ctx context.Context, path string, opts ReadOptions, fn Handler) (Subscription, error)
}

// Caller issues RPC and PRPC calls.
type Caller interface {
	// Call sends a request and waits for its single response.
	Call(ctx context.Context, topic Topic, pkt Packet) (Packet, error)
	// Stream sends a PRPC request and delivers every response to fn.
	Stream(ctx context.Context, topic Topic, pkt Packet, fn StreamHandler) (StreamCall, error)
	// Cancel notifies the PRPC server that the caller abandoned request id.
	Cancel(ctx context.Context, topic Topic, id string) error
}

// Directory enumerates the bus namespace.
type Directory interface {
	// Root returns the absolute location of the bus namespace.
	Root() string
	// List returns every bus file relative to the root, sorted.
	List(ctx context.Context) ([]string, error)
	// Watch reports every existing bus file and then every newly created one.
	Watch(ctx context.Context, fn WatchHandler) (Subscription, error)
}

// Bus is the full capability set the gateway talks to.
type Bus interface {
	Publisher
	Reader
	Caller
	Directory
}
