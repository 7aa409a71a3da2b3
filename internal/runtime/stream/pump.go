// Package stream binds one websocket to one bus-side producer.
//
// The producer runs on the bus reader goroutine and hands frames to the session
// through an unbuffered channel. The session goroutine is the only writer of
// data frames, and a separate goroutine reads client frames so acks and
// disconnects are seen while the session waits on the bus.
package stream

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/drblury/protogate/bus"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	"github.com/drblury/protogate/internal/runtime/logging"
	"github.com/drblury/protogate/internal/runtime/request"
)

// Frame is one data frame ready for the socket. Final ends the session with a
// normal close once written.
type Frame struct {
	Data  []byte
	Final bool
}

// Emit hands a frame to the session. It blocks until the session takes the
// frame or ctx ends.
type Emit func(ctx context.Context, f Frame) error

// Start opens the bus-side producer of a session. ctx ends with the session.
type Start func(ctx context.Context, emit Emit) (bus.Subscription, error)

// Hooks observe a session. Nil fields are skipped.
type Hooks struct {
	Sent  func()
	Acked func()
}

// Pump drives one websocket session after its handshake was accepted.
type Pump struct {
	conn      Conn
	scheduler request.Scheduler
	logger    logging.ServiceLogger
	hooks     Hooks
	abort     func()
}

// NewPump builds a pump writing to conn with the given pacing.
func NewPump(conn Conn, scheduler request.Scheduler, logger logging.ServiceLogger) *Pump {
	return &Pump{conn: conn, scheduler: scheduler, logger: logger}
}

// WithHooks installs observers.
func (p *Pump) WithHooks(h Hooks) *Pump {
	p.hooks = h
	return p
}

// OnAbort registers fn to run when the session ends before a final frame was
// written.
func (p *Pump) OnAbort(fn func()) *Pump {
	p.abort = fn
	return p
}

// inbound is the state of the client side of the socket.
type inbound struct {
	acks chan struct{}
	done chan struct{}
	// err is set before done is closed when the client broke the protocol.
	err error
}

// Run opens the producer and pumps frames until the client leaves, the
// producer stops, a final frame is written or ctx ends. The connection is
// closed when Run returns.
func (p *Pump) Run(ctx context.Context, start Start) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan Frame)
	emit := func(subCtx context.Context, f Frame) error {
		select {
		case frames <- f:
			return nil
		case <-subCtx.Done():
			return subCtx.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	in := p.listen()
	defer func() {
		_ = p.conn.Close()
		<-in.done
	}()

	sub, err := start(ctx, emit)
	if err != nil {
		p.closeWith(CloseInternal, err.Error())
		return err
	}

	final, err := p.pump(ctx, sub, frames, in)
	_ = sub.Close()
	if !final && p.abort != nil {
		p.abort()
	}
	return err
}

func (p *Pump) pump(ctx context.Context, sub bus.Subscription, frames <-chan Frame, in *inbound) (bool, error) {
	ready := true
	for {
		if !ready {
			select {
			case <-in.acks:
				ready = true
				p.hook(p.hooks.Acked)
				continue
			case <-in.done:
				return false, p.clientGone(in)
			case <-sub.Done():
				return false, p.producerDone(sub)
			case <-ctx.Done():
				p.closeWith(CloseGoingAway, "")
				return false, nil
			}
		}

		select {
		case f := <-frames:
			if err := p.conn.WriteMessage(websocket.TextMessage, f.Data); err != nil {
				return false, fmt.Errorf("write frame: %w", err)
			}
			p.hook(p.hooks.Sent)
			if f.Final {
				p.closeWith(CloseNormal, "")
				return true, nil
			}
			if p.scheduler == request.OnAck {
				ready = false
			}
		case <-in.done:
			return false, p.clientGone(in)
		case <-sub.Done():
			return false, p.producerDone(sub)
		case <-ctx.Done():
			p.closeWith(CloseGoingAway, "")
			return false, nil
		}
	}
}

// listen reads client frames until the socket fails or the client breaks the
// protocol. Under ON_ACK every text frame is an ack and acks coalesce into at
// most one pending ack; otherwise any further text frame is a repeated
// handshake.
func (p *Pump) listen() *inbound {
	in := &inbound{acks: make(chan struct{}, 1), done: make(chan struct{})}
	go func() {
		defer close(in.done)
		for {
			kind, _, err := p.conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage {
				in.err = errspkg.UnexpectedFrame()
				return
			}
			if p.scheduler != request.OnAck {
				in.err = errspkg.HandshakeRepeated()
				return
			}
			select {
			case in.acks <- struct{}{}:
			default:
			}
		}
	}()
	return in
}

func (p *Pump) clientGone(in *inbound) error {
	if in.err != nil {
		p.closeWith(CloseInvalidRequest, in.err.Error())
		return in.err
	}
	return nil
}

func (p *Pump) producerDone(sub bus.Subscription) error {
	if err := sub.Err(); err != nil {
		p.closeWith(CloseInternal, err.Error())
		return err
	}
	p.closeWith(CloseGoingAway, "")
	return nil
}

func (p *Pump) closeWith(code int, reason string) {
	if err := CloseWith(p.conn, code, reason); err != nil {
		p.logger.Debug("Failed to close websocket", logging.LogFields{"code": code, "error": err.Error()})
	}
}

func (p *Pump) hook(fn func()) {
	if fn != nil {
		fn()
	}
}
