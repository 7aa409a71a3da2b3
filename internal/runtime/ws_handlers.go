package runtime

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/drblury/protogate/internal/runtime/discovery"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	loggingpkg "github.com/drblury/protogate/internal/runtime/logging"
	"github.com/drblury/protogate/internal/runtime/request"
	"github.com/drblury/protogate/internal/runtime/stream"
)

// session serves one websocket after its first frame, the handshake, was read.
type session func(ctx context.Context, route string, conn *websocket.Conn, handshake []byte) error

// wsRoute upgrades the request and hands the handshake to serve. Sessions
// end with the gateway.
func (g *Gateway) wsRoute(route string, serve session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.Logger.Debug("Websocket upgrade failed", loggingpkg.LogFields{"route": route, "error": err.Error()})
			return
		}
		conn.SetReadLimit(maxBodyBytes)

		if !g.admit() {
			_ = stream.CloseWith(conn, stream.CloseGoingAway, "")
			_ = conn.Close()
			return
		}
		defer g.sessions.Done()

		g.metrics.sessionOpened(route)
		defer g.metrics.sessionClosed(route)

		ctx, cancel := context.WithCancel(g.base)
		defer cancel()

		log := g.Logger.With(loggingpkg.LogFields{"route": route, "remote": r.RemoteAddr})

		kind, handshake, err := g.readHandshake(ctx, conn)
		if err != nil {
			log.Debug("Websocket closed before handshake", loggingpkg.LogFields{"error": err.Error()})
			_ = conn.Close()
			return
		}
		if kind != websocket.TextMessage {
			g.reject(route, conn, errspkg.UnexpectedFrame())
			return
		}

		if err := serve(ctx, route, conn, handshake); err != nil {
			log.Debug("Websocket session ended", loggingpkg.LogFields{"error": err.Error()})
		}
	}
}

// readHandshake reads the first frame, giving up when the gateway closes.
func (g *Gateway) readHandshake(ctx context.Context, conn *websocket.Conn) (int, []byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = stream.CloseWith(conn, stream.CloseGoingAway, "")
		_ = conn.Close()
	})
	defer stop()
	return conn.ReadMessage()
}

// reject closes a socket whose handshake or frame failed validation.
func (g *Gateway) reject(route string, conn *websocket.Conn, err error) {
	g.metrics.rejectedTotal.WithLabelValues(route).Inc()
	_ = stream.CloseWith(conn, stream.CloseInvalidRequest, err.Error())
	_ = conn.Close()
}

func (g *Gateway) pump(route string, conn *websocket.Conn, scheduler request.Scheduler) *stream.Pump {
	frames := g.metrics.framesTotal.WithLabelValues(route)
	acks := g.metrics.acksTotal.WithLabelValues(route)
	return stream.NewPump(conn, scheduler, g.Logger.With(loggingpkg.LogFields{"route": route})).
		WithHooks(stream.Hooks{Sent: frames.Inc, Acked: acks.Inc})
}

func (g *Gateway) serveSub(ctx context.Context, route string, conn *websocket.Conn, handshake []byte) error {
	cmd, err := g.validator.Subscribe(handshake)
	if err != nil {
		g.reject(route, conn, err)
		return err
	}
	start := stream.Tail(g.bus, cmd.Topic.Path(), cmd.Read, cmd.ResponseEncoding, nil)
	return g.pump(route, conn, cmd.Scheduler).Run(ctx, start)
}

func (g *Gateway) serveRead(ctx context.Context, route string, conn *websocket.Conn, handshake []byte) error {
	cmd, err := g.validator.Read(handshake)
	if err != nil {
		g.reject(route, conn, err)
		return err
	}
	start := stream.Tail(g.bus, cmd.Path, cmd.Read, cmd.ResponseEncoding, nil)
	return g.pump(route, conn, cmd.Scheduler).Run(ctx, start)
}

func (g *Gateway) serveLog(ctx context.Context, route string, conn *websocket.Conn, handshake []byte) error {
	cmd, err := g.validator.Log(handshake)
	if err != nil {
		g.reject(route, conn, err)
		return err
	}
	start := stream.Tail(g.bus, cmd.Topic.Path(), cmd.Read, cmd.ResponseEncoding, stream.AtLeast(cmd.Level))
	return g.pump(route, conn, cmd.Scheduler).Run(ctx, start)
}

func (g *Gateway) servePRPC(ctx context.Context, route string, conn *websocket.Conn, handshake []byte) error {
	cmd, err := g.validator.PRPC(handshake)
	if err != nil {
		g.reject(route, conn, err)
		return err
	}
	return stream.PRPC(ctx, g.pump(route, conn, cmd.Scheduler), g.bus, cmd, g.Logger, g.metrics.cancelsTotal.Inc)
}

func (g *Gateway) serveDiscover(ctx context.Context, route string, conn *websocket.Conn, handshake []byte) error {
	cmd, err := g.validator.Discover(handshake)
	if err != nil {
		g.reject(route, conn, err)
		return err
	}
	m, err := discovery.NewMatcher(g.bus.Root(), cmd.Protocol, cmd.Pattern)
	if err != nil {
		g.reject(route, conn, err)
		return err
	}
	return g.pump(route, conn, cmd.Scheduler).Run(ctx, discovery.Source(g.bus, m))
}

// servePubStream publishes every frame after the handshake to the handshake
// topic. Nothing is written back until the socket closes.
func (g *Gateway) servePubStream(ctx context.Context, route string, conn *websocket.Conn, handshake []byte) error {
	hs, err := g.validator.PubHandshake(handshake)
	if err != nil {
		g.reject(route, conn, err)
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = stream.CloseWith(conn, stream.CloseGoingAway, "")
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if kind != websocket.TextMessage {
			g.reject(route, conn, errspkg.UnexpectedFrame())
			return errspkg.UnexpectedFrame()
		}

		cmd, err := g.validator.PubFrame(hs, data)
		if err != nil {
			g.reject(route, conn, err)
			return err
		}
		if err := g.bus.Publish(ctx, cmd.Topic, cmd.Packet); err != nil {
			_ = stream.CloseWith(conn, stream.CloseInternal, err.Error())
			return err
		}
	}
}
