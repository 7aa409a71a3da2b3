package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/protogate/bus"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	"github.com/drblury/protogate/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/protogate/internal/runtime/logging"
	"github.com/drblury/protogate/internal/runtime/stream"
)

const successBody = "success"

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps a one-shot handler with a span and request metrics.
func (g *Gateway) instrument(route string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), "gateway."+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.route", r.URL.Path)),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		fn(rec, r.WithContext(ctx))

		g.metrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		g.metrics.requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		if rec.status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

func (g *Gateway) handleLs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeText(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		return
	}

	names, err := g.bus.List(r.Context())
	if err != nil {
		g.fail(w, "ls", err)
		return
	}

	out := make([]bus.Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, bus.Describe(name))
	}
	writeJSON(w, out)
}

func (g *Gateway) handlePub(w http.ResponseWriter, r *http.Request) {
	body, ok := g.body(w, r)
	if !ok {
		return
	}
	cmd, err := g.validator.Publish(body)
	if err != nil {
		g.fail(w, "pub", err)
		return
	}
	if err := g.bus.Publish(r.Context(), cmd.Topic, cmd.Packet); err != nil {
		g.fail(w, "pub", err)
		return
	}
	writeText(w, http.StatusOK, successBody)
}

func (g *Gateway) handleWrite(w http.ResponseWriter, r *http.Request) {
	body, ok := g.body(w, r)
	if !ok {
		return
	}
	cmd, err := g.validator.Write(body)
	if err != nil {
		g.fail(w, "write", err)
		return
	}
	if err := g.bus.Write(r.Context(), cmd.Path, cmd.Packet, cmd.StandardHeaders); err != nil {
		g.fail(w, "write", err)
		return
	}
	writeText(w, http.StatusOK, successBody)
}

func (g *Gateway) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, ok := g.body(w, r)
	if !ok {
		return
	}
	cmd, err := g.validator.RPC(body)
	if err != nil {
		g.fail(w, "rpc", err)
		return
	}

	ctx, cancel := g.requestContext(r.Context())
	defer cancel()

	resp, err := g.bus.Call(ctx, cmd.Topic, cmd.Packet)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeText(w, http.StatusGatewayTimeout, err.Error())
			return
		}
		g.fail(w, "rpc", err)
		return
	}

	frame, err := stream.NewPacketFrame(resp, cmd.ResponseEncoding)
	if err != nil {
		g.fail(w, "rpc", err)
		return
	}
	writeJSON(w, frame)
}

// requestContext bounds a bus call by the configured rpc timeout and by
// gateway shutdown.
func (g *Gateway) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if g.Conf.RPCTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, g.Conf.RPCTimeout)
		inner := cancel
		cancel = func() {
			cancelTimeout()
			inner()
		}
	}
	stop := context.AfterFunc(g.base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (g *Gateway) body(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, err.Error())
			return nil, false
		}
		writeText(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return nil, false
	}
	return body, true
}

// fail answers with 400 and the literal message for request errors and with
// 500 for everything else.
func (g *Gateway) fail(w http.ResponseWriter, route string, err error) {
	var reqErr *errspkg.RequestError
	if errors.As(err, &reqErr) {
		writeText(w, http.StatusBadRequest, reqErr.Error())
		return
	}
	g.Logger.Error("Request failed", err, loggingpkg.LogFields{"route": route})
	writeText(w, http.StatusInternalServerError, err.Error())
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
