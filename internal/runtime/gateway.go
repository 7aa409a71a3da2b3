package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/protogate/bus"
	configpkg "github.com/drblury/protogate/internal/runtime/config"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	loggingpkg "github.com/drblury/protogate/internal/runtime/logging"
	"github.com/drblury/protogate/internal/runtime/request"
	"github.com/drblury/protogate/internal/runtime/topic"
)

const (
	maxBodyBytes      = 16 << 20
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Gateway serves the bus to web clients over HTTP and websockets.
type Gateway struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	bus       bus.Bus
	validator *request.Validator
	metrics   *Metrics
	registry  *prometheus.Registry
	tracer    trace.Tracer
	upgrader  websocket.Upgrader

	// base parents every session; cancelling it ends hijacked connections,
	// which http.Server.Shutdown does not track.
	mu       sync.Mutex
	base     context.Context
	stop     context.CancelFunc
	sessions sync.WaitGroup
	started  atomic.Bool
}

// NewGateway builds a gateway over b. Routes are ready as soon as it returns;
// call Run or Serve to listen, or mount Handler elsewhere.
func NewGateway(conf *configpkg.Config, b bus.Bus, log loggingpkg.ServiceLogger) (*Gateway, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if b == nil {
		return nil, errspkg.ErrBusRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	if err := metrics.Register(); err != nil {
		return nil, fmt.Errorf("register gateway metrics: %w", err)
	}

	base, stop := context.WithCancel(context.Background())
	g := &Gateway{
		Conf:      conf,
		Logger:    log.With(loggingpkg.LogFields{"component": "gateway"}),
		bus:       b,
		validator: request.NewValidator(topic.NewResolver(conf.DefaultContainer)),
		metrics:   metrics,
		registry:  registry,
		tracer:    otel.Tracer("protogate-gateway"),
		base:      base,
		stop:      stop,
	}
	g.upgrader = websocket.Upgrader{CheckOrigin: g.checkOrigin}
	return g, nil
}

// Registry returns the registry the gateway metrics live in. Other components
// of the process register their collectors here so /metrics serves them too.
func (g *Gateway) Registry() *prometheus.Registry {
	return g.registry
}

// Handler returns the routes wrapped in CORS handling.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/ls", g.instrument("ls", g.handleLs))
	mux.Handle("POST /api/pub", g.instrument("pub", g.handlePub))
	mux.Handle("POST /api/write", g.instrument("write", g.handleWrite))
	mux.Handle("POST /api/rpc", g.instrument("rpc", g.handleRPC))

	mux.HandleFunc("/wsapi/sub", g.wsRoute("sub", g.serveSub))
	mux.HandleFunc("/wsapi/read", g.wsRoute("read", g.serveRead))
	mux.HandleFunc("/wsapi/log", g.wsRoute("log", g.serveLog))
	mux.HandleFunc("/wsapi/prpc", g.wsRoute("prpc", g.servePRPC))
	mux.HandleFunc("/wsapi/discover", g.wsRoute("discover", g.serveDiscover))
	mux.HandleFunc("/wsapi/pub", g.wsRoute("pub", g.servePubStream))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	if g.Conf.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	return g.cors(mux)
}

// Run listens on the configured address until ctx ends.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.Conf.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", g.Conf.Addr(), err)
	}
	return g.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then closes every session
// and shuts the server down. A gateway serves at most once.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	if !g.started.CompareAndSwap(false, true) {
		_ = ln.Close()
		return errspkg.ErrGatewayStarted
	}

	srv := &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	g.Logger.Info("Gateway listening", loggingpkg.LogFields{"addr": ln.Addr().String(), "root": g.bus.Root()})

	select {
	case err := <-errCh:
		g.closeSessions()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	g.Logger.Info("Gateway shutting down", nil)
	g.closeSessions()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown gateway: %w", err)
	}
	return nil
}

// Close ends every open websocket session and waits for them to finish.
func (g *Gateway) Close() error {
	g.closeSessions()
	return nil
}

func (g *Gateway) closeSessions() {
	g.mu.Lock()
	g.stop()
	g.mu.Unlock()
	g.sessions.Wait()
}

// admit registers a new session. It reports false once the gateway is closing.
func (g *Gateway) admit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.base.Err() != nil {
		return false
	}
	g.sessions.Add(1)
	return true
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || g.allowedOrigin(origin) != ""
}

// allowedOrigin returns the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not allowed.
func (g *Gateway) allowedOrigin(origin string) string {
	if origin == "" {
		return "*"
	}
	if len(g.Conf.CORSAllowedOrigins) == 0 {
		return origin
	}
	for _, allowed := range g.Conf.CORSAllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// cors lets browser pages on other origins call every route with credentials.
func (g *Gateway) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := g.allowedOrigin(r.Header.Get("Origin")); allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
				h.Set("Access-Control-Allow-Headers", requested)
			} else {
				h.Set("Access-Control-Allow-Headers", "*")
			}
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
