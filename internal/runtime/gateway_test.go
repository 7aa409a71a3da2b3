package runtime

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/bus/local"
	configpkg "github.com/drblury/protogate/internal/runtime/config"
	"github.com/drblury/protogate/internal/runtime/discovery"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	"github.com/drblury/protogate/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/protogate/internal/runtime/logging"
	"github.com/drblury/protogate/internal/runtime/stream"
)

const gatewayWait = 3 * time.Second

type gatewayFixture struct {
	gw  *Gateway
	bus *local.Bus
	srv *httptest.Server
}

func newGatewayFixture(t *testing.T, mutate func(*configpkg.Config)) *gatewayFixture {
	t.Helper()

	conf := configpkg.Default()
	conf.Root = t.TempDir()
	conf.MetricsEnabled = true
	if mutate != nil {
		mutate(&conf)
	}

	b, err := local.New(local.Config{Root: conf.Root, PollInterval: 20 * time.Millisecond}, loggingpkg.Discard())
	require.NoError(t, err)

	gw, err := NewGateway(&conf, b, loggingpkg.Discard())
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		_ = gw.Close()
		srv.Close()
		_ = b.Close()
	})
	return &gatewayFixture{gw: gw, bus: b, srv: srv}
}

func (f *gatewayFixture) post(t *testing.T, path, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func (f *gatewayFixture) dial(t *testing.T, route, handshake string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + route
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	if handshake != "" {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(handshake)))
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) stream.PacketFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(gatewayWait)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	var f stream.PacketFrame
	require.NoError(t, jsoncodec.Unmarshal(data, &f))
	return f
}

func expectClose(t *testing.T, conn *websocket.Conn) (int, string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(gatewayWait)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
		return closeErr.Code, closeErr.Text
	}
}

func header(f stream.PacketFrame, key string) (string, bool) {
	for _, h := range f.Headers {
		if h[0] == key {
			return h[1], true
		}
	}
	return "", false
}

var aaaBbb = bus.Topic{Protocol: bus.ProtocolPubSub, Container: "aaa", Name: "bbb"}

func TestNewGatewayValidatesArguments(t *testing.T) {
	conf := configpkg.Default()
	b, err := local.New(local.Config{Root: t.TempDir()}, loggingpkg.Discard())
	require.NoError(t, err)
	defer b.Close()

	_, err = NewGateway(nil, b, loggingpkg.Discard())
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)
	_, err = NewGateway(&conf, nil, loggingpkg.Discard())
	assert.ErrorIs(t, err, errspkg.ErrBusRequired)
	_, err = NewGateway(&conf, b, nil)
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestHealthz(t *testing.T) {
	f := newGatewayFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestPubAndLs(t *testing.T) {
	f := newGatewayFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/api/ls")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "[]", string(body))

	code, body2 := f.post(t, "/api/pub", `{"container":"aaa","topic":"bbb","packet":{"payload":"hi"}}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body2)

	code, body2 = f.post(t, "/api/write", `{"path":"raw/notes","packet":{"payload":"x"}}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body2)

	echo := bus.Topic{Protocol: bus.ProtocolRPC, Container: "bbb", Name: "ddd"}
	sub, err := f.bus.ServeRPC(context.Background(), echo, func(_ context.Context, req bus.Packet) (bus.Packet, error) {
		return req, nil
	})
	require.NoError(t, err)
	defer sub.Close()
	code, body2 = f.post(t, "/api/rpc", `{"container":"bbb","topic":"ddd","packet":{"payload":"ping"}}`)
	require.Equal(t, http.StatusOK, code, body2)

	code, body2 = f.post(t, "/api/ls", "")
	require.Equal(t, http.StatusOK, code)
	var got []bus.Descriptor
	require.NoError(t, jsoncodec.Unmarshal([]byte(body2), &got))
	assert.Equal(t, []bus.Descriptor{
		{Filename: "aaa/bbb.pubsub.bus", Protocol: "pubsub", Container: "aaa", Topic: "bbb"},
		{Filename: "bbb/ddd.rpc.bus", Protocol: "rpc", Container: "bbb", Topic: "ddd"},
		{Filename: "raw/notes"},
	}, got)
}

func TestRequestErrorsAnswer400(t *testing.T) {
	f := newGatewayFixture(t, nil)

	tests := []struct {
		path string
		body string
		want string
	}{
		{"/api/pub", "not json", "Request must be json."},
		{"/api/pub", "[]", "Request must be a json object."},
		{"/api/pub", `{"topic":"bbb","packet":{"payload":"%%"},"request_encoding":"base64"}`, "Request field has incorrect format. field: packet.payload  error: Payload is not valid base64"},
		{"/api/write", `{"packet":{"payload":""}}`, "Request missing required field: path"},
		{"/api/rpc", `{"topic":"../x"}`, "Invalid topic name"},
	}
	for _, tt := range tests {
		code, body := f.post(t, tt.path, tt.body)
		assert.Equal(t, http.StatusBadRequest, code, tt.body)
		assert.True(t, strings.HasPrefix(body, tt.want), "%s: got %q", tt.body, body)
		assert.False(t, strings.HasSuffix(body, "\n"))
	}

	resp, err := http.Get(f.srv.URL + "/api/pub")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRPC(t *testing.T) {
	f := newGatewayFixture(t, nil)
	tp := bus.Topic{Protocol: bus.ProtocolRPC, Name: "upper"}
	sub, err := f.bus.ServeRPC(context.Background(), tp, func(_ context.Context, req bus.Packet) (bus.Packet, error) {
		if string(req.Payload) == "fail" {
			return bus.Packet{}, errors.New("refused")
		}
		return bus.NewPacket([]byte(strings.ToUpper(string(req.Payload))), "k", "v"), nil
	})
	require.NoError(t, err)
	defer sub.Close()

	code, body := f.post(t, "/api/rpc", `{"topic":"upper","packet":{"payload":"hello"},"response_encoding":"base64"}`)
	require.Equal(t, http.StatusOK, code, body)
	var frame stream.PacketFrame
	require.NoError(t, jsoncodec.Unmarshal([]byte(body), &frame))
	assert.Equal(t, "SEVMTE8=", frame.Payload)
	assert.Nil(t, frame.Done)
	v, ok := header(frame, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	code, body = f.post(t, "/api/rpc", `{"topic":"upper","packet":{"payload":"fail"}}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, jsoncodec.Unmarshal([]byte(body), &frame))
	v, _ = header(frame, local.HeaderRPCError)
	assert.Equal(t, "refused", v)
}

func TestRPCTimeout(t *testing.T) {
	f := newGatewayFixture(t, func(c *configpkg.Config) { c.RPCTimeout = 50 * time.Millisecond })

	code, _ := f.post(t, "/api/rpc", `{"topic":"nobody"}`)
	assert.Equal(t, http.StatusGatewayTimeout, code)
}

func TestCORS(t *testing.T) {
	f := newGatewayFixture(t, nil)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/pub", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "content-type", resp.Header.Get("Access-Control-Allow-Headers"))

	resp, err = http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowList(t *testing.T) {
	f := newGatewayFixture(t, func(c *configpkg.Config) { c.CORSAllowedOrigins = []string{"https://ok.example"} })

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/wsapi/sub"
	_, resp, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWSSubscribe(t *testing.T) {
	f := newGatewayFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.bus.Publish(ctx, aaaBbb, bus.NewPacket([]byte("one"))))

	conn := f.dial(t, "/wsapi/sub", `{"container":"aaa","topic":"bbb","scheduler":"ON_ACK"}`)
	first := readFrame(t, conn)
	assert.Equal(t, "one", first.Payload)
	seq, ok := header(first, bus.HeaderTransportSeq)
	assert.True(t, ok)
	assert.Equal(t, "0", seq)

	require.NoError(t, f.bus.Publish(ctx, aaaBbb, bus.NewPacket([]byte("two"))))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ACK")))
	assert.Equal(t, "two", readFrame(t, conn).Payload)
}

func TestWSHandshakeErrors(t *testing.T) {
	f := newGatewayFixture(t, nil)

	conn := f.dial(t, "/wsapi/sub", `{"topic":"/"}`)
	code, reason := expectClose(t, conn)
	assert.Equal(t, stream.CloseInvalidRequest, code)
	assert.Equal(t, "Invalid topic name", reason)

	conn = f.dial(t, "/wsapi/read", "")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1}))
	code, reason = expectClose(t, conn)
	assert.Equal(t, stream.CloseInvalidRequest, code)
	assert.Equal(t, "Unexpected websocket frame type.", reason)

	conn = f.dial(t, "/wsapi/sub", `{"topic":"bbb"}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"bbb"}`)))
	code, reason = expectClose(t, conn)
	assert.Equal(t, stream.CloseInvalidRequest, code)
	assert.Equal(t, "Handshake only allowed once per websocket.", reason)
}

func TestWSReadNotUTF8Closes1011(t *testing.T) {
	f := newGatewayFixture(t, nil)
	require.NoError(t, f.bus.Write(context.Background(), "raw/bin", bus.NewPacket([]byte{0xff}), false))

	conn := f.dial(t, "/wsapi/read", `{"path":"raw/bin"}`)
	code, reason := expectClose(t, conn)
	assert.Equal(t, stream.CloseInternal, code)
	assert.Equal(t, errspkg.NotUTF8().Error(), reason)
}

func TestWSLogFiltersBySeverity(t *testing.T) {
	f := newGatewayFixture(t, nil)
	ctx := context.Background()
	tp := bus.Topic{Protocol: bus.ProtocolLog, Name: "svc"}
	for _, lvl := range []string{"DBG", "ERR", "INFO"} {
		require.NoError(t, f.bus.Publish(ctx, tp, bus.NewPacket([]byte(lvl), bus.HeaderLogLevel, lvl)))
	}
	require.NoError(t, f.bus.Publish(ctx, tp, bus.NewPacket([]byte("plain"))))

	conn := f.dial(t, "/wsapi/log", `{"topic":"svc","level":"WARN"}`)
	assert.Equal(t, "ERR", readFrame(t, conn).Payload)
	assert.Equal(t, "plain", readFrame(t, conn).Payload)
}

func TestWSPRPC(t *testing.T) {
	f := newGatewayFixture(t, nil)
	tp := bus.Topic{Protocol: bus.ProtocolPRPC, Name: "count"}
	sub, err := f.bus.ServePRPC(context.Background(), tp, local.PRPCServer{
		OnConnect: func(_ context.Context, _ bus.Packet, send local.PRPCSend) error {
			for _, p := range []string{"payload 0", "payload 1", "payload 2"} {
				if err := send(bus.NewPacket([]byte(p)), false); err != nil {
					return err
				}
			}
			return send(bus.NewPacket([]byte("server done")), true)
		},
	})
	require.NoError(t, err)
	defer sub.Close()

	conn := f.dial(t, "/wsapi/prpc", `{"topic":"count","packet":{"payload":""}}`)
	for _, want := range []string{"payload 0", "payload 1", "payload 2"} {
		frame := readFrame(t, conn)
		assert.Equal(t, want, frame.Payload)
		require.NotNil(t, frame.Done)
		assert.False(t, *frame.Done)
	}
	last := readFrame(t, conn)
	assert.Equal(t, "server done", last.Payload)
	require.NotNil(t, last.Done)
	assert.True(t, *last.Done)

	code, _ := expectClose(t, conn)
	assert.Equal(t, stream.CloseNormal, code)
}

func TestWSDiscover(t *testing.T) {
	f := newGatewayFixture(t, nil)
	ctx := context.Background()
	for _, tp := range []bus.Topic{
		{Protocol: bus.ProtocolPubSub, Container: "ddd", Name: "ccc"},
		{Protocol: bus.ProtocolPubSub, Container: "ddd/ddd", Name: "ccc"},
		{Protocol: bus.ProtocolRPC, Container: "ddd", Name: "ccc"},
	} {
		require.NoError(t, f.bus.Publish(ctx, tp, bus.NewPacket(nil)))
	}

	conn := f.dial(t, "/wsapi/discover", `{"protocol":"pubsub","topic":"**/*c*"}`)
	next := func() discovery.Report {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(gatewayWait)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var r discovery.Report
		require.NoError(t, jsoncodec.Unmarshal(data, &r))
		return r
	}
	assert.Equal(t, "ddd/ccc", next().Topic)
	assert.Equal(t, "ddd/ddd/ccc", next().Topic)
}

func TestWSPub(t *testing.T) {
	f := newGatewayFixture(t, nil)

	got := make(chan bus.Packet, 4)
	sub, err := f.bus.Subscribe(context.Background(), aaaBbb.Path(), bus.ReadOptions{}, func(_ context.Context, pkt bus.Packet) error {
		got <- pkt
		return nil
	})
	require.NoError(t, err)
	defer sub.Close()

	conn := f.dial(t, "/wsapi/pub", `{"container":"aaa","topic":"bbb","encoding":"base64"}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"packet":{"headers":[["k","v"]],"payload":"aGk="}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"packet":{"payload":"plain","encoding":"none"}}`)))

	for _, want := range []string{"hi", "plain"} {
		select {
		case pkt := <-got:
			assert.Equal(t, want, string(pkt.Payload))
		case <-time.After(gatewayWait):
			t.Fatalf("packet %q was not published", want)
		}
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"packet":{}}`)))
	code, reason := expectClose(t, conn)
	assert.Equal(t, stream.CloseInvalidRequest, code)
	assert.Equal(t, "Request missing required field: packet.payload", reason)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.post(t, "/api/pub", `{"topic":"bbb"}`)
	f.post(t, "/api/pub", `nope`)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	text := string(body)
	assert.Contains(t, text, `protogate_gateway_requests_total{code="200",route="pub"} 1`)
	assert.Contains(t, text, `protogate_gateway_requests_total{code="400",route="pub"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	f := newGatewayFixture(t, func(c *configpkg.Config) { c.MetricsEnabled = false })
	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeShutsDownSessions(t *testing.T) {
	conf := configpkg.Default()
	conf.Root = t.TempDir()
	b, err := local.New(local.Config{Root: conf.Root, PollInterval: 20 * time.Millisecond}, loggingpkg.Discard())
	require.NoError(t, err)
	defer b.Close()

	gw, err := NewGateway(&conf, b, loggingpkg.Discard())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- gw.Serve(ctx, ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/wsapi/sub", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"idle"}`)))

	// Give the session time to open its subscription before shutting down.
	time.Sleep(100 * time.Millisecond)
	cancel()

	code, _ := expectClose(t, conn)
	assert.Equal(t, stream.CloseGoingAway, code)

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(gatewayWait):
		t.Fatal("Serve did not return")
	}

	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, gw.Serve(context.Background(), ln2), errspkg.ErrGatewayStarted)
}
