package protogate

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacadeWiresGatewayOverLocalBus(t *testing.T) {
	b, err := NewBus(LocalConfig{Root: t.TempDir()}, DiscardLogger())
	require.NoError(t, err)
	defer b.Close()

	conf := DefaultConfig()
	gw, err := NewGateway(&conf, b, DiscardLogger())
	require.NoError(t, err)
	assert.NotNil(t, gw.Handler())

	_, err = NewGateway(nil, b, DiscardLogger())
	assert.ErrorIs(t, err, ErrConfigRequired)
}

func TestFacadeLogger(t *testing.T) {
	var buf bytes.Buffer
	level, err := ParseLogLevel("debug")
	require.NoError(t, err)

	logger := NewSlogServiceLogger(NewSlogLogger(&buf, level, "json"))
	logger.With(LogFields{"component": "test"}).Debug("boot", nil)
	assert.Contains(t, buf.String(), `"component":"test"`)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestFacadeEnvelope(t *testing.T) {
	pkt := Packet{Headers: []Header{{Key: "a", Value: "1"}, {Key: "a", Value: "2"}}, Payload: []byte("x")}
	got, err := DecodeEnvelope(EncodeEnvelope(pkt))
	require.NoError(t, err)
	assert.Equal(t, pkt, got)

	_, err = DecodeEnvelope([]byte{0x80})
	assert.ErrorIs(t, err, ErrEnvelopeMalformed)
}

func TestFacadeTransports(t *testing.T) {
	for _, name := range []string{"aws", "channel", "http", "io", "kafka", "nats", "rabbitmq"} {
		assert.True(t, DefaultTransportRegistry.Has(name), name)
	}
	_, err := DefaultTransportRegistry.Build(context.Background(), &TransportConfig{PubSubSystem: "smoke-signals"}, nil)
	assert.ErrorIs(t, err, ErrTransportNotRegistered)
}
