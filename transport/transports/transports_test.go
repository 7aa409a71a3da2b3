package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/protogate/transport"
)

func TestRegisterAll(t *testing.T) {
	reg := transport.NewRegistry()
	RegisterAll(reg)

	assert.Equal(t, []string{"aws", "channel", "http", "io", "kafka", "nats", "rabbitmq"}, reg.Names())
	assert.Equal(t, transport.KafkaCapabilities, reg.Capabilities("kafka"))
}

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	for _, name := range []string{"aws", "channel", "http", "io", "kafka", "nats", "rabbitmq"} {
		assert.True(t, transport.DefaultRegistry.Has(name), name)
	}
}
