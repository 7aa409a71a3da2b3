package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesReliableDelivery(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want bool
	}{
		{"ack and nack", Capabilities{SupportsAck: true, SupportsNack: true}, true},
		{"ack only", Capabilities{SupportsAck: true}, false},
		{"nothing", Capabilities{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.SupportsReliableDelivery())
		})
	}

	assert.True(t, ChannelCapabilities.SupportsReliableDelivery())
	assert.False(t, KafkaCapabilities.SupportsReliableDelivery())
}

func TestCapabilitiesFits(t *testing.T) {
	assert.True(t, Capabilities{}.Fits(10<<20))
	assert.True(t, AWSCapabilities.Fits(256<<10))
	assert.False(t, AWSCapabilities.Fits(256<<10+1))
	assert.False(t, NATSCapabilities.Fits(2<<20))
}
