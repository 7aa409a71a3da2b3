package transport

// Capabilities describes what a broker guarantees for bridged packets.
type Capabilities struct {
	Name string

	// SupportsOrdering means messages of one topic arrive in publish order.
	SupportsOrdering bool
	// SupportsAck and SupportsNack report explicit acknowledgement; a nacked
	// message is redelivered.
	SupportsAck  bool
	SupportsNack bool
	// SupportsTracing means metadata travels with the message, so trace
	// context and packet headers survive the hop.
	SupportsTracing bool

	// MaxMessageSize is the largest payload the broker accepts in bytes. Zero
	// means unlimited or unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a payload of size bytes can be published.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize <= 0 || int64(size) <= c.MaxMessageSize
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsTracing:  true,
		MaxMessageSize:   1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1 << 20,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
		MaxMessageSize:   256 << 10,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
		SupportsTracing:  true,
	}
)
