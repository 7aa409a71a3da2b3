// Package transports registers every built-in bridge transport.
package transports

import (
	"github.com/drblury/protogate/transport"
	"github.com/drblury/protogate/transport/aws"
	"github.com/drblury/protogate/transport/channel"
	"github.com/drblury/protogate/transport/http"
	"github.com/drblury/protogate/transport/io"
	"github.com/drblury/protogate/transport/kafka"
	"github.com/drblury/protogate/transport/nats"
	"github.com/drblury/protogate/transport/rabbitmq"
)

// RegisterAll adds the built-in transports to r.
func RegisterAll(r *transport.Registry) {
	aws.Register(r)
	channel.Register(r)
	http.Register(r)
	io.Register(r)
	kafka.Register(r)
	nats.Register(r)
	rabbitmq.Register(r)
}

func init() {
	RegisterAll(transport.DefaultRegistry)
}
