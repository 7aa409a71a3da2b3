/*
Package runtime serves a bus to web clients and runs the bridges next to it.

# Gateway (gateway.go)

Gateway owns the HTTP mux, the websocket upgrader and the metrics registry.
One-shot routes live in http_handlers.go and are wrapped with a span and
request metrics. Streaming routes live in ws_handlers.go: each reads a
handshake, validates it with request.Validator and hands the socket to a
stream.Pump. Closing the gateway cancels every session before the HTTP server
shuts down.

# Process (app.go)

Run opens the local bus, builds the gateway and the bridges from one Config
and supervises them with an errgroup.

# Sub-packages

  - bridge/: relay pipes between bus topics and Watermill transports
  - codec/: payload encodings for frames and requests
  - config/: process configuration with validation
  - discovery/: glob matching over bus files for /wsapi/discover
  - errors/: sentinel errors and request errors
  - ids/: ULID generation for writer, request and message ids
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metadata/: header to broker metadata mapping
  - request/: handshake and body validation
  - stream/: websocket frames, the ack-gated pump and the PRPC bridge
  - topic/: topic name resolution

# Usage Example

	conf, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewSlogServiceLogger(logging.New(os.Stderr, slog.LevelInfo, conf.LogFormat))
	return runtime.Run(ctx, &conf, logger)
*/
package runtime
