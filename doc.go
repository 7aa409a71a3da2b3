// Package protogate exposes a file-backed message bus to browser clients. A
// Gateway serves pub/sub, raw file reads, log tails, RPC and progressive RPC
// over HTTP and websockets, with per-frame acknowledgement so slow clients
// apply backpressure to the bus reader.
//
// The bus lives under a root directory (by default /dev/shm). Topics are
// files named <container>/<topic>.<protocol>.bus; every record carries an
// ordered header list and a binary payload.
//
// # Routes
//
//   - GET|POST /api/ls lists the bus files.
//   - POST /api/pub, /api/write and /api/rpc publish, append raw records and
//     call an rpc server.
//   - /wsapi/sub, /wsapi/read and /wsapi/log stream a topic, a raw file or a
//     severity-filtered log.
//   - /wsapi/prpc streams progressive rpc responses and cancels the call when
//     the socket closes early.
//   - /wsapi/discover reports bus files matching a glob as they appear.
//   - /wsapi/pub publishes every frame after the handshake.
//
// # Bridges
//
// Bridge pipes copy packets between bus topics and external brokers through
// Watermill transports: channel, nats, kafka, rabbitmq, http, aws and io.
// Headers travel as message metadata, or inside a protobuf wire envelope when
// their order and duplicates must survive.
//
// Run wires everything from a Config; see cmd/protogate for the process
// entrypoint.
package protogate
