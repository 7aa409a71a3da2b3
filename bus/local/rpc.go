package local

import (
	"context"
	"fmt"

	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/ids"
	"github.com/drblury/protogate/internal/runtime/logging"
)

// HeaderRPCError carries the handler error of a failed RPC in the response.
const HeaderRPCError = "rpc_error"

// RPCHandler answers a single RPC request.
type RPCHandler func(ctx context.Context, req bus.Packet) (bus.Packet, error)

var awaitNew = bus.ReadOptions{Init: bus.InitAwaitNew, Iter: bus.IterNext}

// Call implements bus.Caller. The response reader is positioned before the
// request is written so the response cannot be missed.
func (b *Bus) Call(ctx context.Context, topic bus.Topic, pkt bus.Packet) (bus.Packet, error) {
	id := ids.New()
	responses := make(chan bus.Packet, 1)

	sub, err := b.subscribe(ctx, topic.Path(), awaitNew, func(ctx context.Context, p bus.Packet) error {
		if !isReply(p, bus.RPCResponse, id) {
			return nil
		}
		responses <- p
		return errStop
	})
	if err != nil {
		return bus.Packet{}, err
	}
	defer sub.Close()

	req := pkt.Without(bus.HeaderRPCType, bus.HeaderReqID).
		With(bus.HeaderRPCType, bus.RPCRequest).
		With(bus.HeaderReqID, id)
	if _, err := b.append(topic.Path(), req, true); err != nil {
		return bus.Packet{}, err
	}

	select {
	case resp := <-responses:
		return resp, nil
	case <-ctx.Done():
		return bus.Packet{}, ctx.Err()
	case <-sub.Done():
		select {
		case resp := <-responses:
			return resp, nil
		default:
		}
		if err := sub.Err(); err != nil {
			return bus.Packet{}, err
		}
		if ctx.Err() != nil {
			return bus.Packet{}, ctx.Err()
		}
		return bus.Packet{}, bus.ErrClosed
	}
}

// ServeRPC answers every request written to topic after the call returns. A
// handler error is reported to the caller in the rpc_error header.
func (b *Bus) ServeRPC(ctx context.Context, topic bus.Topic, handler RPCHandler) (bus.Subscription, error) {
	logger := b.logger.With(logging.LogFields{"topic": topic.Path(), "role": "rpc_server"})
	return b.subscribe(ctx, topic.Path(), awaitNew, func(ctx context.Context, p bus.Packet) error {
		if kind, _ := p.Get(bus.HeaderRPCType); kind != bus.RPCRequest {
			return nil
		}
		id, _ := p.Get(bus.HeaderReqID)

		resp, err := handler(ctx, p)
		if err != nil {
			logger.Error("RPC handler failed", err, logging.LogFields{"req_id": id})
			resp = bus.Packet{Payload: []byte{}}.With(HeaderRPCError, err.Error())
		}
		if _, err := b.append(topic.Path(), reply(resp, bus.RPCResponse, id), true); err != nil {
			return fmt.Errorf("write rpc response: %w", err)
		}
		return nil
	})
}

func reply(pkt bus.Packet, kind, dep string) bus.Packet {
	return pkt.Without(bus.HeaderRPCType, bus.HeaderReqID, bus.HeaderDep).
		With(bus.HeaderRPCType, kind).
		With(bus.HeaderReqID, ids.New()).
		With(bus.HeaderDep, dep)
}

func isReply(p bus.Packet, kind, id string) bool {
	if k, _ := p.Get(bus.HeaderRPCType); k != kind {
		return false
	}
	dep, _ := p.Get(bus.HeaderDep)
	return dep == id
}
