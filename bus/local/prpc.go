package local

import (
	"context"
	"strconv"
	"sync"

	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/ids"
	"github.com/drblury/protogate/internal/runtime/logging"
)

// PRPCSend emits one response for the connection being served. The last call
// must pass done=true.
type PRPCSend func(pkt bus.Packet, done bool) error

// PRPCServer handles PRPC connections on one topic.
type PRPCServer struct {
	// OnConnect serves a request. ctx is cancelled when the caller cancels.
	OnConnect func(ctx context.Context, req bus.Packet, send PRPCSend) error
	// OnCancel observes every cancel notification, keyed by request id.
	OnCancel func(id string)
}

// Stream implements bus.Caller.
func (b *Bus) Stream(ctx context.Context, topic bus.Topic, pkt bus.Packet, fn bus.StreamHandler) (bus.StreamCall, error) {
	id := ids.New()

	sub, err := b.subscribe(ctx, topic.Path(), awaitNew, func(ctx context.Context, p bus.Packet) error {
		if !isReply(p, bus.RPCProgress, id) {
			return nil
		}
		doneFlag, _ := p.Get(bus.HeaderPRPCDone)
		done, _ := strconv.ParseBool(doneFlag)
		if err := fn(ctx, p, done); err != nil {
			return err
		}
		if done {
			return errStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	req := pkt.Without(bus.HeaderRPCType, bus.HeaderReqID).
		With(bus.HeaderRPCType, bus.RPCRequest).
		With(bus.HeaderReqID, id)
	if _, err := b.append(topic.Path(), req, true); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return &call{subscription: sub, id: id}, nil
}

// Cancel implements bus.Caller.
func (b *Bus) Cancel(ctx context.Context, topic bus.Topic, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cancel := bus.Packet{Payload: []byte{}}.
		With(bus.HeaderRPCType, bus.RPCCancel).
		With(bus.HeaderDep, id)
	_, err := b.append(topic.Path(), cancel, true)
	return err
}

// ServePRPC serves every PRPC request written to topic after the call returns.
// Each connection runs on its own goroutine so cancel notifications are seen
// while it is still sending.
func (b *Bus) ServePRPC(ctx context.Context, topic bus.Topic, srv PRPCServer) (bus.Subscription, error) {
	logger := b.logger.With(logging.LogFields{"topic": topic.Path(), "role": "prpc_server"})

	var (
		mu      sync.Mutex
		active  = make(map[string]context.CancelFunc)
		serving sync.WaitGroup
	)

	sub, err := b.subscribe(ctx, topic.Path(), awaitNew, func(ctx context.Context, p bus.Packet) error {
		kind, _ := p.Get(bus.HeaderRPCType)
		switch kind {
		case bus.RPCRequest:
			id, _ := p.Get(bus.HeaderReqID)
			connCtx, cancel := context.WithCancel(ctx)
			mu.Lock()
			active[id] = cancel
			mu.Unlock()

			serving.Add(1)
			go func() {
				defer serving.Done()
				defer func() {
					mu.Lock()
					delete(active, id)
					mu.Unlock()
					cancel()
				}()

				send := func(pkt bus.Packet, done bool) error {
					resp := reply(pkt, bus.RPCProgress, id).With(bus.HeaderPRPCDone, strconv.FormatBool(done))
					_, err := b.append(topic.Path(), resp, true)
					return err
				}
				if err := srv.OnConnect(connCtx, p, send); err != nil {
					logger.Error("PRPC handler failed", err, logging.LogFields{"req_id": id})
				}
			}()
		case bus.RPCCancel:
			id, _ := p.Get(bus.HeaderDep)
			mu.Lock()
			if cancel, ok := active[id]; ok {
				cancel()
			}
			mu.Unlock()
			if srv.OnCancel != nil {
				srv.OnCancel(id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		<-sub.Done()
		serving.Wait()
	}()
	return sub, nil
}
