package stream

import (
	"context"
	"sync"
	"time"

	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/logging"
	"github.com/drblury/protogate/internal/runtime/request"
)

// cancelTimeout bounds the cancel notification sent after the socket is gone.
const cancelTimeout = 5 * time.Second

// PRPC relays one streaming call over a pump. If the session ends before the
// terminal frame was written the call is cancelled exactly once; once the
// terminal frame is out no cancel is sent.
func PRPC(ctx context.Context, pump *Pump, caller bus.Caller, cmd request.Command, logger logging.ServiceLogger, cancelled func()) error {
	var call bus.StreamCall

	cancelCall := sync.OnceFunc(func() {
		if call == nil {
			return
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
		defer cancel()
		if err := caller.Cancel(cctx, cmd.Topic, call.ID()); err != nil {
			logger.Error("Failed to cancel PRPC call", err, logging.LogFields{"topic": cmd.Topic.Path(), "req_id": call.ID()})
			return
		}
		if cancelled != nil {
			cancelled()
		}
		logger.Debug("PRPC call cancelled", logging.LogFields{"topic": cmd.Topic.Path(), "req_id": call.ID()})
	})

	return pump.OnAbort(cancelCall).Run(ctx, func(ctx context.Context, emit Emit) (bus.Subscription, error) {
		c, err := caller.Stream(ctx, cmd.Topic, cmd.Packet, func(ctx context.Context, pkt bus.Packet, done bool) error {
			data, err := EncodeProgress(pkt, cmd.ResponseEncoding, done)
			if err != nil {
				return err
			}
			return emit(ctx, Frame{Data: data, Final: done})
		})
		if err != nil {
			return nil, err
		}
		call = c
		return c, nil
	})
}
