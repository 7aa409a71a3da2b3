package runtime

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/drblury/protogate/bus/local"
	"github.com/drblury/protogate/internal/runtime/bridge"
	configpkg "github.com/drblury/protogate/internal/runtime/config"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	loggingpkg "github.com/drblury/protogate/internal/runtime/logging"
	"github.com/drblury/protogate/transport"
	"github.com/drblury/protogate/transport/transports"
)

// Run opens the local bus at conf.Root and serves the gateway and the
// configured bridges until ctx ends or one of them fails.
func Run(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger) error {
	if conf == nil {
		return errspkg.ErrConfigRequired
	}
	if log == nil {
		return errspkg.ErrLoggerRequired
	}

	b, err := local.New(local.Config{
		Root:           conf.Root,
		PollInterval:   conf.PollInterval,
		DisableWatcher: conf.DisableWatcher,
	}, log)
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error("Failed to close bus", err, nil)
		}
	}()

	gw, err := NewGateway(conf, b, log)
	if err != nil {
		return err
	}

	registry := transport.NewRegistry()
	transports.RegisterAll(registry)
	br, err := bridge.New(conf, b, log, bridge.Dependencies{
		Registry:   registry,
		Registerer: gw.Registry(),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.Run(gctx)
	})
	if len(conf.Bridges) > 0 {
		g.Go(func() error {
			return br.Run(gctx)
		})
	}
	return g.Wait()
}
