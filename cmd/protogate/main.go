// Command protogate serves the local bus to web clients and runs the
// configured bridges. Settings come from PROTOGATE_* environment variables and
// the optional yaml file named by PROTOGATE_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/protogate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	conf, err := protogate.LoadConfig()
	if err != nil {
		return err
	}
	level, err := protogate.ParseLogLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	logger := protogate.NewSlogServiceLogger(protogate.NewSlogLogger(os.Stderr, level, conf.LogFormat))
	logger.Info("Starting protogate", protogate.LogFields{"config": conf.String()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := protogate.Run(ctx, &conf, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("protogate stopped", err, nil)
		return err
	}
	logger.Info("protogate stopped", nil)
	return nil
}
