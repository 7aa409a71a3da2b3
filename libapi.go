package protogate

import (
	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/bus/local"
	runtimepkg "github.com/drblury/protogate/internal/runtime"
	"github.com/drblury/protogate/internal/runtime/bridge"
	configpkg "github.com/drblury/protogate/internal/runtime/config"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	loggingpkg "github.com/drblury/protogate/internal/runtime/logging"
	"github.com/drblury/protogate/transport"
)

type (
	Config          = configpkg.Config
	BridgeConfig    = configpkg.BridgeConfig
	TransportConfig = configpkg.TransportConfig

	Gateway            = runtimepkg.Gateway
	Bridge             = bridge.Bridge
	BridgeDependencies = bridge.Dependencies

	Bus         = bus.Bus
	Packet      = bus.Packet
	Header      = bus.Header
	Topic       = bus.Topic
	LocalBus    = local.Bus
	LocalConfig = local.Config

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	TransportRegistry     = transport.Registry
	TransportBuilder      = transport.Builder
	TransportCapabilities = transport.Capabilities

	ConfigValidationError = errspkg.ConfigValidationError
	RequestError          = errspkg.RequestError
)

var (
	Run        = runtimepkg.Run
	NewGateway = runtimepkg.NewGateway
	NewBridge  = bridge.New
	NewBus     = local.New

	DefaultConfig = configpkg.Default
	LoadConfig    = configpkg.Load

	NewSlogLogger             = loggingpkg.New
	ParseLogLevel             = loggingpkg.ParseLevel
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillLoggerAdapter = loggingpkg.NewWatermillAdapter
	DiscardLogger             = loggingpkg.Discard

	EncodeEnvelope = bridge.EncodeEnvelope
	DecodeEnvelope = bridge.DecodeEnvelope

	NewTransportRegistry     = transport.NewRegistry
	DefaultTransportRegistry = transport.DefaultRegistry

	ErrConfigRequired         = errspkg.ErrConfigRequired
	ErrBusRequired            = errspkg.ErrBusRequired
	ErrLoggerRequired         = errspkg.ErrLoggerRequired
	ErrTransportNotRegistered = errspkg.ErrTransportNotRegistered
	ErrEnvelopeMalformed      = errspkg.ErrEnvelopeMalformed
)
