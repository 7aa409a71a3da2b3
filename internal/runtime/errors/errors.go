package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrBusRequired            = sterrors.New("protogate: bus is required")
	ErrConfigRequired         = sterrors.New("protogate: configuration is required")
	ErrLoggerRequired         = sterrors.New("protogate: logger is required")
	ErrRootRequired           = sterrors.New("protogate: bus root is required")
	ErrTransportRequired      = sterrors.New("protogate: transport is required")
	ErrTransportNotRegistered = sterrors.New("protogate: transport is not registered")
	ErrPipeNameRequired       = sterrors.New("protogate: bridge pipe name is required")
	ErrPipeDirectionInvalid   = sterrors.New("protogate: bridge pipe direction must be source or sink")
	ErrGatewayStarted         = sterrors.New("protogate: gateway already started")
	ErrBridgeStarted          = sterrors.New("protogate: bridge already started")
	ErrEnvelopeMalformed      = sterrors.New("protogate: malformed packet envelope")
)

// ConfigValidationError wraps the joined validation failures of a configuration.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("protogate: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
