// Package topic resolves client supplied names into bus addresses.
package topic

import (
	"strings"

	"github.com/drblury/protogate/bus"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
)

// Resolver maps (container, topic) pairs and raw paths onto bus addresses.
// It holds no state besides the default container and may be shared.
type Resolver struct {
	// DefaultContainer namespaces topics whose request omits a container. An
	// empty value places them at the bus root.
	DefaultContainer string
}

// NewResolver returns a Resolver using the given default container.
func NewResolver(defaultContainer string) Resolver {
	return Resolver{DefaultContainer: defaultContainer}
}

// Resolve returns the bus topic for the given protocol. A nil container falls
// back to the default container.
func (r Resolver) Resolve(protocol bus.Protocol, container *string, name string) (bus.Topic, error) {
	c := r.DefaultContainer
	if container != nil {
		c = *container
	}
	if c != "" {
		if err := validate(c); err != nil {
			return bus.Topic{}, err
		}
	}
	if err := validate(name); err != nil {
		return bus.Topic{}, err
	}
	return bus.Topic{Protocol: protocol, Container: c, Name: name}, nil
}

// ResolvePath validates a raw bus path. A leading slash is accepted and
// stripped; the result is always relative to the bus root.
func (r Resolver) ResolvePath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/")
	if err := validate(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

func validate(name string) error {
	if name == "" {
		return errspkg.InvalidTopic()
	}
	for _, segment := range strings.Split(name, "/") {
		switch segment {
		case "", ".", "..":
			return errspkg.InvalidTopic()
		}
		if strings.ContainsAny(segment, "\x00\\") {
			return errspkg.InvalidTopic()
		}
	}
	return nil
}
