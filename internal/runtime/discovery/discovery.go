// Package discovery matches bus files against a glob and streams each new
// match to a client once.
package discovery

import (
	"context"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/drblury/protogate/bus"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	"github.com/drblury/protogate/internal/runtime/jsoncodec"
	"github.com/drblury/protogate/internal/runtime/stream"
)

// Report is the frame sent for each discovered topic.
type Report struct {
	Abspath string `json:"abspath"`
	Relpath string `json:"relpath"`
	Topic   string `json:"topic"`
}

// Matcher remembers which topics it already reported. It is owned by a single
// discovery session and is not safe for concurrent use.
type Matcher struct {
	root     string
	protocol bus.Protocol
	pattern  string
	seen     map[string]struct{}
}

// NewMatcher builds a matcher for topics of protocol under root. pattern
// supports * within a segment and ** across segments.
func NewMatcher(root string, protocol bus.Protocol, pattern string) (*Matcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errspkg.BadFormat("topic", doublestar.ErrBadPattern)
	}
	return &Matcher{
		root:     root,
		protocol: protocol,
		pattern:  pattern,
		seen:     make(map[string]struct{}),
	}, nil
}

// Match reports relpath the first time it names a matching topic.
func (m *Matcher) Match(relpath string) (Report, bool) {
	topic, ok := bus.TopicFromPath(m.protocol, relpath)
	if !ok {
		return Report{}, false
	}
	if _, dup := m.seen[topic]; dup {
		return Report{}, false
	}
	if matched, err := doublestar.Match(m.pattern, topic); err != nil || !matched {
		return Report{}, false
	}
	m.seen[topic] = struct{}{}
	return Report{
		Abspath: filepath.Join(m.root, filepath.FromSlash(relpath)),
		Relpath: relpath,
		Topic:   topic,
	}, true
}

// Source streams matches of every existing and future bus file.
func Source(dir bus.Directory, m *Matcher) stream.Start {
	return func(ctx context.Context, emit stream.Emit) (bus.Subscription, error) {
		return dir.Watch(ctx, func(ctx context.Context, relpath string) error {
			report, ok := m.Match(relpath)
			if !ok {
				return nil
			}
			data, err := jsoncodec.Marshal(report)
			if err != nil {
				return err
			}
			return emit(ctx, stream.Frame{Data: data})
		})
	}
}
