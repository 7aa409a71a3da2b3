package topic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/protogate/bus"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
)

func strptr(s string) *string { return &s }

func TestResolve(t *testing.T) {
	r := NewResolver("api")

	t.Run("default container", func(t *testing.T) {
		tp, err := r.Resolve(bus.ProtocolPubSub, nil, "bbb")
		require.NoError(t, err)
		assert.Equal(t, "api/bbb.pubsub.bus", tp.Path())
	})

	t.Run("explicit container", func(t *testing.T) {
		tp, err := r.Resolve(bus.ProtocolRPC, strptr("aaa"), "bbb")
		require.NoError(t, err)
		assert.Equal(t, bus.Topic{Protocol: bus.ProtocolRPC, Container: "aaa", Name: "bbb"}, tp)
	})

	t.Run("explicit empty container uses the root", func(t *testing.T) {
		tp, err := r.Resolve(bus.ProtocolPubSub, strptr(""), "bbb")
		require.NoError(t, err)
		assert.Equal(t, "bbb.pubsub.bus", tp.Path())
	})

	t.Run("nested topic names are allowed", func(t *testing.T) {
		tp, err := r.Resolve(bus.ProtocolPubSub, strptr(""), "ddd/ccc")
		require.NoError(t, err)
		assert.Equal(t, "ddd/ccc.pubsub.bus", tp.Path())
	})

	for _, bad := range []string{"", "/", "a//b", "../x", "a/./b", "a/", "a\\b"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := r.Resolve(bus.ProtocolPubSub, nil, bad)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errspkg.ErrInvalidTopic))
			assert.Equal(t, "Invalid topic name", err.Error())
		})
	}

	t.Run("rejects bad container", func(t *testing.T) {
		_, err := r.Resolve(bus.ProtocolPubSub, strptr(".."), "bbb")
		assert.True(t, errors.Is(err, errspkg.ErrInvalidTopic))
	})
}

func TestResolvePath(t *testing.T) {
	r := NewResolver("")

	p, err := r.ResolvePath("/aaa/bbb.pubsub.bus")
	require.NoError(t, err)
	assert.Equal(t, "aaa/bbb.pubsub.bus", p)

	for _, bad := range []string{"", "/", "//", "/a/../../etc"} {
		_, err := r.ResolvePath(bad)
		assert.True(t, errors.Is(err, errspkg.ErrInvalidTopic), bad)
	}
}
