package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicPath(t *testing.T) {
	tests := []struct {
		name  string
		topic Topic
		want  string
	}{
		{"pubsub with container", Topic{Protocol: ProtocolPubSub, Container: "aaa", Name: "bbb"}, "aaa/bbb.pubsub.bus"},
		{"rpc without container", Topic{Protocol: ProtocolRPC, Name: "ddd"}, "ddd.rpc.bus"},
		{"nested name", Topic{Protocol: ProtocolPRPC, Name: "x/y"}, "x/y.prpc.bus"},
		{"file is verbatim", Topic{Protocol: ProtocolFile, Name: "raw/file"}, "raw/file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.Path())
		})
	}
}

func TestDescribe(t *testing.T) {
	t.Run("nested layout", func(t *testing.T) {
		d := Describe("aaa/bbb.pubsub.bus")
		assert.Equal(t, Descriptor{Filename: "aaa/bbb.pubsub.bus", Protocol: "pubsub", Container: "aaa", Topic: "bbb"}, d)
	})

	t.Run("root level topic has no container", func(t *testing.T) {
		d := Describe("ddd.rpc.bus")
		assert.Equal(t, Descriptor{Filename: "ddd.rpc.bus", Protocol: "rpc", Topic: "ddd"}, d)
	})

	t.Run("flat layout", func(t *testing.T) {
		d := Describe("pubsub__aaa__bbb")
		assert.Equal(t, Descriptor{Filename: "pubsub__aaa__bbb", Protocol: "pubsub", Container: "aaa", Topic: "bbb"}, d)
	})

	t.Run("unknown names keep empty fields", func(t *testing.T) {
		for _, name := range []string{"notes.txt", "a__b", "x.unknown.bus", ".pubsub.bus"} {
			d := Describe(name)
			assert.Equal(t, Descriptor{Filename: name}, d, name)
		}
	})
}

func TestTopicFromPath(t *testing.T) {
	topic, ok := TopicFromPath(ProtocolPubSub, "ddd/ccc.pubsub.bus")
	assert.True(t, ok)
	assert.Equal(t, "ddd/ccc", topic)

	_, ok = TopicFromPath(ProtocolPubSub, "ddd/ccc.rpc.bus")
	assert.False(t, ok)

	topic, ok = TopicFromPath(ProtocolFile, "anything/at/all")
	assert.True(t, ok)
	assert.Equal(t, "anything/at/all", topic)
}

func TestParseProtocol(t *testing.T) {
	p, ok := ParseProtocol("prpc")
	assert.True(t, ok)
	assert.Equal(t, ProtocolPRPC, p)

	_, ok = ParseProtocol("PRPC")
	assert.False(t, ok)
}
