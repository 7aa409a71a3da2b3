package request

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/drblury/protogate/bus"
	"github.com/drblury/protogate/internal/runtime/codec"
	errspkg "github.com/drblury/protogate/internal/runtime/errors"
	"github.com/drblury/protogate/internal/runtime/jsoncodec"
	"github.com/drblury/protogate/internal/runtime/topic"
)

// Validator turns raw request bodies into Commands.
type Validator struct {
	resolver topic.Resolver
}

// NewValidator returns a Validator resolving topics with r.
func NewValidator(r topic.Resolver) *Validator {
	return &Validator{resolver: r}
}

// Publish validates a /api/pub body.
func (v *Validator) Publish(body []byte) (Command, error) {
	return v.topicCommand(OpPublish, bus.ProtocolPubSub, body)
}

// RPC validates a /api/rpc body.
func (v *Validator) RPC(body []byte) (Command, error) {
	return v.topicCommand(OpRPC, bus.ProtocolRPC, body)
}

// PRPC validates a /wsapi/prpc handshake.
func (v *Validator) PRPC(body []byte) (Command, error) {
	return v.topicCommand(OpPRPC, bus.ProtocolPRPC, body)
}

// Write validates a /api/write body.
func (v *Validator) Write(body []byte) (Command, error) {
	f, err := parse(body)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Op: OpWrite}
	if cmd.Path, err = v.path(f); err != nil {
		return Command{}, err
	}
	if err := f.encodings(&cmd); err != nil {
		return Command{}, err
	}
	if cmd.Packet, err = f.packet(cmd.RequestEncoding, false); err != nil {
		return Command{}, err
	}
	if cmd.StandardHeaders, _, err = f.boolean("standard_headers"); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Subscribe validates a /wsapi/sub handshake.
func (v *Validator) Subscribe(body []byte) (Command, error) {
	f, err := parse(body)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Op: OpSubscribe}
	if cmd.Topic, err = v.topic(f, bus.ProtocolPubSub); err != nil {
		return Command{}, err
	}
	if err := f.streamOptions(&cmd); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Read validates a /wsapi/read handshake.
func (v *Validator) Read(body []byte) (Command, error) {
	f, err := parse(body)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Op: OpRead}
	if cmd.Path, err = v.path(f); err != nil {
		return Command{}, err
	}
	if err := f.streamOptions(&cmd); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Log validates a /wsapi/log handshake.
func (v *Validator) Log(body []byte) (Command, error) {
	f, err := parse(body)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Op: OpLog, Level: bus.LogInfo}
	if cmd.Topic, err = v.topic(f, bus.ProtocolLog); err != nil {
		return Command{}, err
	}
	if name, ok, err := f.str("level"); err != nil {
		return Command{}, err
	} else if ok && name != "" {
		level, known := bus.ParseLogLevel(name)
		if !known {
			return Command{}, errspkg.UnknownValue("level", name)
		}
		cmd.Level = level
	}
	if err := f.streamOptions(&cmd); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Discover validates a /wsapi/discover handshake.
func (v *Validator) Discover(body []byte) (Command, error) {
	f, err := parse(body)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Op: OpDiscover, Pattern: DefaultPattern}

	name, err := f.requiredStr("protocol")
	if err != nil {
		return Command{}, err
	}
	protocol, ok := bus.ParseProtocol(name)
	if !ok {
		return Command{}, errspkg.UnknownValue("protocol", name)
	}
	cmd.Protocol = protocol

	if pattern, ok, err := f.str("topic"); err != nil {
		return Command{}, err
	} else if ok && pattern != "" {
		cmd.Pattern = pattern
	}
	if !doublestar.ValidatePattern(cmd.Pattern) {
		return Command{}, errspkg.BadFormat("topic", errors.New("invalid glob pattern"))
	}
	if _, err := v.resolver.ResolvePath(cmd.Pattern); err != nil {
		return Command{}, err
	}

	if cmd.Scheduler, err = f.scheduler(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// PubHandshake validates the first frame of a /wsapi/pub socket. The request
// encoding may be given as "encoding" or "request_encoding".
func (v *Validator) PubHandshake(body []byte) (Command, error) {
	f, err := parse(body)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Op: OpPubStream}
	if cmd.Topic, err = v.topic(f, bus.ProtocolPubSub); err != nil {
		return Command{}, err
	}
	if cmd.RequestEncoding, err = f.encoding("request_encoding"); err != nil {
		return Command{}, err
	}
	if _, ok := f["encoding"]; ok {
		if cmd.RequestEncoding, err = f.encoding("encoding"); err != nil {
			return Command{}, err
		}
	}
	return cmd, nil
}

// PubFrame validates a data frame of a /wsapi/pub socket against its handshake.
// The frame's packet.encoding overrides the handshake encoding.
func (v *Validator) PubFrame(handshake Command, body []byte) (Command, error) {
	f, err := parse(body)
	if err != nil {
		return Command{}, err
	}
	raw, ok := f["packet"]
	if !ok {
		return Command{}, errspkg.MissingField("packet")
	}
	pf, err := nested(raw, "packet")
	if err != nil {
		return Command{}, err
	}

	enc := handshake.RequestEncoding
	if _, ok := pf["encoding"]; ok {
		if enc, err = pf.encoding("encoding"); err != nil {
			return Command{}, err
		}
	}

	cmd := handshake
	cmd.Op = OpPublish
	cmd.RequestEncoding = enc
	if cmd.Packet, err = f.packet(enc, true); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func (v *Validator) topicCommand(op Op, protocol bus.Protocol, body []byte) (Command, error) {
	f, err := parse(body)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Op: op}
	if cmd.Topic, err = v.topic(f, protocol); err != nil {
		return Command{}, err
	}
	if err := f.encodings(&cmd); err != nil {
		return Command{}, err
	}
	if cmd.Packet, err = f.packet(cmd.RequestEncoding, false); err != nil {
		return Command{}, err
	}
	if op == OpPRPC {
		if cmd.Scheduler, err = f.scheduler(); err != nil {
			return Command{}, err
		}
	}
	return cmd, nil
}

func (v *Validator) topic(f fields, protocol bus.Protocol) (bus.Topic, error) {
	name, err := f.requiredStr("topic")
	if err != nil {
		return bus.Topic{}, err
	}
	var container *string
	if c, ok, err := f.str("container"); err != nil {
		return bus.Topic{}, err
	} else if ok {
		container = &c
	}
	return v.resolver.Resolve(protocol, container, name)
}

func (v *Validator) path(f fields) (string, error) {
	p, err := f.requiredStr("path")
	if err != nil {
		return "", err
	}
	return v.resolver.ResolvePath(p)
}

func parse(body []byte) (fields, error) {
	f, err := jsoncodec.Object(body)
	switch {
	case errors.Is(err, jsoncodec.ErrInvalid):
		return nil, errspkg.NotJSON()
	case err != nil:
		return nil, errspkg.NotJSONObject()
	}
	return fields(f), nil
}

func nested(raw jsoncodec.RawMessage, name string) (fields, error) {
	f, err := jsoncodec.Object(raw)
	if err != nil {
		return nil, errspkg.BadFormat(name, errors.New("expected object"))
	}
	return fields(f), nil
}

// readOptions resolves init and iter. A numeric init is a minimum sequence
// number and starts from the oldest packet for NEXT or the newest for NEWEST.
func (f fields) readOptions() (bus.ReadOptions, error) {
	opts := bus.ReadOptions{Init: bus.InitOldest, Iter: bus.IterNext}

	if name, ok, err := f.str("iter"); err != nil {
		return opts, err
	} else if ok && name != "" {
		switch name {
		case "NEXT":
			opts.Iter = bus.IterNext
		case "NEWEST":
			opts.Iter = bus.IterNewest
		default:
			return opts, errspkg.UnknownValue("iter", name)
		}
	}

	raw, ok := f["init"]
	if !ok {
		return opts, nil
	}
	if len(raw) > 0 && raw[0] != '"' {
		var seq uint64
		if err := jsoncodec.Unmarshal(raw, &seq); err != nil {
			return opts, errspkg.BadFormat("init", err)
		}
		opts.MinSeq = seq
		if opts.Iter == bus.IterNewest {
			opts.Init = bus.InitMostRecent
		}
		return opts, nil
	}

	name, _, err := f.str("init")
	if err != nil {
		return opts, err
	}
	switch name {
	case "":
	case "OLDEST":
		opts.Init = bus.InitOldest
	case "MOST_RECENT":
		opts.Init = bus.InitMostRecent
	case "AWAIT_NEW":
		opts.Init = bus.InitAwaitNew
	default:
		return opts, errspkg.UnknownValue("init", name)
	}
	return opts, nil
}

func (f fields) streamOptions(cmd *Command) error {
	var err error
	if cmd.Read, err = f.readOptions(); err != nil {
		return err
	}
	if cmd.ResponseEncoding, err = f.encoding("response_encoding"); err != nil {
		return err
	}
	if cmd.Scheduler, err = f.scheduler(); err != nil {
		return err
	}
	return nil
}

func (f fields) encodings(cmd *Command) error {
	var err error
	if cmd.RequestEncoding, err = f.encoding("request_encoding"); err != nil {
		return err
	}
	if cmd.ResponseEncoding, err = f.encoding("response_encoding"); err != nil {
		return err
	}
	return nil
}

func (f fields) scheduler() (Scheduler, error) {
	name, ok, err := f.str("scheduler")
	if err != nil || !ok || name == "" {
		return Immediate, err
	}
	s, known := schedulerNames[name]
	if !known {
		return Immediate, errspkg.UnknownValue("scheduler", name)
	}
	return s, nil
}

func (f fields) encoding(field string) (codec.Encoding, error) {
	name, _, err := f.str(field)
	if err != nil {
		return codec.None, err
	}
	enc, ok := codec.Parse(name)
	if !ok {
		return codec.None, errspkg.UnknownValue(field, name)
	}
	return enc, nil
}

// packet decodes the optional "packet" object. When payloadRequired is set the
// payload must be present.
func (f fields) packet(enc codec.Encoding, payloadRequired bool) (bus.Packet, error) {
	pkt := bus.Packet{Headers: []bus.Header{}, Payload: []byte{}}

	raw, ok := f["packet"]
	if !ok {
		if payloadRequired {
			return pkt, errspkg.MissingField("packet")
		}
		return pkt, nil
	}
	pf, err := nested(raw, "packet")
	if err != nil {
		return pkt, err
	}

	if rawHeaders, ok := pf["headers"]; ok {
		var pairs [][]string
		if err := jsoncodec.Unmarshal(rawHeaders, &pairs); err != nil {
			return pkt, errspkg.BadFormat("packet.headers", err)
		}
		for _, pair := range pairs {
			if len(pair) != 2 {
				return pkt, errspkg.BadFormat("packet.headers", errors.New("each header must be a [key, value] pair"))
			}
			pkt.Headers = append(pkt.Headers, bus.Header{Key: pair[0], Value: pair[1]})
		}
	}

	payload, ok, err := pf.str("payload")
	if err != nil {
		return pkt, errspkg.BadFormat("packet.payload", errors.New("expected string"))
	}
	if !ok && payloadRequired {
		return pkt, errspkg.MissingField("packet.payload")
	}
	decoded, err := codec.Decode(payload, enc)
	if err != nil {
		return pkt, errspkg.BadFormat("packet.payload", err)
	}
	pkt.Payload = decoded
	return pkt, nil
}
