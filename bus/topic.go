package bus

import (
	"path"
	"strings"
)

// FileSuffix terminates every bus file name.
const FileSuffix = ".bus"

// TopicPlaceholder is replaced by the topic name in protocol templates.
const TopicPlaceholder = "{topic}"

// Protocol selects how a topic file is used.
type Protocol string

const (
	ProtocolFile   Protocol = "file"
	ProtocolPubSub Protocol = "pubsub"
	ProtocolRPC    Protocol = "rpc"
	ProtocolPRPC   Protocol = "prpc"
	ProtocolLog    Protocol = "log"
	ProtocolCfg    Protocol = "cfg"
)

// Protocols lists every protocol a topic may use.
var Protocols = []Protocol{
	ProtocolFile,
	ProtocolPubSub,
	ProtocolRPC,
	ProtocolPRPC,
	ProtocolLog,
	ProtocolCfg,
}

// ParseProtocol maps a protocol name onto its value.
func ParseProtocol(name string) (Protocol, bool) {
	for _, p := range Protocols {
		if string(p) == name {
			return p, true
		}
	}
	return "", false
}

// Template returns the path template of the protocol. The file protocol maps a
// topic onto itself; every other protocol appends its own suffix.
func (p Protocol) Template() string {
	if p == ProtocolFile {
		return TopicPlaceholder
	}
	return TopicPlaceholder + "." + string(p) + FileSuffix
}

// Topic addresses a named stream on the bus.
type Topic struct {
	Protocol  Protocol
	Container string
	Name      string
}

// Path returns the location of the topic relative to the bus root.
func (t Topic) Path() string {
	name := t.Name
	if t.Container != "" {
		name = path.Join(t.Container, t.Name)
	}
	return strings.Replace(t.Protocol.Template(), TopicPlaceholder, name, 1)
}

func (t Topic) String() string {
	return t.Path()
}

// Descriptor describes a bus file as reported by a directory listing.
type Descriptor struct {
	Filename  string `json:"filename"`
	Protocol  string `json:"protocol"`
	Container string `json:"container"`
	Topic     string `json:"topic"`
}

// Describe parses a bus file name. Two layouts are understood:
// "<container>/<topic>.<protocol>.bus" and the flat
// "<protocol>__<container>__<topic>". Other names yield empty fields.
func Describe(filename string) Descriptor {
	d := Descriptor{Filename: filename}

	base := path.Base(filename)
	if parts := strings.Split(base, "__"); len(parts) == 3 && path.Dir(filename) == "." {
		d.Protocol, d.Container, d.Topic = parts[0], parts[1], parts[2]
		return d
	}

	if !strings.HasSuffix(base, FileSuffix) {
		return d
	}
	stem := strings.TrimSuffix(base, FileSuffix)
	dot := strings.LastIndex(stem, ".")
	if dot <= 0 {
		return d
	}
	protocol, ok := ParseProtocol(stem[dot+1:])
	if !ok || protocol == ProtocolFile {
		return d
	}
	d.Protocol = string(protocol)
	d.Topic = stem[:dot]
	if dir := path.Dir(filename); dir != "." {
		d.Container = dir
	}
	return d
}

// TopicFromPath strips the protocol template from a path relative to the bus
// root. It reports false when the path does not follow the template.
func TopicFromPath(p Protocol, relpath string) (string, bool) {
	tmpl := p.Template()
	idx := strings.Index(tmpl, TopicPlaceholder)
	prefix := tmpl[:idx]
	suffix := tmpl[idx+len(TopicPlaceholder):]
	if !strings.HasPrefix(relpath, prefix) || !strings.HasSuffix(relpath, suffix) {
		return "", false
	}
	topic := relpath[len(prefix) : len(relpath)-len(suffix)]
	if topic == "" {
		return "", false
	}
	return topic, true
}
